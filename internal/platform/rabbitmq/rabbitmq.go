package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"pdfchat/internal/config"
)

// New dials the broker and declares the transcript queue so publishers and
// the worker agree on its shape. It returns (nil, nil) when messaging is
// disabled in config.
func New(ctx context.Context, cfg config.RabbitMQConfig) (*amqp.Connection, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	type dialResult struct {
		conn *amqp.Connection
		err  error
	}
	done := make(chan dialResult, 1)
	go func() {
		conn, err := amqp.Dial(cfg.URL)
		done <- dialResult{conn: conn, err: err}
	}()

	dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var conn *amqp.Connection
	select {
	case <-dialCtx.Done():
		go func() {
			if res := <-done; res.conn != nil {
				_ = res.conn.Close()
			}
		}()
		return nil, fmt.Errorf("dial rabbitmq timeout: %w", dialCtx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("dial rabbitmq failed: %w", res.err)
		}
		conn = res.conn
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := declareQueue(ch, cfg.TranscriptQueue); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func declareQueue(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s failed: %w", name, err)
	}
	return nil
}
