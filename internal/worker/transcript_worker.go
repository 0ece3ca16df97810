package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"pdfchat/internal/app"
	"pdfchat/internal/model"
)

// MessageAppender persists one chat turn. *app.ConversationService
// satisfies it.
type MessageAppender interface {
	AddMessage(ctx context.Context, input app.AddMessageInput) (*model.Message, error)
}

// TranscriptWorker consumes queued chat turns and writes them to the
// conversation store.
type TranscriptWorker struct {
	conn      *amqp.Connection
	appender  MessageAppender
	queueName string
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTranscriptWorker(conn *amqp.Connection, appender MessageAppender, queueName string, logger *zap.Logger) *TranscriptWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptWorker{
		conn:      conn,
		appender:  appender,
		queueName: queueName,
		logger:    logger.Named("transcript_worker"),
	}
}

func (w *TranscriptWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	// one unacked delivery at a time keeps turns of a conversation in order
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.handle(workerCtx, d.Body); err != nil {
					w.logger.Error("persist transcript failed", zap.String("message_id", d.MessageId), zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.logger.Info("transcript worker started", zap.String("queue", w.queueName))
	return nil
}

func (w *TranscriptWorker) handle(ctx context.Context, body []byte) error {
	var msg model.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode transcript message failed: %w", err)
	}
	_, err := w.appender.AddMessage(ctx, app.AddMessageInput{
		ConversationID: msg.ConversationID,
		Role:           msg.Role,
		Content:        msg.Content,
	})
	return err
}

func (w *TranscriptWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
