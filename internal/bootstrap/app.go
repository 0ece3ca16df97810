package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"pdfchat/internal/ai"
	"pdfchat/internal/app"
	"pdfchat/internal/cache"
	"pdfchat/internal/config"
	"pdfchat/internal/platform/database"
	rabbitmqClient "pdfchat/internal/platform/rabbitmq"
	redisClient "pdfchat/internal/platform/redis"
	"pdfchat/internal/rag"
	"pdfchat/internal/repository"
	"pdfchat/internal/vectorstore"
	"pdfchat/internal/worker"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB               *gorm.DB
	Redis            *redis.Client
	MQConn           *amqp.Connection
	TranscriptWorker *worker.TranscriptWorker

	LLM         ai.Client
	VectorStore vectorstore.Store

	Conversations *app.ConversationService
	Recorder      *app.TranscriptRecorder
	Agents        *rag.Provider

	StartedAt time.Time
}

// New opens every configured backend and wires the services on top. Redis
// and RabbitMQ are optional; the agent is created lazily on first use.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}

	if err := a.openStorage(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.openMessaging(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.openModels(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	db, err := database.New(ctx, a.Config)
	if err != nil {
		return err
	}
	a.DB = db

	redisCli, err := redisClient.New(ctx, a.Config.Redis)
	if err != nil {
		return err
	}
	a.Redis = redisCli

	var conversationCache app.ConversationCache
	if redisCli != nil {
		conversationCache = cache.NewConversationCache(
			redisCli,
			time.Duration(a.Config.Redis.ConversationTTLSeconds)*time.Second,
			time.Duration(a.Config.Redis.DirtyTTLSeconds)*time.Second,
		)
	}
	a.Conversations = app.NewConversationService(repository.NewConversationRepository(db), conversationCache, a.Logger)
	return nil
}

func (a *App) openMessaging(ctx context.Context) error {
	mqConn, err := rabbitmqClient.New(ctx, a.Config.RabbitMQ)
	if err != nil {
		return err
	}
	a.MQConn = mqConn

	if mqConn == nil {
		a.Recorder = app.NewTranscriptRecorder(a.Conversations, nil, a.Logger)
		return nil
	}

	queue := a.Config.RabbitMQ.TranscriptQueue
	a.Recorder = app.NewTranscriptRecorder(a.Conversations, rabbitmqClient.NewTranscriptPublisher(mqConn, queue), a.Logger)
	a.TranscriptWorker = worker.NewTranscriptWorker(mqConn, a.Conversations, queue, a.Logger)
	if err := a.TranscriptWorker.Start(ctx); err != nil {
		return fmt.Errorf("start transcript worker failed: %w", err)
	}
	return nil
}

func (a *App) openModels() error {
	llm, err := ai.New(a.Config.LLM)
	if err != nil {
		return err
	}
	a.LLM = llm

	store, err := vectorstore.New(a.Config.VectorStore, a.DB)
	if err != nil {
		return err
	}
	a.VectorStore = store

	a.Agents = rag.NewProvider(func(ctx context.Context) (rag.Service, error) {
		agent, err := rag.NewAgent(ctx, a.LLM, a.LLM, a.VectorStore, rag.AgentOptions{
			Collection:     a.Config.VectorStore.Collection,
			SimilarityTopK: a.Config.LLM.SimilarityTopK,
			MemoryMessages: a.Config.LLM.ChatMemoryMessages,
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		return agent, nil
	})
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.TranscriptWorker != nil {
		a.TranscriptWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.VectorStore != nil {
		if err := a.VectorStore.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
