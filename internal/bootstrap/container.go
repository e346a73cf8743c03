package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"zero-entropy-be/internal/config"
	"zero-entropy-be/internal/controller"
	"zero-entropy-be/internal/handler"
	"zero-entropy-be/internal/pkg/logger"
	"zero-entropy-be/internal/pkg/serverutils"
	"zero-entropy-be/internal/repository/implementation"
	"zero-entropy-be/internal/repository/redisstore"
	"zero-entropy-be/internal/repository/sqlite"
	"zero-entropy-be/internal/service"
	"zero-entropy-be/internal/websocket"
	"zero-entropy-be/pkg/embedding"
	"zero-entropy-be/pkg/events"
	"zero-entropy-be/pkg/llm"
	"zero-entropy-be/pkg/llm/factory"
	"zero-entropy-be/pkg/rag/assembler"
	"zero-entropy-be/pkg/rag/memory"
	"zero-entropy-be/pkg/rag/quality"
	"zero-entropy-be/pkg/rag/ranker"
	"zero-entropy-be/pkg/rag/search"

	pktNats "zero-entropy-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	bootModule = "BOOTSTRAP"

	PersistenceNone     = "none"
	PersistencePostgres = "postgres"
	PersistenceRedis    = "redis"

	BackendPgvector = "pgvector"
	BackendSqlite   = "sqlite"
)

type Container struct {
	// Controllers
	ChatController      controller.IChatController
	SessionController   controller.ISessionController
	KnowledgeController controller.IKnowledgeController
	MemoryController    controller.IMemoryController
	HealthController    controller.IHealthController
	JwtMiddleware       fiber.Handler

	// WebSockets
	ChatWsHandler *handler.ChatWsHandler
	WebSocketHub  *websocket.Hub

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	SessionService  service.ISessionService
	EventSubscriber *pktNats.Subscriber

	InstanceId string
	Logger     logger.ILogger

	closers []func()
}

// NewContainer wires every component. db may be nil unless the pgvector
// backend or postgres session persistence is selected.
func NewContainer(db *gorm.DB, cfg *config.Config, sysLogger logger.ILogger, version string) (*Container, error) {
	// 1. Core Facades
	traceLogger := logger.NewIsolatedLogger(cfg.App.TraceLogFilePath)
	instanceId := uuid.NewString()
	c := &Container{InstanceId: instanceId, Logger: sysLogger}

	// 2. Model Providers
	embeddingBaseURL := cfg.Ai.OllamaBaseURL
	embeddingKey := ""
	switch cfg.Ai.EmbeddingProvider {
	case "openai":
		embeddingBaseURL, embeddingKey = cfg.Ai.OpenAIBaseURL, cfg.Keys.OpenAI
	case "gemini":
		embeddingBaseURL, embeddingKey = "", cfg.Keys.GoogleGemini
	}
	embeddingProvider, err := embedding.NewProvider(embedding.Params{
		Provider: cfg.Ai.EmbeddingProvider,
		Model:    cfg.Ai.EmbeddingModel,
		BaseURL:  embeddingBaseURL,
		APIKey:   embeddingKey,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	llmParams := factory.Params{
		Provider:    cfg.Ai.LLMProvider,
		Model:       cfg.Ai.LLMModel,
		Temperature: cfg.Ai.LLMTemperature,
	}
	switch cfg.Ai.LLMProvider {
	case "ollama":
		llmParams.BaseURL = cfg.Ai.OllamaBaseURL
	case "openai":
		llmParams.BaseURL, llmParams.APIKey = cfg.Ai.OpenAIBaseURL, cfg.Keys.OpenAI
	case "anthropic":
		llmParams.APIKey = cfg.Keys.Anthropic
	}
	llmProvider, err := factory.NewLLMProvider(llmParams)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	sysLogger.Info(bootModule, "Model providers ready", map[string]interface{}{
		"embedding": cfg.Ai.EmbeddingProvider,
		"llm":       cfg.Ai.LLMProvider,
		"model":     cfg.Ai.LLMModel,
	})

	// 3. Knowledge Index
	var index search.VectorIndex
	switch cfg.VectorStore.Backend {
	case BackendPgvector:
		if db == nil {
			return nil, errors.New("pgvector backend needs DB_CONNECTION_STRING")
		}
		index = implementation.NewKnowledgeChunkRepository(db)
	case BackendSqlite:
		vs, err := sqlite.NewVectorStore(cfg.VectorStore.SqlitePath)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() { vs.Close() })
		index = vs
	default:
		return nil, fmt.Errorf("unsupported vector backend: %s", cfg.VectorStore.Backend)
	}

	// 4. Redis (session persistence and websocket fan-out)
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			sysLogger.Warn(bootModule, "Failed to parse Redis URL, using it as address", map[string]interface{}{"error": err.Error()})
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			sysLogger.Warn(bootModule, "Redis unreachable", map[string]interface{}{"error": err.Error()})
			rdb.Close()
			rdb = nil
		} else {
			c.closers = append(c.closers, func() { rdb.Close() })
		}
	}

	var persister memory.Persister
	switch cfg.Memory.Persistence {
	case PersistenceNone, "":
	case PersistencePostgres:
		if db == nil {
			return nil, errors.New("postgres session persistence needs DB_CONNECTION_STRING")
		}
		persister = implementation.NewSessionSnapshotRepository(db)
	case PersistenceRedis:
		if rdb == nil {
			return nil, errors.New("redis session persistence needs a reachable REDIS_URL")
		}
		persister = redisstore.NewSessionPersister(rdb, cfg.Memory.SessionTTL)
	default:
		return nil, fmt.Errorf("unsupported session persistence: %s", cfg.Memory.Persistence)
	}

	// 5. Event Bus
	// In-process queue for embedding work
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		logger.NewWatermillAdapter(sysLogger, "WATERMILL"),
	)
	c.closers = append(c.closers, func() { pubSub.Close() })

	// Cross-instance lifecycle events
	var eventPublisher events.Publisher = events.NopPublisher{}
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn(bootModule, "Failed to connect to NATS publisher", map[string]interface{}{"error": err.Error()})
		} else {
			eventPublisher = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}

		if cfg.Memory.Persistence != PersistenceNone && cfg.Memory.Persistence != "" {
			natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL, sysLogger)
			if err != nil {
				sysLogger.Warn(bootModule, "Failed to connect to NATS subscriber", map[string]interface{}{"error": err.Error()})
			} else {
				c.EventSubscriber = natsSub
				c.closers = append(c.closers, natsSub.Close)
			}
		}
	}
	eventPublisher = events.WithOrigin(eventPublisher, instanceId)

	// 6. Retrieval Core
	scorer := quality.NewScorer()
	searcher := search.NewSearcher(embeddingProvider, index, search.Config{KeywordBoost: cfg.Rag.KeywordBoost}, traceLogger)
	rk := ranker.NewRanker(ranker.Config{
		QualityFloor:      cfg.Rag.QualityFloor,
		ConfidenceFloor:   cfg.Rag.ConfidenceFloor,
		SimilarityWeight:  cfg.Rag.SimilarityWeight,
		QualityWeight:     cfg.Rag.QualityWeight,
		FingerprintEdge:   cfg.Rag.FingerprintEdge,
		FingerprintLength: cfg.Rag.FingerprintLength,
	}, scorer, traceLogger)
	asm := assembler.NewAssembler(nil, traceLogger)

	// 7. Services
	publisherService := service.NewPublisherService(cfg.Rag.IngestTopic, pubSub)

	knowledgeService := service.NewKnowledgeService(
		index,
		embeddingProvider,
		searcher,
		rk,
		scorer,
		publisherService,
		eventPublisher,
		service.KnowledgeConfig{
			ChunkSize:        cfg.Rag.ChunkSize,
			ChunkOverlap:     cfg.Rag.ChunkOverlap,
			MinIngestQuality: cfg.Rag.MinIngestQuality,
			SearchK:          cfg.Rag.SearchK,
			MaxResults:       cfg.Rag.MaxResults,
		},
		sysLogger,
	)
	c.ConsumerService = service.NewConsumerService(pubSub, cfg.Rag.IngestTopic, knowledgeService, sysLogger)

	memCfg := memory.DefaultConfig()
	memCfg.WindowCapacity = cfg.Memory.WindowCapacity
	memCfg.ConsolidationThreshold = cfg.Memory.ConsolidationThreshold
	memCfg.SummaryMaxLength = cfg.Memory.SummaryMaxLength
	memCfg.SummarizeTimeout = cfg.Memory.SummarizeTimeout
	memCfg.SummarizeAttempts = cfg.Memory.SummarizeAttempts
	memCfg.SessionTTL = cfg.Memory.SessionTTL

	deps := memory.Deps{
		Summarizer: llm.NewSummarizer(llmProvider),
		Persister:  persister,
		Logger:     sysLogger,
	}
	if cfg.Memory.LongTermMemory {
		deps.Promoter = service.NewMemoryPromoter(publisherService, cfg.Rag.ChunkSize, cfg.Rag.ChunkOverlap, sysLogger)
	}
	sessions := memory.NewCacheStore(memCfg, deps)

	persistence := cfg.Memory.Persistence
	if persistence == "" {
		persistence = PersistenceNone
	}
	c.SessionService = service.NewSessionService(sessions, index, eventPublisher, instanceId, service.SessionConfig{
		Memory:         sessions.Config(),
		LongTermMemory: cfg.Memory.LongTermMemory,
		Persistence:    persistence,
	}, sysLogger)

	// WebSocket Hub
	c.WebSocketHub = websocket.NewHub(rdb, instanceId, sysLogger)

	chatService := service.NewChatService(
		sessions,
		searcher,
		rk,
		asm,
		llmProvider,
		eventPublisher,
		c.WebSocketHub,
		service.ChatConfig{
			RagEnabled:     cfg.Rag.Enabled,
			LongTermMemory: cfg.Memory.LongTermMemory,
			SearchK:        cfg.Rag.SearchK,
			MaxResults:     cfg.Rag.MaxResults,
			TokenBudget:    cfg.Rag.TokenBudget,
			SystemPrompt:   cfg.Ai.SystemPrompt,
		},
		sysLogger,
	)

	// 8. Controllers
	c.JwtMiddleware = serverutils.NewJwtMiddleware(cfg.App.JwtSecret)
	c.ChatController = controller.NewChatController(chatService, c.SessionService)
	c.SessionController = controller.NewSessionController(c.SessionService)
	c.KnowledgeController = controller.NewKnowledgeController(knowledgeService)
	c.MemoryController = controller.NewMemoryController(c.SessionService)
	c.HealthController = controller.NewHealthController(c.SessionService, version)
	c.ChatWsHandler = handler.NewChatWsHandler(chatService, c.WebSocketHub, cfg.App.JwtSecret, sysLogger)

	return c, nil
}

// Start launches the background workers. They stop when ctx is done.
func (c *Container) Start(ctx context.Context) error {
	go c.WebSocketHub.Run(ctx)

	if err := c.ConsumerService.Consume(ctx); err != nil {
		return fmt.Errorf("start ingest consumer: %w", err)
	}

	if c.EventSubscriber != nil {
		durable := "session-sync-" + c.InstanceId
		for _, eventType := range []string{events.TypeSessionConsolidated, events.TypeSessionDeleted} {
			if err := c.EventSubscriber.Subscribe(ctx, eventType, durable+"-"+eventType, c.SessionService.HandleEvent); err != nil {
				return fmt.Errorf("subscribe %s: %w", eventType, err)
			}
		}
	}
	return nil
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.Logger.Sync()
}
