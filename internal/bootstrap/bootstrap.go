package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/nutrition-assistant/internal/config"
	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
	"github.com/kirillkom/nutrition-assistant/internal/core/ports"
	"github.com/kirillkom/nutrition-assistant/internal/core/usecase"
	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/cache"
	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/lexical"
	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/llm/openaicompat"
	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/rerank/crossencoder"
	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/session/memory"
	sessionredis "github.com/kirillkom/nutrition-assistant/internal/infrastructure/session/redis"
	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/vocabulary"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	TurnUC  *usecase.TurnUseCase
	ScanUC  *usecase.ScanUseCase
	History ports.TurnHistoryReader

	lexical    *lexical.Index
	vectors    ports.VectorIndex
	embedCache *cache.EmbeddingCache
	executor   *resilience.Executor
	executors  []*resilience.Executor

	closers []func()
}

// New wires the turn and scan use cases. observer may be nil.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, observer ports.TurnObserver) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	app.executor = resilience.NewExecutor(resilienceConfig(cfg, 0), logger)
	llmExecutor := resilience.NewExecutor(resilienceConfig(cfg, cfg.LLMTimeout), logger)
	app.executors = []*resilience.Executor{app.executor, llmExecutor}

	sessions, err := app.openSessionStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	vocab, err := vocabulary.Load(cfg.VocabularyPath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}

	var journal ports.TurnJournal
	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.closers = append(app.closers, func() { _ = db.Close() })
		turnJournal, err := openJournal(ctx, db)
		if err != nil {
			app.Close()
			return nil, err
		}
		journal = turnJournal
		app.History = turnJournal
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, llmExecutor)
	var llm ports.LanguageModel = ollamaClient
	switch cfg.LLMProvider {
	case "", "ollama":
	case "openai":
		llm = openaicompat.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, llmExecutor)
	default:
		app.Close()
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}

	app.embedCache = cache.NewEmbeddingCache(ollamaClient, cfg.EmbedCacheSize, cfg.EmbedCacheTTL)
	app.vectors = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, app.executor)
	app.lexical = lexical.NewIndex(cfg.RAGLexicalTopK)

	retrievers := []ports.Retriever{
		usecase.NewDenseRetriever(app.embedCache, app.vectors, cfg.RAGDenseTopK),
		app.lexical,
	}
	pool := usecase.NewRetrieverPool(retrievers, cfg.RAGRetrieverTimeout, cfg.RAGRetrieverParallel, logger)

	var encoder ports.CrossEncoder
	if cfg.RerankerURL != "" {
		encoder = crossencoder.New(cfg.RerankerURL, cfg.RerankerModel, cfg.RerankerTimeout, app.executor)
	} else {
		logger.Warn("cross_encoder_disabled", "reason", "RERANKER_URL is empty")
	}
	reranker := usecase.NewReranker(encoder, cfg.RAGRerankThreshold, cfg.RAGRerankFinalCount, logger)

	app.TurnUC = usecase.NewTurnUseCase(
		usecase.NewIntentClassifier(llm, logger),
		usecase.NewQueryExpander(llm, logger),
		pool,
		reranker,
		llm,
		sessions,
		journal,
		observer,
		domain.TurnSettings{
			ExpansionCount:  cfg.RAGExpansionCount,
			RRFK:            cfg.RAGFusionRRFK,
			FusionTopK:      cfg.RAGFusionTopK,
			AccessAttribute: cfg.RAGAccessAttribute,
			ScanTTL:         cfg.SessionScanTTL,
			HistoryWindow:   cfg.RAGHistoryWindow,
		},
		logger,
	)
	app.ScanUC = usecase.NewScanUseCase(vocab, sessions, observer, cfg.SessionScanTTL, logger)
	return app, nil
}

// NewScanWorker wires only what scan ingestion needs: the session store and
// the vocabulary.
func NewScanWorker(ctx context.Context, cfg config.Config, logger *slog.Logger, observer ports.TurnObserver) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	app.executor = resilience.NewExecutor(resilienceConfig(cfg, 0), logger)
	app.executors = []*resilience.Executor{app.executor}

	sessions, err := app.openSessionStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	vocab, err := vocabulary.Load(cfg.VocabularyPath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}
	app.ScanUC = usecase.NewScanUseCase(vocab, sessions, observer, cfg.SessionScanTTL, logger)
	return app, nil
}

// ConnectQueue opens the NATS connection used for scan events.
func (a *App) ConnectQueue() (*nats.Queue, error) {
	queue, err := nats.NewWithOptions(a.Config.NATSURL, a.Config.NATSSubject, nats.Options{
		ResilienceExecutor: a.executor,
		Logger:             a.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	a.closers = append(a.closers, queue.Close)
	return queue, nil
}

// RefreshLexical reloads the lexical snapshot from the vector index. A
// failed refresh keeps the previous snapshot.
func (a *App) RefreshLexical(ctx context.Context) {
	if a.lexical == nil || a.vectors == nil {
		return
	}
	started := time.Now()
	n, err := a.lexical.Refresh(ctx, a.vectors, a.Config.RAGLexicalSnapshotSize)
	if err != nil {
		a.Logger.Warn("lexical_refresh_failed", "error", err.Error(), "passages", a.lexical.Size())
		return
	}
	a.Logger.Info("lexical_refreshed", "passages", n, "duration_ms", time.Since(started).Milliseconds())
}

// RunLexicalRefresh refreshes on every interval tick until ctx is done.
func (a *App) RunLexicalRefresh(ctx context.Context) {
	interval := a.Config.RAGLexicalRefresh
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.RefreshLexical(ctx)
			if a.embedCache != nil {
				hits, misses := a.embedCache.Stats()
				a.Logger.Debug("embedding_cache_stats", "hits", hits, "misses", misses, "entries", a.embedCache.Len())
			}
		}
	}
}

// UpstreamStates merges the circuit breaker states of every upstream
// executor, keyed by operation name.
func (a *App) UpstreamStates() map[string]string {
	out := make(map[string]string)
	for _, executor := range a.executors {
		for op, state := range executor.BreakerStates() {
			out[op] = state
		}
	}
	return out
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) openSessionStore(ctx context.Context) (ports.SessionStore, error) {
	cfg := a.Config
	switch cfg.SessionBackend {
	case "", "memory":
		return memory.NewStore(cfg.SessionHistoryCap, cfg.SessionIdleTTL), nil
	case "redis":
		store, err := sessionredis.NewFromURL(ctx, cfg.RedisURL, sessionredis.Options{
			HistoryCap: cfg.SessionHistoryCap,
			IdleTTL:    cfg.SessionIdleTTL,
			LockTTL:    max(cfg.SessionLockTTL, cfg.APIRequestTimeout),
		})
		if err != nil {
			return nil, fmt.Errorf("open redis session store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, nil
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}
}

func openJournal(ctx context.Context, db *sql.DB) (*postgres.TurnJournal, error) {
	journal := postgres.NewTurnJournal(db)
	if err := journal.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return journal, nil
}

func resilienceConfig(cfg config.Config, attemptTimeout time.Duration) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:    cfg.ResilienceRetryMaxAttempts,
		RetryInitialBackoff: cfg.ResilienceRetryInitialBackoff,
		RetryMaxBackoff:     cfg.ResilienceRetryMaxBackoff,
		AttemptTimeout:      attemptTimeout,
		BreakerEnabled:      cfg.ResilienceBreakerEnabled,
		BreakerMinRequests:  uint32(max(cfg.ResilienceBreakerMinRequests, 0)),
		BreakerFailureRatio: cfg.ResilienceBreakerFailureRatio,
		BreakerOpenTimeout:  cfg.ResilienceBreakerOpenTimeout,
	}
}
