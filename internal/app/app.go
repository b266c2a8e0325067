package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	redisclients "github.com/yungbote/skillgraph-backend/internal/clients/redis"
	"github.com/yungbote/skillgraph-backend/internal/data/db"
	"github.com/yungbote/skillgraph-backend/internal/data/repos/graphstore"
	"github.com/yungbote/skillgraph-backend/internal/domain/graph"
	"github.com/yungbote/skillgraph-backend/internal/engine"
	"github.com/yungbote/skillgraph-backend/internal/insight"
	"github.com/yungbote/skillgraph-backend/internal/observability"
	"github.com/yungbote/skillgraph-backend/internal/platform/envutil"
	"github.com/yungbote/skillgraph-backend/internal/platform/logger"
	"github.com/yungbote/skillgraph-backend/internal/platform/openai"
	"github.com/yungbote/skillgraph-backend/internal/services"
)

type App struct {
	Log *logger.Logger
	DB  *gorm.DB
	RDB *goredis.Client
	Cfg Config

	Store     graphstore.Store
	Engine    *engine.Engine
	Diagnosis services.DiagnosisService
	Refresh   services.InsightRefreshService
	Snapshots services.SnapshotService
	Metrics   *observability.Metrics

	consumer     *redisclients.PracticeConsumer
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	metrics := observability.Init()
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "skillgraph-backend",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	store := graphstore.NewStore(theDB, log)

	// Redis is degraded gracefully: without it there is no stream ingress,
	// snapshot cache, or refresh limiter, but direct calls still work.
	var (
		rdb      *goredis.Client
		consumer *redisclients.PracticeConsumer
		cache    *redisclients.SnapshotCache
		limiter  *redisclients.RefreshLimiter
	)
	rdb, err = redisclients.NewClient()
	if err != nil {
		log.Warn("redis unavailable, running without stream consumer and caches", "error", err)
		rdb = nil
	} else {
		consumer, err = redisclients.NewPracticeConsumer(rdb, log)
		if err != nil {
			log.Warn("practice consumer init failed", "error", err)
		}
		cache = redisclients.NewSnapshotCache(rdb, log)
		limiter = redisclients.NewRefreshLimiter(rdb, log)
	}

	var provider insight.Provider
	oaClient, err := openai.NewClient(log)
	if err != nil {
		log.Warn("openai client unavailable, diagnosis will use neutral defaults", "error", err)
		provider = insight.Disabled()
	} else {
		provider = insight.NewOpenAIProvider(oaClient, log)
	}
	provider = insight.Instrument(provider, metrics)

	diagnosis := services.NewDiagnosisService(store, provider, metrics, log, cfg.Engine)

	engineOpts := []engine.Option{engine.WithMetrics(metrics)}
	if cache != nil {
		engineOpts = append(engineOpts, engine.WithInvalidator(cache))
	}
	ruleEngine := engine.New(store, diagnosis, log, cfg.Engine, engineOpts...)

	var refreshLimiter services.RefreshLimiter
	if limiter != nil {
		refreshLimiter = limiter
	}
	refresh := services.NewInsightRefreshService(store, provider, refreshLimiter, log, cfg.Engine)

	var snapCache services.SnapshotCache
	if cache != nil {
		snapCache = cache
	}
	snapshots := services.NewSnapshotService(store, snapCache, metrics, log)

	return &App{
		Log:          log,
		DB:           theDB,
		RDB:          rdb,
		Cfg:          cfg,
		Store:        store,
		Engine:       ruleEngine,
		Diagnosis:    diagnosis,
		Refresh:      refresh,
		Snapshots:    snapshots,
		Metrics:      metrics,
		consumer:     consumer,
		otelShutdown: otelShutdown,
	}, nil
}

func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.Metrics.StartServer(ctx, a.Log)
	a.Metrics.StartCollectors(ctx, a.DB, a.RDB,
		envutil.String("REDIS_PRACTICE_STREAM", "practice_events"),
		envutil.String("REDIS_PRACTICE_GROUP", "rule_engine"),
		a.Log,
	)

	if a.consumer != nil {
		if err := a.consumer.Start(ctx, a.handlePractice); err != nil {
			a.Log.Error("practice consumer start failed", "error", err)
		}
	}

	a.startHealthServer(ctx)
}

// handlePractice adapts the stream consumer to the rule engine. Validation
// failures are acked (redelivery cannot fix them); everything else stays
// pending for redelivery.
func (a *App) handlePractice(ctx context.Context, event graph.PracticeEvent) error {
	_, err := a.Engine.UpdateFromPractice(ctx, event)
	if graph.IsCode(err, graph.CodeValidation) {
		a.Log.Warn("rejecting invalid practice event",
			"practice_id", event.PracticeID,
			"error", err,
		)
		return nil
	}
	return err
}

func (a *App) startHealthServer(ctx context.Context) {
	addr := envutil.String("HEALTH_ADDR", "")
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := a.DB.DB()
		if err != nil || sqlDB.PingContext(r.Context()) != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Log.Error("health server failed", "error", err, "addr", addr)
		}
	}()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.RDB != nil {
		_ = a.RDB.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
