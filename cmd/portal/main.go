package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/document"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/ranker"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/agreement/synonym"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/analytics"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/analytics/snapshot"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/auth/apikey"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/explain"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/explain/answercache"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/notify"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/portal/handler"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/portal/ratelimit"
	"github.com/shepardc348-cloud/Freshwater-Vault/internal/portal/search"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/config"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/health"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/kafka"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/logger"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/metrics"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/middleware"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/postgres"
	pkgredis "github.com/shepardc348-cloud/Freshwater-Vault/pkg/redis"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/resilience"
	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults plus FV_* environment when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting agreement portal", "port", cfg.Server.Port, "document_id", cfg.Document.ID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	observeBreaker := func(name string, state resilience.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
	}

	// Agreement source and local copy.
	var source document.Source
	var fileSource *document.FileSource
	if cfg.Document.SourceURL != "" {
		httpSource := document.NewHTTPSource(cfg.Document.SourceURL, cfg.Document.FetchTimeout)
		httpSource.MaxBytes = cfg.Document.MaxBytes
		source = httpSource
		slog.Info("agreement source", "url", cfg.Document.SourceURL)
	} else {
		fileSource = &document.FileSource{Path: cfg.Document.SourcePath, MaxBytes: cfg.Document.MaxBytes}
		source = fileSource
		slog.Info("agreement source", "path", cfg.Document.SourcePath)
	}

	var docStore document.Store = document.NewMemoryStore()
	if cfg.Document.CacheDir != "" {
		badgerStore, err := document.OpenBadgerStore(cfg.Document.CacheDir)
		if err != nil {
			slog.Warn("local document store unavailable, keeping copies in memory", "dir", cfg.Document.CacheDir, "error", err)
		} else {
			defer badgerStore.Close()
			docStore = badgerStore
		}
	}

	var notifier *notify.Notifier
	var servingStale atomic.Bool
	docs := document.NewCache(cfg.Document.ID, source,
		document.WithFreshness(cfg.Document.Freshness),
		document.WithFetchTimeout(cfg.Document.FetchTimeout),
		document.WithStore(docStore),
		document.WithCircuitBreaker(resilience.NewCircuitBreaker("document-source", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     time.Minute,
			OnStateChange:    observeBreaker,
		})),
		document.WithRefreshHook(func(outcome string) {
			m.DocumentRefreshes.WithLabelValues(outcome).Inc()
			switch outcome {
			case document.OutcomeFetched:
				servingStale.Store(false)
			case document.OutcomeStale:
				// One notification per fresh-to-stale transition.
				if servingStale.CompareAndSwap(false, true) && notifier != nil {
					notifier.Notify(ctx, notify.Notification{
						Kind:   notify.KindDocumentStale,
						Detail: "agreement source unreachable, serving last known copy",
					})
				}
			}
		}),
	)
	if snap, err := docs.Get(ctx); err != nil {
		slog.Warn("agreement not loaded at startup", "error", err)
	} else {
		m.DocumentSections.Set(float64(len(snap.Sections)))
	}
	if cfg.Document.Watch && fileSource != nil {
		go func() {
			if err := fileSource.Watch(ctx, docs.Expire); err != nil {
				slog.Error("agreement file watch stopped", "error", err)
			}
		}()
	}

	// Redis backs the shared rate limit and answer cache when reachable.
	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, using in-process limiter and cache", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		slog.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Backend == "redis" && redisClient != nil {
			limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		} else {
			mem := ratelimit.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
			go mem.Run(ctx, 5*time.Minute)
			limiter = mem
		}
		slog.Info("rate limit enabled", "requests", cfg.RateLimit.Requests, "window", cfg.RateLimit.Window)
	}

	opts := []search.Option{search.WithMetrics(m)}

	var explainBreaker *resilience.CircuitBreaker
	if cfg.Explain.Enabled {
		model, err := explain.New(cfg.Explain)
		if err != nil {
			slog.Error("failed to create explainer", "error", err)
			os.Exit(1)
		}
		explainBreaker = resilience.NewCircuitBreaker("explainer", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			OnStateChange:    observeBreaker,
		})
		guarded := explain.NewGuarded(model, cfg.Explain.Timeout, explain.WithBreaker(explainBreaker))
		var answerStore answercache.Store
		if redisClient != nil {
			answerStore = answercache.NewRedisStore(redisClient)
		} else {
			mem := answercache.NewMemoryStore(answercache.WithMaxEntries(cfg.Explain.CacheMaxEntries))
			go mem.Run(ctx, time.Minute)
			answerStore = mem
		}
		// Two guarded attempts plus the retry backoff.
		fillTimeout := 2*cfg.Explain.Timeout + time.Second
		opts = append(opts,
			search.WithExplainer(guarded),
			search.WithAnswerCache(answercache.New(answerStore, cfg.Explain.CacheTTL, answercache.WithFillTimeout(fillTimeout))),
		)
		slog.Info("AI explanations enabled", "provider", cfg.Explain.Provider, "model", cfg.Explain.Model)
	}

	// Analytics and notifications go through Kafka when enabled; otherwise
	// events are aggregated in-process and notifications are only logged.
	var aggregator *analytics.Aggregator
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, 10000, m.AnalyticsDropped.Inc)
		collector.Start(ctx)
		defer collector.Close()

		aggregator = analytics.NewAggregator()
		go func() {
			if err := aggregator.Consume(ctx, cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents); err != nil {
				slog.Error("analytics aggregator error", "error", err)
			}
		}()

		notifyProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Notifications)
		defer notifyProducer.Close()
		notifier = notify.New(notifyProducer)
		defer notifier.Wait()

		opts = append(opts, search.WithTracker(collector))
		slog.Info("kafka enabled",
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
			"notifications_topic", cfg.Kafka.Topics.Notifications,
		)
	} else {
		aggregator = analytics.NewAggregator()
		notifier = notify.New(nil)
		opts = append(opts, search.WithTracker(aggregator))
	}
	opts = append(opts, search.WithNotifier(notifier))

	var history analytics.History
	var pg *postgres.Client
	if cfg.Postgres.Enabled {
		pg, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, analytics snapshots disabled", "error", err)
			pg = nil
		} else {
			defer pg.Close()
			snapshots := snapshot.NewStore(pg)
			if err := snapshots.EnsureSchema(ctx); err != nil {
				slog.Warn("analytics snapshot schema", "error", err)
			}
			if last, err := snapshots.Latest(ctx); err != nil {
				slog.Warn("loading last analytics snapshot", "error", err)
			} else if last != nil {
				aggregator.Restore(*last)
			}
			go snapshots.Run(ctx, aggregator, cfg.Postgres.SnapshotEvery)
			history = snapshots
		}
	}

	expander := synonym.NewExpander(nil, synonym.WithLimit(cfg.Search.TokenLimit))
	svc := search.New(docs, ranker.New(expander), search.Config{
		DefaultLimit:         cfg.Search.DefaultLimit,
		MaxResults:           cfg.Search.MaxResults,
		ExcerptLength:        cfg.Search.ExcerptLength,
		MaxExcerpts:          cfg.Explain.MaxExcerpts,
		ExplainExcerptLength: cfg.Explain.ExcerptLength,
	}, opts...)

	checker := health.NewChecker()
	checker.Register("agreement", func(ctx context.Context) health.ComponentHealth {
		st := docs.Status()
		switch {
		case !st.Loaded:
			return health.ComponentHealth{Status: health.StatusDown, Message: "agreement not loaded"}
		case !st.Fresh || st.LastError != "":
			return health.ComponentHealth{Status: health.StatusDegraded, Message: fmt.Sprintf("serving copy fetched %s ago", st.Age)}
		default:
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d sections", st.Sections)}
		}
	})
	if explainBreaker != nil {
		// An open circuit only disables Explain mode; Quick mode keeps working.
		checker.Register("explainer", func(ctx context.Context) health.ComponentHealth {
			if state := explainBreaker.GetState(); state != resilience.StateClosed {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + state.String()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	if redisClient != nil {
		checker.Register("redis", health.Ping(redisClient.Ping, health.StatusDegraded))
	}
	if pg != nil {
		checker.Register("postgres", health.Ping(pg.Ping, health.StatusDegraded))
	}

	admin, err := apikey.NewStaticValidator(cfg.Admin.Keys)
	if err != nil {
		slog.Error("failed to load admin keys", "error", err)
		os.Exit(1)
	}
	if admin.Len() == 0 {
		slog.Warn("no admin keys configured, refresh and invalidate routes are locked")
	}

	mux := http.NewServeMux()
	handler.New(svc, handler.WithAdminKeys(admin)).Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator, history).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	chain := []func(http.Handler) http.Handler{
		middleware.RequestID,
		tracing.Middleware,
		middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowOrigins)),
		middleware.Metrics(m, mux),
	}
	if limiter != nil {
		chain = append(chain, ratelimit.Middleware(limiter, m,
			"/api/v1/search", "/api/v1/explain", "/api/v1/document/refresh", "/api/v1/cache/invalidate"))
	}
	chain = append(chain, middleware.Timeout(cfg.Server.WriteTimeout-time.Second))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, chain...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics, err = m.StartServer(cfg.Metrics.Port,
			metrics.Route{Pattern: "GET /health/ready", Handler: checker.ReadyHandler()},
			metrics.Route{Pattern: "GET /health/live", Handler: checker.LiveHandler()},
		)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if shutdownMetrics != nil {
			shutdownMetrics(shutdownCtx)
		}
	}()

	slog.Info("portal listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-shutdownDone
	slog.Info("portal stopped")
}
