package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/football-signals/internal/shared/cache"
	"github.com/radieske/football-signals/internal/shared/config"
	"github.com/radieske/football-signals/internal/shared/db"
	"github.com/radieske/football-signals/internal/shared/httpclient"
	"github.com/radieske/football-signals/internal/shared/kafka"
	"github.com/radieske/football-signals/internal/shared/logger"
	"github.com/radieske/football-signals/internal/shared/metrics"
	"github.com/radieske/football-signals/internal/signal-service/delivery"
	"github.com/radieske/football-signals/internal/signal-service/discovery"
	"github.com/radieske/football-signals/internal/signal-service/discovery/sources"
	"github.com/radieske/football-signals/internal/signal-service/entitlement"
	httpapi "github.com/radieske/football-signals/internal/signal-service/http"
	"github.com/radieske/football-signals/internal/signal-service/match"
	"github.com/radieske/football-signals/internal/signal-service/payment"
	"github.com/radieske/football-signals/internal/signal-service/repo"
	"github.com/radieske/football-signals/internal/signal-service/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config: %w", err))
	}

	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(ctx, pg); err != nil {
		log.Fatal("failed to apply schema", zap.Error(err))
	}
	log.Info("postgres connected")

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("redis connected")

	signalsWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicSignalsDelivered)
	defer signalsWriter.Close()
	paymentsWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicPaymentsCredited)
	defer paymentsWriter.Close()
	log.Info("kafka writers ready",
		zap.String("signals_topic", cfg.TopicSignalsDelivered),
		zap.String("payments_topic", cfg.TopicPaymentsCredited))

	m := metrics.NewSignals(prometheus.DefaultRegisterer)
	store := repo.NewPostgres(pg)

	for _, id := range cfg.AdminIDs {
		if err := store.AddAdmin(ctx, id); err != nil {
			log.Fatal("failed to bootstrap admin", zap.String("user_id", id), zap.Error(err))
		}
	}

	// discovery
	adapters, err := sources.Build(cfg.Sources, sources.Deps{
		Log:        log,
		Timeout:    cfg.Discovery.Timeout,
		OnFallback: func(id string) { m.SourceFallbacks.WithLabelValues(id).Inc() },
		OnTimeFallback: func(id, raw string) {
			log.Debug("unparseable start time, using now", zap.String("source", id), zap.String("raw", raw))
		},
	})
	if err != nil {
		log.Fatal("invalid source configuration", zap.Error(err))
	}
	ids := make([]string, 0, len(adapters))
	for _, a := range adapters {
		ids = append(ids, a.ID())
	}
	log.Info("sources ready", zap.Strings("sources", ids))

	pairs := make([]match.TargetPair, 0, len(cfg.Discovery.TargetPairs))
	for _, p := range cfg.Discovery.TargetPairs {
		pairs = append(pairs, match.TargetPair{A: p.A, B: p.B})
	}

	aggregator := &discovery.Aggregator{
		Log:             log,
		Adapters:        adapters,
		Pairs:           pairs,
		Epsilon:         cfg.Discovery.Epsilon,
		Timeout:         cfg.Discovery.Timeout,
		OnSourceFailure: func(id string) { m.SourceFailures.WithLabelValues(id).Inc() },
		OnExtractError:  func(id string) { m.ExtractFailures.WithLabelValues(id).Inc() },
		OnAccepted:      func(id string, n int) { m.MatchesAccepted.WithLabelValues(id).Add(float64(n)) },
	}

	// acesso + entrega
	gate := entitlement.NewService(store, entitlement.Limits{Trial: cfg.Limits.Trial, Daily: cfg.Limits.Daily}, log)
	sink := delivery.NewKafkaSink(signalsWriter)
	dispatcher := &delivery.Dispatcher{
		Log:         log,
		Users:       store,
		Gate:        gate,
		Sink:        sink,
		OnDelivered: func(kind string) { m.Deliveries.WithLabelValues(kind).Inc() },
		OnDenied:    func(reason string) { m.Denials.WithLabelValues(reason).Inc() },
	}

	pipeline := &discovery.Pipeline{
		Log:        log,
		Aggregator: aggregator,
		Seen:       discovery.NewRedisSeen(redisClient, cfg.Discovery.SeenTTL),
		Recorder:   store,
		Deliverer:  dispatcher,
	}

	loc, err := time.LoadLocation(cfg.ReportTZ)
	if err != nil {
		log.Warn("unknown report timezone, using UTC", zap.String("tz", cfg.ReportTZ), zap.Error(err))
		loc = time.UTC
	}
	reporter := &delivery.Reporter{
		Log:      log,
		Stats:    store,
		Admins:   store,
		Sink:     sink,
		Marker:   discovery.NewRedisSeen(redisClient, 8*24*time.Hour),
		Location: loc,
	}

	// pagamentos
	catalog, err := payment.NewCatalog(cfg.Plans, cfg.Payments.Currency)
	if err != nil {
		log.Fatal("invalid plan configuration", zap.Error(err))
	}
	provider := payment.NewProvider(
		cfg.Payments.ProviderURL,
		cfg.Payments.ProviderToken,
		cfg.Payments.ProviderRPS,
		httpclient.New(httpclient.Options{Timeout: 10 * time.Second}, log),
	)
	reconciler := &payment.Reconciler{
		Catalog:    catalog,
		Pending:    payment.NewRedisPending(redisClient, cfg.Payments.PendingTTL),
		Store:      store,
		Locker:     payment.NewRedisLocker(redisClient, 30*time.Second),
		Provider:   provider,
		Publisher:  payment.NewKafkaPublisher(paymentsWriter),
		Log:        log,
		BaseURL:    cfg.Payments.ProviderURL,
		PendingTTL: cfg.Payments.PendingTTL,
		OnConfirm: func(channel, outcome string) {
			m.Confirmations.WithLabelValues(channel, outcome).Inc()
		},
	}

	scheduler := &discovery.Scheduler{
		Log:      log,
		Interval: cfg.Discovery.Interval,
		Backoff:  cfg.Discovery.Backoff,
		Jobs: []discovery.Job{
			{Name: "discovery", Run: pipeline.RunCycle},
			{Name: "expire_lapsed", Run: func(ctx context.Context) error {
				users, err := gate.ExpireLapsed(ctx)
				if err != nil {
					return err
				}
				return dispatcher.NotifyExpired(ctx, users)
			}},
			{Name: "sweep_pending", Run: func(ctx context.Context) error {
				_, err := reconciler.SweepExpired(ctx, time.Now())
				return err
			}},
			{Name: "weekly_report", Run: reporter.RunIfDue},
		},
		OnSkip: func() { m.SkippedTicks.Inc() },
		OnCycle: func(took time.Duration, err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			m.Cycles.WithLabelValues(result).Inc()
			m.CycleDuration.Observe(took.Seconds())
		},
	}

	// hub websocket alimentado pelo notifier via redis pub/sub
	hub := ws.NewHub(allowOrigin(cfg.CORSOrigins), log).RequireToken(cfg.WSToken)
	if cfg.WSToken == "" {
		log.Warn("WS_TOKEN not set, /ws accepts any subscriber the CORS origins allow")
	}
	ws.StartRedisSubscriber(ctx, redisClient, cfg.RedisPubSubChannel, hub, log)

	api := httpapi.NewServer(log, httpapi.Deps{
		Users:       store,
		Gate:        gate,
		Payments:    reconciler,
		Catalog:     catalog,
		Discoverer:  pipeline,
		Admins:      store,
		Stats:       store,
		Recent:      cache.NewRecentSignals(redisClient, int64(cfg.RecentLimit), cfg.RecentTTL),
		Hub:         hub.HandleWS,
		CORSOrigins: cfg.CORSOrigins,
	})

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, map[string]metrics.HealthFunc{
		"postgres": pg.PingContext,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})
	log.Info("metrics/health server starting", zap.String("addr", metricsSrv.Addr))

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			cancel()
		}
	}()

	log.Info("signal-service started",
		zap.Duration("interval", cfg.Discovery.Interval),
		zap.Int("sources", len(adapters)))
	scheduler.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("signal-service stopped")
}

// allowOrigin replica o CORS_ORIGINS no upgrade do websocket
func allowOrigin(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || allowed[origin]
	}
}
