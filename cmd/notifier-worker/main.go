package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/football-signals/internal/notifier/consumer"
	"github.com/radieske/football-signals/internal/notifier/pubsub"
	"github.com/radieske/football-signals/internal/shared/cache"
	"github.com/radieske/football-signals/internal/shared/config"
	"github.com/radieske/football-signals/internal/shared/db"
	"github.com/radieske/football-signals/internal/shared/kafka"
	"github.com/radieske/football-signals/internal/shared/logger"
	"github.com/radieske/football-signals/internal/shared/metrics"
	"github.com/radieske/football-signals/internal/signal-service/repo"
)

const groupID = "notifier-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config: %w", err))
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	signalsReader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicSignalsDelivered, groupID)
	defer signalsReader.Close()
	paymentsReader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicPaymentsCredited, groupID)
	defer paymentsReader.Close()
	dlq := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicSignalsDLQ)
	defer dlq.Close()

	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "notifier_messages_consumed_total", Help: "messages consumed by topic"}, []string{"topic"})
	persisted := prometheus.NewCounter(prometheus.CounterOpts{Name: "notifier_sent_signals_written_total", Help: "sent signals recorded in postgres"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "notifier_errors_total", Help: "errors by stage"}, []string{"stage"})
	prometheus.MustRegister(consumed, persisted, errorsBy)

	store := repo.NewPostgres(pg)
	recent := cache.NewRecentSignals(redisClient, int64(cfg.RecentLimit), cfg.RecentTTL)
	broadcaster := pubsub.NewRedisBroadcaster(redisClient)

	newProcessor := func(reader consumer.MessageReader, topic string) *consumer.Processor {
		return &consumer.Processor{
			Log:           log.With(zap.String("topic", topic)),
			Reader:        reader,
			DLQ:           dlq,
			Sent:          store,
			Recent:        recent,
			Broadcaster:   broadcaster,
			Channel:       cfg.RedisPubSubChannel,
			PaymentsTopic: cfg.TopicPaymentsCredited,
			OnConsumed:    func() { consumed.WithLabelValues(topic).Inc() },
			OnPersisted:   func() { persisted.Inc() },
			OnError:       func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
		}
	}
	procs := []*consumer.Processor{
		newProcessor(signalsReader, cfg.TopicSignalsDelivered),
		newProcessor(paymentsReader, cfg.TopicPaymentsCredited),
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, map[string]metrics.HealthFunc{
		"postgres": pg.PingContext,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	// encerra em SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("notifier-worker started",
		zap.String("signals_topic", cfg.TopicSignalsDelivered),
		zap.String("payments_topic", cfg.TopicPaymentsCredited))

	var wg sync.WaitGroup
	for _, p := range procs {
		wg.Add(1)
		go func(p *consumer.Processor) {
			defer wg.Done()
			if err := p.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("processor stopped with error", zap.Error(err))
				cancel()
			}
		}(p)
	}
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("notifier-worker stopped")
}
