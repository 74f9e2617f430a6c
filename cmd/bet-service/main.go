package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	bhttp "github.com/radieske/p2p-bet-ledger/internal/bet-service/http"
	"github.com/radieske/p2p-bet-ledger/internal/betting"
	"github.com/radieske/p2p-bet-ledger/internal/engine"
	"github.com/radieske/p2p-bet-ledger/internal/shared/cache"
	"github.com/radieske/p2p-bet-ledger/internal/shared/config"
	"github.com/radieske/p2p-bet-ledger/internal/shared/db"
	"github.com/radieske/p2p-bet-ledger/internal/shared/kafka"
	"github.com/radieske/p2p-bet-ledger/internal/shared/logger"
	"github.com/radieske/p2p-bet-ledger/internal/shared/metrics"
	"github.com/radieske/p2p-bet-ledger/internal/shared/producer"
	"github.com/radieske/p2p-bet-ledger/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	log, err := logger.New("bet-service", cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("service", "bet-service"), zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres: mesmo ledger da wallet; o advisory lock serializa os dois serviços
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	st := postgres.New(pg)
	if err := st.Migrate(ctx); err != nil {
		log.Fatal("postgres migrate", zap.Error(err))
	}

	// Redis: apostas movimentam saldo, então o cache da wallet é atualizado daqui também
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka producers: ledger_transactions e bet_updates
	if cfg.Env == "local" || cfg.Env == "dev" {
		if err := kafka.EnsureTopics(ctx, cfg.KafkaBrokers, cfg.TopicTransactions, cfg.TopicBetUpdates); err != nil {
			log.Warn("kafka ensure topics", zap.Error(err))
		}
	}
	txWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicTransactions)
	defer txWriter.Close()
	betWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetUpdates)
	defer betWriter.Close()

	eng := engine.New(st, engine.Options{
		Limits:    betting.Limits{MinCents: cfg.MinBetCents, MaxCents: cfg.MaxBetCents},
		Logger:    log,
		Metrics:   engine.NewMetrics(prometheus.DefaultRegisterer),
		Publisher: producer.NewKafkaPublisher(txWriter, betWriter),
		Cache:     cache.NewBalanceCache(rdb, cfg.BalanceCacheTTL),
	})

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.Check{Name: "postgres", Fn: eng.Ping},
		metrics.Check{Name: "redis", Fn: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)

	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort, // ex: 8083
		Handler:           bhttp.NewServer(log, eng).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("api listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("api srv", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(sctx)
	_ = metricsSrv.Shutdown(sctx)
}
