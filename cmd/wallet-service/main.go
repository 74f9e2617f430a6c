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
	whttp "github.com/radieske/p2p-bet-ledger/internal/wallet-service/http"
)

func main() {
	cfg := config.Load()

	// Inicializa logger estruturado
	log, err := logger.New("wallet-service", cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("service", "wallet-service"), zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Conexão com Postgres: ledger, saldos e estado de auditoria
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	st := postgres.New(pg)
	if err := st.Migrate(ctx); err != nil {
		log.Fatal("postgres migrate", zap.Error(err))
	}

	// Cache de saldos no Redis
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka: transações confirmadas
	if cfg.Env == "local" || cfg.Env == "dev" {
		if err := kafka.EnsureTopics(ctx, cfg.KafkaBrokers, cfg.TopicTransactions); err != nil {
			log.Warn("kafka ensure topics", zap.Error(err))
		}
	}
	txWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicTransactions)
	defer txWriter.Close()

	eng := engine.New(st, engine.Options{
		Limits:    betting.Limits{MinCents: cfg.MinBetCents, MaxCents: cfg.MaxBetCents},
		Logger:    log,
		Metrics:   engine.NewMetrics(prometheus.DefaultRegisterer),
		Publisher: producer.NewKafkaPublisher(txWriter, nil),
		Cache:     cache.NewBalanceCache(rdb, cfg.BalanceCacheTTL),
	})

	// Servidor de métricas e health check
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.Check{Name: "postgres", Fn: eng.Ping},
		metrics.Check{Name: "redis", Fn: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)

	// Servidor HTTP público (API de wallet)
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort, // ex: 8082
		Handler:           whttp.NewServer(log, eng).Router(),
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
	shutdown(log, apiSrv, metricsSrv)
}

func shutdown(log *zap.Logger, srvs ...*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, s := range srvs {
		if err := s.Shutdown(ctx); err != nil {
			log.Warn("server shutdown", zap.String("addr", s.Addr), zap.Error(err))
		}
	}
}
