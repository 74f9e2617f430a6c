package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-ledger/internal/engine"
	"github.com/radieske/p2p-bet-ledger/internal/ledger-auditor/auditor"
	"github.com/radieske/p2p-bet-ledger/internal/shared/config"
	"github.com/radieske/p2p-bet-ledger/internal/shared/db"
	"github.com/radieske/p2p-bet-ledger/internal/shared/kafka"
	"github.com/radieske/p2p-bet-ledger/internal/shared/logger"
	"github.com/radieske/p2p-bet-ledger/internal/shared/metrics"
	"github.com/radieske/p2p-bet-ledger/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	log, err := logger.New("ledger-auditor", cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	st := postgres.New(pg)
	if err := st.Migrate(ctx); err != nil {
		log.Fatal("postgres migrate", zap.Error(err))
	}

	if cfg.Env == "local" || cfg.Env == "dev" {
		if err := kafka.EnsureTopics(ctx, cfg.KafkaBrokers, cfg.TopicIntegrity); err != nil {
			log.Warn("kafka ensure topics", zap.Error(err))
		}
	}
	alerts := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicIntegrity)
	defer alerts.Close()

	// engine só para auditoria: verify pega o mesmo lock de escrita dos serviços
	// e expõe o gauge ledger_chain_valid
	eng := engine.New(st, engine.Options{
		Logger:  log,
		Metrics: engine.NewMetrics(prometheus.DefaultRegisterer),
	})

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_audit_runs_total", Help: "verificações por resultado"}, []string{"valid"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_audit_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(runs, errorsBy)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log, metrics.Check{Name: "postgres", Fn: eng.Ping})

	a := &auditor.Auditor{
		Log:      log,
		Verifier: eng,
		Alerts:   alerts,
		Interval: cfg.AuditInterval,
		OnRun: func(valid bool) {
			if valid {
				runs.WithLabelValues("true").Inc()
				return
			}
			runs.WithLabelValues("false").Inc()
		},
		OnError: func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	log.Info("ledger-auditor started", zap.Duration("interval", cfg.AuditInterval), zap.String("alerts", cfg.TopicIntegrity))
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("auditor stopped", zap.Error(err))
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(sctx)
}
