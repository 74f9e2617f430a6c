package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-ledger/internal/settlement-worker/client"
	"github.com/radieske/p2p-bet-ledger/internal/settlement-worker/consumer"
	"github.com/radieske/p2p-bet-ledger/internal/shared/config"
	"github.com/radieske/p2p-bet-ledger/internal/shared/kafka"
	"github.com/radieske/p2p-bet-ledger/internal/shared/logger"
	"github.com/radieske/p2p-bet-ledger/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New("settlement-worker", cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Env == "local" || cfg.Env == "dev" {
		if err := kafka.EnsureTopics(ctx, cfg.KafkaBrokers, cfg.TopicEventResults, cfg.TopicEventResultsDLQ); err != nil {
			log.Warn("kafka ensure topics", zap.Error(err))
		}
	}

	// Kafka consumer: event_results (consumer group settlement-worker, commit manual)
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicEventResults, "settlement-worker")
	defer reader.Close()

	// DLQ opcional
	var dlq consumer.MessageWriter
	if cfg.TopicEventResultsDLQ != "" {
		w := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicEventResultsDLQ)
		defer w.Close()
		dlq = w
	}

	// Métricas Prometheus para monitoramento do processamento
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_messages_consumed_total", Help: "mensagens consumidas"})
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_results_applied_total", Help: "resultados aplicados por outcome"}, []string{"outcome"})
	deadLettered := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_dead_lettered_total", Help: "mensagens enviadas para a DLQ"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, settled, deadLettered, errorsBy)

	bets := client.New(cfg.BetServiceURL)
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log)

	proc := &consumer.Processor{
		Log:            log,
		Reader:         reader,
		Settler:        bets,
		DLQ:            dlq,
		OnConsumed:     consumed.Inc,
		OnSettled:      func(o string) { settled.WithLabelValues(o).Inc() },
		OnDeadLettered: deadLettered.Inc,
		OnError:        func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	log.Info("settlement-worker started",
		zap.String("consume", cfg.TopicEventResults),
		zap.String("dlq", cfg.TopicEventResultsDLQ),
		zap.String("bet_service", cfg.BetServiceURL),
	)
	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("processor stopped", zap.Error(err))
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(sctx)
}
