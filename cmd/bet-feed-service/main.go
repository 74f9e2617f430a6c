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

	"github.com/radieske/p2p-bet-ledger/internal/bet-feed/cache"
	"github.com/radieske/p2p-bet-ledger/internal/bet-feed/consumer"
	httpapi "github.com/radieske/p2p-bet-ledger/internal/bet-feed/http"
	"github.com/radieske/p2p-bet-ledger/internal/bet-feed/pubsub"
	"github.com/radieske/p2p-bet-ledger/internal/bet-feed/ws"
	sharedcache "github.com/radieske/p2p-bet-ledger/internal/shared/cache"
	"github.com/radieske/p2p-bet-ledger/internal/shared/config"
	"github.com/radieske/p2p-bet-ledger/internal/shared/kafka"
	"github.com/radieske/p2p-bet-ledger/internal/shared/logger"
	"github.com/radieske/p2p-bet-ledger/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New("bet-feed-service", cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Instancia cache Redis do estado das apostas
	rcache := cache.NewRedisCache(redisClient, cfg.BetStateTTL)

	// Configura o consumer Kafka (consumer group bet-feed)
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicBetUpdates, "bet-feed")
	defer reader.Close()

	// Métricas Prometheus para monitoramento do processamento
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "bet_feed_messages_consumed_total", Help: "mensagens consumidas"})
	cached := prometheus.NewCounter(prometheus.CounterOpts{Name: "bet_feed_cache_sets_total", Help: "sets no cache"})
	broadcasts := prometheus.NewCounter(prometheus.CounterOpts{Name: "bet_feed_broadcasts_total", Help: "publicações no pub/sub"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bet_feed_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, cached, broadcasts, errorsBy)

	// Processor: Kafka -> Redis (cache + pub/sub)
	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		Cache:       rcache,
		Broadcaster: pubsub.NewRedisBroadcaster(redisClient, cfg.RedisPubSubChannel),
		OnConsumed:  consumed.Inc,
		OnCached:    cached.Inc,
		OnBroadcast: broadcasts.Inc,
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}
	go func() {
		if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("processor stopped", zap.Error(err))
		}
	}()

	// Hub WebSocket alimentado pelo pub/sub; cada réplica recebe todos os updates
	hub := ws.NewHub(func(*http.Request) bool { return true })
	ws.StartRedisSubscriber(ctx, redisClient, cfg.RedisPubSubChannel, hub, log)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.Check{Name: "redis", Fn: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	)

	api := &httpapi.API{Log: log, Cache: rcache, WS: hub.HandleWS}
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort, // ex: 8084
		Handler:           api.Router(),
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
