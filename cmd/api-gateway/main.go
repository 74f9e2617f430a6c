package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-ledger/internal/shared/config"
	"github.com/radieske/p2p-bet-ledger/internal/shared/logger"
)

func rp(log *zap.Logger, to string) *httputil.ReverseProxy {
	u, err := url.Parse(to)
	if err != nil {
		log.Fatal("invalid upstream url", zap.String("url", to), zap.Error(err))
	}
	p := httputil.NewSingleHostReverseProxy(u)
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("upstream failed", zap.String("upstream", u.Host), zap.String("path", r.URL.Path), zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
	}
	return p
}

func main() {
	cfg := config.Load()
	log, err := logger.New("api-gateway", cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	mux := http.NewServeMux()

	// wallet (ex.: /api/wallet/v1/wallets/* -> wallet-service)
	mux.Handle("/api/wallet/", http.StripPrefix("/api/wallet", rp(log, cfg.WalletServiceURL)))

	// bets (ex.: /api/bets/v1/events/* -> bet-service)
	mux.Handle("/api/bets/", http.StripPrefix("/api/bets", rp(log, cfg.BetServiceURL)))

	// feed (REST + /api/feed/ws; o ReverseProxy repassa o upgrade do WebSocket)
	mux.Handle("/api/feed/", http.StripPrefix("/api/feed", rp(log, cfg.FeedServiceURL)))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           withCORS(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("api-gateway listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("gateway failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(sctx)
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
