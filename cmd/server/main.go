package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Faisal123786/MeetVideoCallP2P/internal/app"
	httpx "github.com/Faisal123786/MeetVideoCallP2P/internal/http"
	sig "github.com/Faisal123786/MeetVideoCallP2P/internal/signal"
	"github.com/Faisal123786/MeetVideoCallP2P/internal/ws"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	logger := app.NewLogger(cfg.Env)

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Optional redis mirror for room lifecycle events
	var sink sig.EventSink = sig.NopSink{}
	if cfg.RedisAddr != "" {
		mirror, err := ws.NewRedisEvents(ctx, cfg, logger)
		if err != nil {
			logger.Error("redis connect", "err", err)
			os.Exit(1)
		}
		defer mirror.Close()
		sink = mirror
	}

	// Signaling broker (single event-processing actor)
	broker := sig.NewBroker(logger, sink)
	go broker.Run(ctx)

	// HTTP + WS router
	router := httpx.NewRouter(cfg, logger, broker)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("server.listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server.crash", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("server.shutdown.start")

	// shutdown
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)

	logger.Info("server.shutdown.complete")
	_ = os.Stdout.Sync()
}
