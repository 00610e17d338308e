package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Prince200510/mini-meet-prince/internal/config"
	"github.com/Prince200510/mini-meet-prince/internal/logging"
	"github.com/Prince200510/mini-meet-prince/internal/relay"
	"github.com/Prince200510/mini-meet-prince/internal/server"
	"github.com/Prince200510/mini-meet-prince/internal/version"
)

func main() {
	port := flag.Int("port", 0, "listen port (overrides PORT)")
	static := flag.String("static", "", "directory served at / (overrides STATIC_DIR)")
	flag.Parse()

	logger := logging.Init(logging.Options{DefaultLevel: slog.LevelInfo})

	cfg, err := config.LoadServer(config.ServerOptions{Port: *port, StaticDir: *static})
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Create the Hub and run its event loop
	hub := relay.NewHub(logger)
	go hub.Run(ctx)

	// 2. Register the routes
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.NewMux(hub, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 3. Start the server
	go func() {
		logger.Info("starting relay", "addr", cfg.Addr(), "version", version.String(), "static", cfg.StaticDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("relay stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", "error", err)
	}
	<-hub.Done()
}
