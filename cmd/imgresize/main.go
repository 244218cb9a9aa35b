package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/danielloader/imgresize/internal/config"
	"github.com/danielloader/imgresize/internal/httpmw"
	"github.com/danielloader/imgresize/internal/wire"
)

func main() {
	// Self-contained healthcheck for scratch containers (no curl/wget available).
	// Usage: imgresize -healthcheck
	if len(os.Args) > 1 && os.Args[1] == "-healthcheck" {
		resp, err := http.Get("http://127.0.0.1:8080/healthz")
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Env.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler, err := wire.Build(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("failed to wire handler", "error", err)
		os.Exit(1)
	}

	logged := httpmw.Logging(handler)

	// Wrap with h2c for cleartext HTTP/2 support alongside HTTP/1.1.
	h2s := &http2.Server{}
	server := &http.Server{
		Addr:    cfg.Env.ListenAddr,
		Handler: h2c.NewHandler(logged, h2s),
	}

	go func() {
		slog.Info("starting server", "addr", cfg.Env.ListenAddr, "origins", len(cfg.File.Origins))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	// Drain in-flight background cache writes (the afterResponse dispatch)
	// before the process exits.
	handler.Shutdown(10 * time.Second)

	slog.Info("shutdown complete")
}
