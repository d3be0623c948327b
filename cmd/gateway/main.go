package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/openapi-gateway/internal/config"
	"github.com/tjfontaine/openapi-gateway/internal/telemetry"
	"github.com/tjfontaine/openapi-gateway/pkg/gateway"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintf(stderr, "Usage: %s SPEC_FILE [SPEC_FILE...]\n", filepath.Base(args[0]))
		return 1
	}

	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger := newLogger(cfg.Log, stdout)
	slog.SetDefault(logger)

	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.Init(cfg.Tracing, version, stdout, logger)
		if err != nil {
			logger.Error("failed to initialize tracer", slog.String("error", err.Error()))
			return 1
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := gateway.New(
		gateway.WithConfig(cfg),
		gateway.WithLogger(logger),
		gateway.WithVersion(version),
	)
	if err != nil {
		logger.Error("failed to create gateway", slog.String("error", err.Error()))
		return 1
	}

	if err := gw.Mount(ctx, args[1:]...); err != nil {
		if errors.Is(err, gateway.ErrNothingMounted) {
			logger.Error("refusing to start", slog.String("error", err.Error()))
		} else {
			logger.Error("failed to mount API documents", slog.String("error", err.Error()))
		}
		return 1
	}

	if err := gw.Start(ctx); err != nil {
		logger.Error("failed to start gateway", slog.String("error", err.Error()))
		return 1
	}

	code := 0
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping gateway")
	case err := <-gw.Errors():
		logger.Error("gateway failed", slog.String("error", err.Error()))
		code = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		return 1
	}
	return code
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
