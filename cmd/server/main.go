// Command server runs the security layer with its operator HTTP surface and
// background tasks.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"bastion/internal/platform/config"
	"bastion/internal/platform/httpserver"
	"bastion/internal/platform/logger"
	"bastion/internal/platform/metrics"
	"bastion/internal/platform/tracing"
	"bastion/internal/security"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("bastion", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "", "path to a YAML configuration file")
	envFile := flagSet.String("env-file", ".env", "dotenv file read before the environment")
	printConfig := flagSet.Bool("print-config", false, "print the effective configuration with secrets masked and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", *envFile, err)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	if *printConfig {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg.Redacted())
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	filled, err := cfg.FillEphemeralKeys()
	if err != nil {
		return err
	}
	if len(filled) > 0 {
		log.Warn("generated ephemeral keys, restarts will invalidate sessions and signatures", "keys", filled)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(ctx, cfg.Tracing, cfg.Environment, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error("tracing shutdown failed", "error", err)
		}
	}()

	backends, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backends.Close()

	reg := metrics.NewRegistry()
	app, err := buildApp(ctx, cfg, backends, reg, log)
	if err != nil {
		return err
	}
	if err := bootstrapAdmin(ctx, app, log); err != nil {
		return err
	}

	if err := app.security.Start(ctx); err != nil {
		return fmt.Errorf("start security tasks: %w", err)
	}
	defer func() {
		if err := app.security.Close(); err != nil {
			log.Error("security shutdown failed", "error", err)
		}
	}()
	if err := app.security.RunTask(ctx, security.TaskCompliance); err != nil {
		log.Warn("initial compliance assessment failed", "error", err)
	}

	srv := httpserver.New(cfg.Server.Addr, app.router)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("operator surface listening", "addr", cfg.Server.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func componentLogger(log *slog.Logger, name string) *slog.Logger {
	return log.With("component", name)
}
