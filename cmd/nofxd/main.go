package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/benfinklea/nofx/internal/agentpool"
	"github.com/benfinklea/nofx/internal/api"
	"github.com/benfinklea/nofx/internal/config"
	"github.com/benfinklea/nofx/internal/events"
	"github.com/benfinklea/nofx/internal/journal"
	"github.com/benfinklea/nofx/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	bus := events.NewBus()
	defer bus.Close()

	pool := agentpool.New(bus, logger)
	engine := scheduler.NewEngine(pool, cfg, bus,
		scheduler.WithLogger(logger),
		scheduler.WithNotifier(logNotifier{logger: logger}),
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Journal.Path != "" {
		jnl, jerr := journal.Open(gctx, cfg.Journal.Path)
		if jerr != nil {
			logger.Fatal("failed to open journal", zap.String("path", cfg.Journal.Path), zap.Error(jerr))
		}
		defer jnl.Close()

		sub := bus.SubscribeAll(0)
		g.Go(func() error {
			defer sub.Unsubscribe()
			if err := jnl.Follow(gctx, sub); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("journal: %w", err)
			}
			return nil
		})
		logger.Info("journal enabled", zap.String("path", cfg.Journal.Path))
	}

	// Reconcile on every agent availability change.
	g.Go(func() error {
		if err := engine.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("engine: %w", err)
		}
		return nil
	})

	handler := api.NewHandler(engine, pool, logger)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: handler.Router(),
	}

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shutdown with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// loadConfig honors NOFX_CONFIG for the project path, falling back to the
// conventional global/project locations.
func loadConfig() (*config.Config, error) {
	if path := os.Getenv("NOFX_CONFIG"); path != "" {
		return config.Load("", path)
	}
	return config.LoadDefault()
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// logNotifier surfaces operator notifications through the structured log.
type logNotifier struct {
	logger *zap.Logger
}

func (n logNotifier) ShowInformation(msg string) { n.logger.Info(msg) }
func (n logNotifier) ShowWarning(msg string)     { n.logger.Warn(msg) }
func (n logNotifier) ShowError(msg string)       { n.logger.Error(msg) }
