package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/docextract/internal/app"
	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/ingest"
	"github.com/joseph-ayodele/docextract/internal/server"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	n, err := a.Resume(ctx)
	if err != nil {
		logger.Error("resume failed", "error", err)
	} else {
		logger.Info("resume pass done", "jobs", n)
	}

	health := server.NewHealthService(a.DB, 15*time.Second, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		health.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return server.Serve(gctx, cfg.Server.GRPCAddr, health, logger)
	})
	if len(cfg.Ingest.WatchDirs) > 0 {
		g.Go(func() error {
			err := ingest.Watch(gctx, a.Ingestor, ingest.WatchConfig{
				Roots:       cfg.Ingest.WatchDirs,
				InitialScan: false,
				Debounce:    cfg.Ingest.Debounce,
				SkipHidden:  true,
				Logger:      logger,
			}, cfg.OCR.Lang)
			if gctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	logger.Info("docextractd started", "grpc_addr", cfg.Server.GRPCAddr, "db_driver", cfg.Database.Driver, "watch_dirs", cfg.Ingest.WatchDirs)
	if err := g.Wait(); err != nil {
		logger.Error("daemon stopped with error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	st := a.Coordinator.Stats()
	logger.Info("shutting down", "queued", st.Queued, "running", st.Running, "completed", st.Completed)
	a.Close(shutdownCtx)
}
