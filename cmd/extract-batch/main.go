package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docextract/internal/app"
	"github.com/joseph-ayodele/docextract/internal/common"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup always runs.
func run() int {
	var (
		root       = flag.String("root", "", "directory to ingest (required)")
		lang       = flag.String("lang", "", "OCR language (default from OCR_LANG)")
		out        = flag.String("out", "", "write an XLSX export of the batch to this path")
		skipHidden = flag.Bool("skip-hidden", true, "skip dot files and directories")
		timeout    = flag.Duration("timeout", 2*time.Hour, "overall timeout")
	)
	flag.Parse()

	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	logger := common.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	if *root == "" {
		logger.Error("missing -root")
		flag.Usage()
		return 2
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 2
	}
	if *lang == "" {
		*lang = cfg.OCR.Lang
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return 1
	}
	defer a.Close(context.Background())

	start := time.Now()
	results, stats, err := a.Ingestor.IngestDirectory(ctx, *root, *lang, *skipHidden)
	if err != nil {
		logger.Error("ingest failed", "root", *root, "error", err)
		return 1
	}
	logger.Info("ingest done",
		"root", *root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"queued", stats.Queued,
		"failed", stats.Failed,
	)

	if err := a.Coordinator.WaitIdle(ctx); err != nil {
		logger.Error("extraction did not finish", "error", err)
		return 1
	}
	st := a.Coordinator.Stats()
	logger.Info("extraction done",
		"completed", st.Completed,
		"failed", st.Failed,
		"dropped", st.Dropped,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if counts, err := a.Files.CountByStatus(ctx); err == nil {
		for status, n := range counts {
			logger.Info("file status", "status", status, "count", n)
		}
	}

	if *out == "" {
		return 0
	}
	var ids []uuid.UUID
	for _, r := range results {
		if id, err := uuid.Parse(r.FileID); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		logger.Warn("nothing to export")
		return 0
	}
	b, err := a.Export.ExportXLSX(ctx, ids, 0)
	if err != nil {
		logger.Error("export failed", "error", err)
		return 1
	}
	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		logger.Error("create output dir", "error", err)
		return 1
	}
	if err := os.WriteFile(*out, b, 0o644); err != nil {
		logger.Error("write export", "path", *out, "error", err)
		return 1
	}
	logger.Info("export written", "path", *out, "files", len(ids), "bytes", len(b))
	return 0
}
