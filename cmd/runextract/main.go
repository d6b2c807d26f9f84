package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docextract/internal/app"
	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/extract"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup always runs.
func run() int {
	var (
		force   = flag.Bool("force", false, "discard persisted text and extract from scratch (file id only)")
		lang    = flag.String("lang", "", "OCR language, e.g. eng or chi_sim (default from OCR_LANG)")
		timeout = flag.Duration("timeout", 30*time.Minute, "overall timeout")
		show    = flag.Bool("print", true, "print extracted text to stdout")
	)
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: runextract [flags] <path | file-id>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	logger := common.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 2
	}
	if *lang == "" {
		*lang = cfg.OCR.Lang
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return 1
	}
	defer a.Close(context.Background())

	start := time.Now()
	fileID, err := submit(ctx, a, flag.Arg(0), *lang, *force)
	if err != nil {
		logger.Error("submit failed", "arg", flag.Arg(0), "error", err)
		return 1
	}
	if err := a.Coordinator.WaitIdle(ctx); err != nil {
		logger.Error("extraction did not finish", "file_id", fileID, "error", err)
		return 1
	}

	f, err := a.Files.GetByID(ctx, fileID)
	if err != nil {
		logger.Error("load file", "file_id", fileID, "error", err)
		return 1
	}
	segs, err := a.Segments.ListByFile(ctx, fileID)
	if err != nil {
		logger.Error("load segments", "file_id", fileID, "error", err)
		return 1
	}
	logger.Info("text extraction done",
		"file_id", fileID,
		"status", f.Status,
		"finished", f.TextExtracted,
		"segments", len(segs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if *show {
		for _, s := range segs {
			if s.Failed {
				fmt.Printf("--- page %d failed: %s\n", s.Location.Page, s.Error)
				continue
			}
			if s.Location.Paged() {
				fmt.Printf("--- page %d\n", s.Location.Page)
			}
			fmt.Println(s.Text)
		}
	}
	if !f.TextExtracted {
		return 1
	}
	return 0
}

// submit queues the job for an existing file id, or ingests a path.
func submit(ctx context.Context, a *app.App, arg, lang string, force bool) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		res, err := a.Ingestor.IngestPath(ctx, arg, lang)
		if err != nil {
			return uuid.Nil, err
		}
		return uuid.Parse(res.FileID)
	}

	f, err := a.Files.GetByID(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if force {
		if f, err = a.Files.ResetExtraction(ctx, id); err != nil {
			return uuid.Nil, err
		}
	} else if f.TextExtracted {
		return id, nil
	}
	skip, err := a.Segments.FinishedLocations(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if f.Lang != "" {
		lang = f.Lang
	}
	a.Coordinator.AddJob(extract.Job{
		FileID:        f.ID,
		MIMEType:      f.MIMEType,
		Lang:          lang,
		SkipLocations: skip,
	})
	return id, nil
}
