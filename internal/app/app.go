// Package app wires the extraction pipeline from configuration. Every binary
// builds the same graph: database, blob store, notifier, extractors,
// coordinator and the persistence sink registered on it.
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/joseph-ayodele/docextract/internal/async"
	"github.com/joseph-ayodele/docextract/internal/blob"
	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/export"
	"github.com/joseph-ayodele/docextract/internal/extract"
	"github.com/joseph-ayodele/docextract/internal/ingest"
	"github.com/joseph-ayodele/docextract/internal/notify"
	"github.com/joseph-ayodele/docextract/internal/ocr"
	"github.com/joseph-ayodele/docextract/internal/repository"
	"github.com/joseph-ayodele/docextract/internal/resume"
)

type App struct {
	Config      *common.Config
	DB          *repository.DB
	Files       repository.FileRepository
	Segments    repository.SegmentRepository
	Blobs       *blob.Store
	Notifier    notify.Notifier
	Coordinator *async.Coordinator
	Ingestor    *ingest.FSIngestor
	Export      *export.Service

	image  *extract.ImageExtractor
	logger *slog.Logger
}

// Build opens every dependency named by cfg and migrates the schema. On error
// whatever was already opened is closed again.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	if err = os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, common.NewAppError(common.CodeConfig, "create data directory", err)
	}

	a.DB, err = repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, common.NewAppError(common.CodeDatabase, "open database", err)
	}
	if err = a.DB.HealthCheck(ctx, cfg.Database.DialTimeout); err != nil {
		return nil, common.NewAppError(common.CodeDatabase, "ping database", err)
	}
	if err = a.DB.Migrate(ctx); err != nil {
		return nil, common.NewAppError(common.CodeDatabase, "migrate", err)
	}
	a.Files = repository.NewFileRepository(a.DB, logger)
	a.Segments = repository.NewSegmentRepository(a.DB, logger)

	a.Blobs, err = blob.Open(cfg.Storage.BlobPath)
	if err != nil {
		return nil, err
	}

	a.Notifier, err = newNotifier(ctx, cfg.Notify, logger)
	if err != nil {
		return nil, err
	}

	factory, err := ocr.NewFactory(ocr.Config{
		Engine:      cfg.OCR.Engine,
		Tesseract:   cfg.OCR.TesseractBin,
		TessdataDir: cfg.OCR.TessdataDir,
		PSM:         cfg.OCR.PSM,
	})
	if err != nil {
		return nil, common.NewAppError(common.CodeConfig, "ocr engine", err)
	}
	a.image = extract.NewImageExtractor(factory, logger,
		extract.WithHEICConverter(ocr.NewHEICConverter(cfg.OCR.HeicConverter, logger, nil)),
	)
	extractors := async.Extractors{
		PDF: extract.NewPDFExtractor(factory, logger,
			extract.WithRenderScale(cfg.OCR.RenderScale),
			extract.WithMaxConcurrency(cfg.OCR.MaxConcurrency),
		),
		Image: a.image,
		HTML:  extract.NewHTMLExtractor(logger),
	}

	a.Coordinator = async.NewCoordinator(extractors, a.Blobs, logger,
		async.WithJobTimeout(cfg.Queue.JobTimeout),
	)
	sink := repository.NewSink(a.DB, a.Notifier, logger)
	a.Coordinator.OnExtracted(sink.Save)

	a.Ingestor = ingest.NewFSIngestor(a.Files, a.Blobs, a.Coordinator, logger)
	a.Ingestor.MaxFileSize = cfg.Ingest.MaxFileSize
	a.Export = export.NewService(a.Files, a.Segments, logger)
	return a, nil
}

func newNotifier(ctx context.Context, cfg common.NotifyConfig, logger *slog.Logger) (notify.Notifier, error) {
	local := notify.NewLogNotifier(logger)
	if cfg.RedisAddr == "" {
		return local, nil
	}
	r, err := notify.NewRedisNotifier(ctx, notify.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Channel:  cfg.Channel,
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("publishing extraction events", "redis_addr", cfg.RedisAddr, "channel", cfg.Channel)
	return notify.Multi{local, r}, nil
}

// Resume enqueues every file left unfinished by a previous run.
func (a *App) Resume(ctx context.Context) (int, error) {
	return resume.NewController(a.Files, a.Coordinator, a.logger).Run(ctx)
}

// Close stops the coordinator first so no sink runs against a closed store.
func (a *App) Close(ctx context.Context) {
	if a.Coordinator != nil {
		a.Coordinator.Shutdown(ctx)
	}
	if a.image != nil {
		if err := a.image.Close(); err != nil {
			a.logger.Warn("close image extractor", "error", err)
		}
	}
	var errs []error
	if a.Notifier != nil {
		errs = append(errs, a.Notifier.Close())
	}
	if a.Blobs != nil {
		errs = append(errs, a.Blobs.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("close resources", "error", err)
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
