package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/docextract/constants"
	"github.com/joseph-ayodele/docextract/internal/extract"
	"github.com/joseph-ayodele/docextract/internal/repository"
)

// FSIngestor reads from the local filesystem.
type FSIngestor struct {
	Files       FileCreator
	Blobs       BlobWriter
	Queue       Enqueuer
	MaxFileSize int64 // 0 -> unlimited
	logger      *slog.Logger
}

func NewFSIngestor(files FileCreator, blobs BlobWriter, queue Enqueuer, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{
		Files:  files,
		Blobs:  blobs,
		Queue:  queue,
		logger: logger,
	}
}

func (i *FSIngestor) IngestPath(ctx context.Context, path, lang string) (IngestionResult, error) {
	var out IngestionResult

	abs, err := filepath.Abs(path)
	if err != nil {
		i.logger.Error("abs path error", "path", path, "error", err)
		return out, err
	}

	data, err := i.read(abs)
	if err != nil {
		i.logger.Error("read error", "path", abs, "error", err)
		return out, err
	}

	mimeType := DetectMIME(abs, data)
	if !constants.IsHandled(mimeType) {
		i.logger.Warn("unsupported file type", "path", abs, "mime_type", mimeType)
		return out, fmt.Errorf("unsupported file type %q", mimeType)
	}

	row, err := i.Files.Create(ctx, repository.NewFile{
		Filename:   filepath.Base(abs),
		SourcePath: abs,
		MIMEType:   mimeType,
		Lang:       lang,
		Size:       int64(len(data)),
	})
	if err != nil {
		return out, err
	}
	if err := i.Blobs.Put(ctx, row.ID, data); err != nil {
		i.logger.Error("store blob failed", "file_id", row.ID, "error", err)
		return out, fmt.Errorf("store blob: %w", err)
	}

	queued := i.Queue.AddJob(extract.Job{
		FileID:   row.ID,
		MIMEType: row.MIMEType,
		Lang:     row.Lang,
	})
	i.logger.Info("file ingested", "file_id", row.ID, "path", abs, "mime_type", row.MIMEType, "size", row.Size, "queued", queued)

	return IngestionResult{
		SourcePath: abs,
		FileID:     row.ID.String(),
		MIMEType:   row.MIMEType,
		Size:       row.Size,
		Queued:     queued,
	}, nil
}

func (i *FSIngestor) read(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		if err := f.Close(); err != nil {
			i.logger.Warn("close file error", "path", path, "error", err)
		}
	}(f)

	var r io.Reader = f
	if i.MaxFileSize > 0 {
		r = io.LimitReader(f, i.MaxFileSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if i.MaxFileSize > 0 && int64(len(data)) > i.MaxFileSize {
		return nil, fmt.Errorf("file exceeds %d bytes", i.MaxFileSize)
	}
	if len(data) == 0 {
		return nil, errors.New("empty file")
	}
	return data, nil
}

// IngestDirectory walks root, skips hidden if requested,
// and calls IngestPath for each file. Returns per-file results + aggregate stats.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root, lang string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path, lang)
		if err != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: err.Error()})
			stats.Failed++
			return nil
		}

		results = append(results, r)
		stats.Succeeded++
		if r.Queued {
			stats.Queued++
		}
		return nil
	})

	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}
