// Package ingest turns files on disk into stored uploads with a queued
// extraction job.
package ingest

import (
	"context"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docextract/internal/extract"
	"github.com/joseph-ayodele/docextract/internal/repository"
)

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath string
	FileID     string
	MIMEType   string
	Size       int64
	Queued     bool
	Err        string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Queued    uint32
	Failed    uint32
}

// Ingestor is the behavior the binaries depend on.
type Ingestor interface {
	// IngestPath ingests a single file.
	IngestPath(ctx context.Context, path, lang string) (IngestionResult, error)
	// IngestDirectory ingests all matching files under root.
	IngestDirectory(ctx context.Context, root, lang string, skipHidden bool) ([]IngestionResult, DirStats, error)
}

// FileCreator records uploads.
type FileCreator interface {
	Create(ctx context.Context, f repository.NewFile) (*repository.File, error)
}

// BlobWriter stores upload bytes.
type BlobWriter interface {
	Put(ctx context.Context, id uuid.UUID, data []byte) error
}

// Enqueuer accepts extraction jobs.
type Enqueuer interface {
	AddJob(job extract.Job) bool
}
