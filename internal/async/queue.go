package async

import (
	"context"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docextract/internal/extract"
)

// Queue accepts extraction jobs. AddJob never blocks and reports whether the
// job was accepted; a job for a file that is already queued or running is not.
type Queue interface {
	AddJob(job extract.Job) bool
	Shutdown(ctx context.Context)
}

// BlobSource supplies file bytes when a job carries no GetData of its own.
type BlobSource interface {
	Get(ctx context.Context, fileID uuid.UUID) ([]byte, error)
}

// Stats is a snapshot of coordinator counters.
type Stats struct {
	Enqueued     uint64
	Deduplicated uint64
	Completed    uint64
	Failed       uint64
	Dropped      uint64
	Queued       int
	Running      bool
}
