package extract

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/ocr"
)

// ErrBusy is returned when an extractor is entered while it is already
// processing a document. Callers must serialize through the coordinator.
var ErrBusy = errors.New("extractor busy")

// Location identifies one unit of extracted text. Page is 1-based; 0 means the
// unit has no page (a whole image or an HTML document).
type Location struct {
	Page  int        `json:"page,omitempty"`
	Scale float64    `json:"scale,omitempty"`
	Words []ocr.Word `json:"words,omitempty"`
}

// Paged reports whether the location carries a page number.
func (l Location) Paged() bool { return l.Page > 0 }

// SameUnit compares two locations by page only.
func (l Location) SameUnit(o Location) bool { return l.Page == o.Page }

// DataFunc loads a file's bytes. A nil slice with a nil error means the blob is gone.
type DataFunc func(ctx context.Context, fileID uuid.UUID) ([]byte, error)

// Job is one request to extract a file. SkipLocations lists units that were
// already persisted by an earlier run; empty means extract everything.
type Job struct {
	FileID        uuid.UUID
	MIMEType      string
	Lang          string
	SkipLocations []Location
	GetData       DataFunc
}

// Skips reports whether loc was already persisted.
func (j Job) Skips(loc Location) bool {
	for _, s := range j.SkipLocations {
		if s.SameUnit(loc) {
			return true
		}
	}
	return false
}

// Result is one unit of extracted text. IsFinished is set only on the last
// unit for a file. Failed marks a unit that could not be extracted; Text is
// empty and Error holds the reason.
type Result struct {
	FileID     uuid.UUID
	Text       string
	Location   Location
	IsFinished bool
	Failed     bool
	Error      string
}

// Emit hands a Result to the sinks. It returns before the extractor moves on;
// a non-nil error aborts the job.
type Emit func(ctx context.Context, r Result) error

// Extractor turns document bytes into Results.
type Extractor interface {
	Extract(ctx context.Context, job Job, data []byte, emit Emit) error
}

// withJob tags ctx with the job's file id unless the caller already did, and
// returns a logger carrying the context's correlation values.
func withJob(ctx context.Context, job Job, logger *slog.Logger) (context.Context, *slog.Logger) {
	if _, ok := common.FileIDFromContext(ctx); !ok {
		ctx = common.WithFileID(ctx, job.FileID)
	}
	return ctx, common.LoggerWith(ctx, logger)
}
