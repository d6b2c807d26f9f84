// Package resume re-enqueues extractions that did not finish before the last
// shutdown.
package resume

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/docextract/constants"
	"github.com/joseph-ayodele/docextract/internal/extract"
	"github.com/joseph-ayodele/docextract/internal/repository"
)

// Store reports files whose extraction has not finished.
type Store interface {
	FindUnfinished(ctx context.Context, mimeTypes []string) ([]repository.UnfinishedFile, error)
}

// Enqueuer accepts jobs; see async.Coordinator.
type Enqueuer interface {
	AddJob(job extract.Job) bool
}

type Controller struct {
	store     Store
	queue     Enqueuer
	mimeTypes []string
	logger    *slog.Logger
}

func NewController(store Store, queue Enqueuer, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:     store,
		queue:     queue,
		mimeTypes: constants.HandledMIMETypes,
		logger:    logger,
	}
}

// Run enqueues one job per unfinished file, skipping the units it already has.
// It returns the number of jobs accepted by the queue.
func (c *Controller) Run(ctx context.Context) (int, error) {
	files, err := c.store.FindUnfinished(ctx, c.mimeTypes)
	if err != nil {
		return 0, fmt.Errorf("find unfinished files: %w", err)
	}
	n := 0
	for _, f := range files {
		job := extract.Job{
			FileID:        f.ID,
			MIMEType:      f.MIMEType,
			Lang:          f.Lang,
			SkipLocations: f.FinishedLocations,
		}
		if c.queue.AddJob(job) {
			n++
			c.logger.Debug("resume job queued", "file_id", f.ID, "skip", len(f.FinishedLocations))
		}
	}
	c.logger.Info("resume pass complete", "unfinished", len(files), "queued", n)
	return n, nil
}
