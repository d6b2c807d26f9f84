// Package notify tells the search indexer that extracted text was persisted.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event describes one persisted segment. Finished is set on the segment that
// completed the file, together with the file's final Status.
type Event struct {
	FileID   uuid.UUID `json:"file_id"`
	Page     int       `json:"page,omitempty"`
	Failed   bool      `json:"failed,omitempty"`
	Finished bool      `json:"finished"`
	Status   string    `json:"status,omitempty"`
	At       time.Time `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
	Close() error
}

// LogNotifier only logs events.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, e Event) error {
	if e.Finished {
		n.logger.Info("file extracted", "file_id", e.FileID, "status", e.Status)
		return nil
	}
	n.logger.Debug("segment extracted", "file_id", e.FileID, "page", e.Page, "failed", e.Failed)
	return nil
}

func (n *LogNotifier) Close() error { return nil }

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, n := range m {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
