package common

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRunID  contextKey = "run_id"
	ContextKeyFileID contextKey = "file_id"
)

// WithRunID tags the context with one extraction attempt. A file resumed after
// a restart gets a new run id.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// RunIDFromContext extracts the run ID from context
func RunIDFromContext(ctx context.Context) string {
	if runID, ok := ctx.Value(ContextKeyRunID).(string); ok {
		return runID
	}
	return ""
}

// WithFileID tags the context with the file being extracted
func WithFileID(ctx context.Context, fileID uuid.UUID) context.Context {
	return context.WithValue(ctx, ContextKeyFileID, fileID)
}

// FileIDFromContext extracts the file ID from context
func FileIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ContextKeyFileID).(uuid.UUID)
	return id, ok
}

// LoggerWith returns logger annotated with the correlation values found in ctx.
func LoggerWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if id, ok := FileIDFromContext(ctx); ok {
		logger = logger.With("file_id", id)
	}
	if rid := RunIDFromContext(ctx); rid != "" {
		logger = logger.With("run_id", rid)
	}
	return logger
}
