package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/docextract/constants"
	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/extract"
	"github.com/joseph-ayodele/docextract/internal/notify"
)

// Sink persists Results. Register Save with the coordinator's OnExtracted.
type Sink struct {
	db       *DB
	notifier notify.Notifier
	logger   *slog.Logger
}

func NewSink(db *DB, notifier notify.Notifier, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{db: db, notifier: notifier, logger: logger}
}

// Save stores one Result. The segment insert and, on the finishing Result, the
// completion flag flip happen in one transaction. A segment for a page that is
// already stored is ignored.
func (s *Sink) Save(ctx context.Context, r extract.Result) error {
	if _, ok := common.FileIDFromContext(ctx); !ok {
		ctx = common.WithFileID(ctx, r.FileID)
	}
	logger := common.LoggerWith(ctx, s.logger)

	loc, err := encodeLocation(r.Location)
	if err != nil {
		return err
	}

	var status constants.FileStatus
	err = s.db.inTx(ctx, func(tx dialect.Tx) error {
		ins := s.db.builder().Insert(tableSegments).
			Columns("file_id", "page", "text", "location", "failed", "error", "created_at").
			Values(r.FileID, r.Location.Page, r.Text, loc, r.Failed, r.Error, time.Now().UTC()).
			OnConflict(entsql.ConflictColumns("file_id", "page"), entsql.DoNothing())
		n, err := execBuilt(ctx, tx, ins)
		if err != nil {
			return fmt.Errorf("insert segment: %w", err)
		}
		if n == 0 {
			logger.Debug("segment already stored", "page", r.Location.Page)
		}
		if !r.IsFinished {
			return nil
		}
		status, err = s.finish(ctx, tx, r, logger)
		return err
	})
	if err != nil {
		logger.Error("failed to save result", "page", r.Location.Page, "error", err)
		return err
	}

	if s.notifier != nil {
		ev := notify.Event{
			FileID:   r.FileID,
			Page:     r.Location.Page,
			Failed:   r.Failed,
			Finished: r.IsFinished,
			Status:   string(status),
			At:       time.Now().UTC(),
		}
		if err := s.notifier.Notify(ctx, ev); err != nil {
			logger.Warn("indexer notification failed", "error", err)
		}
	}
	return nil
}

// finish flips text_extracted and records the aggregate status. It only
// touches rows still marked unfinished.
func (s *Sink) finish(ctx context.Context, tx dialect.Tx, r extract.Result, logger *slog.Logger) (constants.FileStatus, error) {
	total, failed, err := s.countSegments(ctx, tx, r)
	if err != nil {
		return "", err
	}
	status := aggregateStatus(total, failed)
	upd := s.db.builder().Update(tableFiles).
		Set("text_extracted", true).
		Set("status", string(status)).
		Set("error_count", failed).
		Set("extracted_at", time.Now().UTC()).
		Where(entsql.And(
			entsql.EQ("id", r.FileID),
			entsql.EQ("text_extracted", false),
		))
	n, err := execBuilt(ctx, tx, upd)
	if err != nil {
		return "", fmt.Errorf("mark file extracted: %w", err)
	}
	if n == 0 {
		logger.Warn("finishing result for a file that is missing or already extracted")
		return status, nil
	}
	logger.Info("file extraction finished",
		"status", status,
		"segments", total,
		"failed_segments", failed,
	)
	return status, nil
}

func (s *Sink) countSegments(ctx context.Context, tx dialect.Tx, r extract.Result) (total, failed int, err error) {
	count := func(p *entsql.Predicate) (int, error) {
		sel := s.db.builder().Select(entsql.Count("*")).
			From(s.db.builder().Table(tableSegments)).
			Where(p)
		var n int
		err := queryBuilt(ctx, tx, sel, func(rows *entsql.Rows) error { return rows.Scan(&n) })
		return n, err
	}
	if total, err = count(entsql.EQ("file_id", r.FileID)); err != nil {
		return 0, 0, fmt.Errorf("count segments: %w", err)
	}
	if failed, err = count(entsql.And(entsql.EQ("file_id", r.FileID), entsql.EQ("failed", true))); err != nil {
		return 0, 0, fmt.Errorf("count failed segments: %w", err)
	}
	return total, failed, nil
}

func aggregateStatus(total, failed int) constants.FileStatus {
	switch {
	case failed == 0:
		return constants.FileStatusComplete
	case failed >= total:
		return constants.FileStatusFailed
	default:
		return constants.FileStatusDegraded
	}
}
