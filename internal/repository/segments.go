package repository

import (
	"context"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/extract"
)

// Segment is one persisted unit of extracted text.
type Segment struct {
	FileID    uuid.UUID
	Text      string
	Location  extract.Location
	Failed    bool
	Error     string
	CreatedAt time.Time
}

type SegmentRepository interface {
	ListByFile(ctx context.Context, fileID uuid.UUID) ([]Segment, error)
	FinishedLocations(ctx context.Context, fileID uuid.UUID) ([]extract.Location, error)
}

type segmentRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewSegmentRepository(db *DB, logger *slog.Logger) SegmentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &segmentRepo{db: db, logger: logger}
}

// ListByFile returns the file's segments in page order.
func (r *segmentRepo) ListByFile(ctx context.Context, fileID uuid.UUID) ([]Segment, error) {
	sel := r.db.builder().Select("file_id", "page", "text", "location", "failed", "error", "created_at").
		From(r.db.builder().Table(tableSegments)).
		Where(entsql.EQ("file_id", fileID)).
		OrderBy("page")
	var out []Segment
	err := queryBuilt(ctx, r.db.drv, sel, func(rows *entsql.Rows) error {
		var (
			s    Segment
			page int
			raw  string
		)
		if err := rows.Scan(&s.FileID, &page, &s.Text, &raw, &s.Failed, &s.Error, &s.CreatedAt); err != nil {
			return err
		}
		loc, err := decodeLocation(page, raw)
		if err != nil {
			return err
		}
		s.Location = loc
		out = append(out, s)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to list segments", "file_id", fileID, "error", err)
		return nil, common.NewAppError(common.CodeDatabase, "list segments", err)
	}
	return out, nil
}

// FinishedLocations returns the units already persisted for a file. Only the
// page is loaded; skip membership is decided by page alone.
func (r *segmentRepo) FinishedLocations(ctx context.Context, fileID uuid.UUID) ([]extract.Location, error) {
	sel := r.db.builder().Select("page").
		From(r.db.builder().Table(tableSegments)).
		Where(entsql.EQ("file_id", fileID)).
		OrderBy("page")
	var out []extract.Location
	err := queryBuilt(ctx, r.db.drv, sel, func(rows *entsql.Rows) error {
		var page int
		if err := rows.Scan(&page); err != nil {
			return err
		}
		out = append(out, extract.Location{Page: page})
		return nil
	})
	if err != nil {
		r.logger.Error("failed to load finished locations", "file_id", fileID, "error", err)
		return nil, common.NewAppError(common.CodeDatabase, "finished locations", err)
	}
	return out, nil
}
