package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docextract/constants"
	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/extract"
)

// File is a row of the files table.
type File struct {
	ID            uuid.UUID
	Filename      string
	SourcePath    string
	MIMEType      string
	Lang          string
	Size          int64
	TextExtracted bool
	Status        constants.FileStatus
	ErrorCount    int
	CreatedAt     time.Time
	ExtractedAt   *time.Time
}

// NewFile describes an uploaded file before it has an id.
type NewFile struct {
	Filename   string
	SourcePath string
	MIMEType   string
	Lang       string
	Size       int64
}

// UnfinishedFile is a file whose extraction has not finished, with the units
// already persisted for it.
type UnfinishedFile struct {
	File
	FinishedLocations []extract.Location
}

type FileRepository interface {
	Create(ctx context.Context, f NewFile) (*File, error)
	GetByID(ctx context.Context, id uuid.UUID) (*File, error)
	List(ctx context.Context, limit int) ([]File, error)
	FindUnfinished(ctx context.Context, mimeTypes []string) ([]UnfinishedFile, error)
	ResetExtraction(ctx context.Context, id uuid.UUID) (*File, error)
	CountByStatus(ctx context.Context) (map[constants.FileStatus]int, error)
}

type fileRepo struct {
	db       *DB
	segments SegmentRepository
	logger   *slog.Logger
}

func NewFileRepository(db *DB, logger *slog.Logger) FileRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &fileRepo{
		db:       db,
		segments: NewSegmentRepository(db, logger),
		logger:   logger,
	}
}

var fileColumns = []string{
	"id", "filename", "source_path", "mime_type", "lang", "size",
	"text_extracted", "status", "error_count", "created_at", "extracted_at",
}

func scanFile(rows *entsql.Rows) (File, error) {
	var (
		f           File
		status      string
		extractedAt sql.NullTime
	)
	err := rows.Scan(&f.ID, &f.Filename, &f.SourcePath, &f.MIMEType, &f.Lang, &f.Size,
		&f.TextExtracted, &status, &f.ErrorCount, &f.CreatedAt, &extractedAt)
	if err != nil {
		return f, err
	}
	f.Status = constants.FileStatus(status)
	if extractedAt.Valid {
		t := extractedAt.Time
		f.ExtractedAt = &t
	}
	return f, nil
}

func (r *fileRepo) Create(ctx context.Context, nf NewFile) (*File, error) {
	v := common.NewValidator().
		Field("filename", nf.Filename, common.Required).
		Field("mime_type", nf.MIMEType, common.Required)
	if err := v.Err(common.CodeValidation); err != nil {
		return nil, err
	}
	if nf.Lang == "" {
		nf.Lang = constants.DefaultLang
	}
	f := File{
		ID:         uuid.New(),
		Filename:   nf.Filename,
		SourcePath: nf.SourcePath,
		MIMEType:   constants.BaseMIME(nf.MIMEType),
		Lang:       nf.Lang,
		Size:       nf.Size,
		Status:     constants.FileStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	ins := r.db.builder().Insert(tableFiles).
		Columns("id", "filename", "source_path", "mime_type", "lang", "size", "text_extracted", "status", "error_count", "created_at").
		Values(f.ID, f.Filename, f.SourcePath, f.MIMEType, f.Lang, f.Size, false, string(f.Status), 0, f.CreatedAt)
	if _, err := execBuilt(ctx, r.db.drv, ins); err != nil {
		r.logger.Error("failed to create file", "filename", nf.Filename, "error", err)
		return nil, common.NewAppError(common.CodeDatabase, "create file", err)
	}
	r.logger.Debug("file created", "file_id", f.ID, "mime_type", f.MIMEType)
	return &f, nil
}

func (r *fileRepo) GetByID(ctx context.Context, id uuid.UUID) (*File, error) {
	return getFile(ctx, r.db, r.db.drv, id)
}

func getFile(ctx context.Context, db *DB, x dialect.ExecQuerier, id uuid.UUID) (*File, error) {
	sel := db.builder().Select(fileColumns...).
		From(db.builder().Table(tableFiles)).
		Where(entsql.EQ("id", id))
	var out *File
	err := queryBuilt(ctx, x, sel, func(rows *entsql.Rows) error {
		f, err := scanFile(rows)
		if err != nil {
			return err
		}
		out = &f
		return nil
	})
	if err != nil {
		return nil, common.NewAppError(common.CodeDatabase, "get file", err)
	}
	if out == nil {
		return nil, common.NotFoundf("file %s", id)
	}
	return out, nil
}

func (r *fileRepo) List(ctx context.Context, limit int) ([]File, error) {
	sel := r.db.builder().Select(fileColumns...).
		From(r.db.builder().Table(tableFiles)).
		OrderBy("created_at", "id")
	if limit > 0 {
		sel.Limit(limit)
	}
	var out []File
	err := queryBuilt(ctx, r.db.drv, sel, func(rows *entsql.Rows) error {
		f, err := scanFile(rows)
		if err != nil {
			return err
		}
		out = append(out, f)
		return nil
	})
	if err != nil {
		return nil, common.NewAppError(common.CodeDatabase, "list files", err)
	}
	return out, nil
}

// FindUnfinished returns files with text_extracted = false whose MIME type is
// in mimeTypes, oldest first, each with its persisted locations.
func (r *fileRepo) FindUnfinished(ctx context.Context, mimeTypes []string) ([]UnfinishedFile, error) {
	if len(mimeTypes) == 0 {
		return nil, nil
	}
	types := make([]any, len(mimeTypes))
	for i, m := range mimeTypes {
		types[i] = constants.BaseMIME(m)
	}
	sel := r.db.builder().Select(fileColumns...).
		From(r.db.builder().Table(tableFiles)).
		Where(entsql.And(
			entsql.EQ("text_extracted", false),
			entsql.In("mime_type", types...),
		)).
		OrderBy("created_at", "id")

	var files []File
	err := queryBuilt(ctx, r.db.drv, sel, func(rows *entsql.Rows) error {
		f, err := scanFile(rows)
		if err != nil {
			return err
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to query unfinished files", "error", err)
		return nil, common.NewAppError(common.CodeDatabase, "find unfinished files", err)
	}

	out := make([]UnfinishedFile, 0, len(files))
	for _, f := range files {
		locs, err := r.segments.FinishedLocations(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, UnfinishedFile{File: f, FinishedLocations: locs})
	}
	return out, nil
}

// ResetExtraction drops persisted segments and clears the completion flag.
// The caller must enqueue a new job for the file afterwards.
func (r *fileRepo) ResetExtraction(ctx context.Context, id uuid.UUID) (*File, error) {
	var out *File
	err := r.db.inTx(ctx, func(tx dialect.Tx) error {
		if _, err := execBuilt(ctx, tx, r.db.builder().Delete(tableSegments).Where(entsql.EQ("file_id", id))); err != nil {
			return err
		}
		upd := r.db.builder().Update(tableFiles).
			Set("text_extracted", false).
			Set("status", string(constants.FileStatusPending)).
			Set("error_count", 0).
			SetNull("extracted_at").
			Where(entsql.EQ("id", id))
		n, err := execBuilt(ctx, tx, upd)
		if err != nil {
			return err
		}
		if n == 0 {
			return common.NotFoundf("file %s", id)
		}
		out, err = getFile(ctx, r.db, tx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		r.logger.Error("failed to reset extraction", "file_id", id, "error", err)
		return nil, common.NewAppError(common.CodeDatabase, "reset extraction", err)
	}
	r.logger.Info("extraction reset", "file_id", id)
	return out, nil
}

func (r *fileRepo) CountByStatus(ctx context.Context) (map[constants.FileStatus]int, error) {
	sel := r.db.builder().Select("status", entsql.Count("*")).
		From(r.db.builder().Table(tableFiles)).
		GroupBy("status")
	out := make(map[constants.FileStatus]int)
	err := queryBuilt(ctx, r.db.drv, sel, func(rows *entsql.Rows) error {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return err
		}
		out[constants.FileStatus(status)] = n
		return nil
	})
	if err != nil {
		return nil, common.NewAppError(common.CodeDatabase, "count files by status", err)
	}
	return out, nil
}
