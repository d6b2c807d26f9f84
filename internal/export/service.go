// Package export writes extracted text to spreadsheet workbooks.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/docextract/internal/repository"
)

const (
	filesSheet    = "Files"
	segmentsSheet = "Segments"

	// excelize rejects cell values longer than this.
	maxCellChars = 32767
)

// FileLister is the subset of repository.FileRepository the export reads.
type FileLister interface {
	List(ctx context.Context, limit int) ([]repository.File, error)
	GetByID(ctx context.Context, id uuid.UUID) (*repository.File, error)
}

// SegmentLister is the subset of repository.SegmentRepository the export reads.
type SegmentLister interface {
	ListByFile(ctx context.Context, fileID uuid.UUID) ([]repository.Segment, error)
}

// Service produces XLSX bytes for extracted files.
type Service struct {
	files    FileLister
	segments SegmentLister
	logger   *slog.Logger
}

func NewService(files FileLister, segments SegmentLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{files: files, segments: segments, logger: logger}
}

// ExportXLSX returns a workbook with one row per file on the Files sheet and
// one row per persisted unit on the Segments sheet. With no ids, every file
// (up to limit, 0 for all) is exported.
func (s *Service) ExportXLSX(ctx context.Context, ids []uuid.UUID, limit int) ([]byte, error) {
	start := time.Now()

	files, err := s.resolve(ctx, ids, limit)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("close workbook", "error", err)
		}
	}()
	if err := f.SetSheetName("Sheet1", filesSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(segmentsSheet); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(filesSheet)
	f.SetActiveSheet(idx)

	writeRow(f, filesSheet, 1, "File ID", "Filename", "MIME Type", "Language", "Status", "Pages", "Failed Pages", "Source Path")
	writeRow(f, segmentsSheet, 1, "File ID", "Filename", "Page", "Failed", "Error", "Words", "Text")

	segRow := 2
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		segs, err := s.segments.ListByFile(ctx, file.ID)
		if err != nil {
			return nil, fmt.Errorf("list segments for %s: %w", file.ID, err)
		}
		failed := 0
		for _, seg := range segs {
			if seg.Failed {
				failed++
			}
			writeRow(f, segmentsSheet, segRow,
				file.ID.String(),
				file.Filename,
				seg.Location.Page,
				seg.Failed,
				seg.Error,
				len(seg.Location.Words),
				truncate(seg.Text, maxCellChars),
			)
			segRow++
		}
		writeRow(f, filesSheet, i+2,
			file.ID.String(),
			file.Filename,
			file.MIMEType,
			file.Lang,
			string(file.Status),
			len(segs),
			failed,
			file.SourcePath,
		)
	}

	_ = f.SetColWidth(filesSheet, "A", "A", 38)
	_ = f.SetColWidth(filesSheet, "B", "B", 28)
	_ = f.SetColWidth(filesSheet, "C", "E", 16)
	_ = f.SetColWidth(filesSheet, "H", "H", 60)
	_ = f.SetColWidth(segmentsSheet, "A", "A", 38)
	_ = f.SetColWidth(segmentsSheet, "B", "B", 28)
	_ = f.SetColWidth(segmentsSheet, "E", "E", 32)
	_ = f.SetColWidth(segmentsSheet, "G", "G", 100)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export xlsx ok",
		"files", len(files),
		"segments", segRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func (s *Service) resolve(ctx context.Context, ids []uuid.UUID, limit int) ([]repository.File, error) {
	if len(ids) == 0 {
		files, err := s.files.List(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("query files: %w", err)
		}
		return files, nil
	}
	files := make([]repository.File, 0, len(ids))
	for _, id := range ids {
		file, err := s.files.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get file %s: %w", id, err)
		}
		files = append(files, *file)
	}
	return files, nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
