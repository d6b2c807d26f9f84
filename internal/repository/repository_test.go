package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docextract/constants"
	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/extract"
	"github.com/joseph-ayodele/docextract/internal/notify"
	"github.com/joseph-ayodele/docextract/internal/ocr"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Driver: "sqlite",
		DSN:    "file:" + filepath.Join(t.TempDir(), "test.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(context.Background()))
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func TestFileRepository_CreateGetList(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	files := NewFileRepository(db, nil)

	f, err := files.Create(ctx, NewFile{Filename: "scan.pdf", MIMEType: "application/pdf; charset=binary", Size: 42})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", f.MIMEType)
	assert.Equal(t, "eng", f.Lang)

	got, err := files.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, "scan.pdf", got.Filename)
	assert.Equal(t, int64(42), got.Size)
	assert.False(t, got.TextExtracted)
	assert.Equal(t, constants.FileStatusPending, got.Status)
	assert.Nil(t, got.ExtractedAt)

	_, err = files.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = files.Create(ctx, NewFile{MIMEType: "image/png"})
	assert.ErrorIs(t, err, common.ErrValidation)

	list, err := files.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSink_CompletionFlagOnlyOnFinishingResult(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	files := NewFileRepository(db, nil)
	segments := NewSegmentRepository(db, nil)
	n := &recordingNotifier{}
	sink := NewSink(db, n, nil)

	f, err := files.Create(ctx, NewFile{Filename: "a.pdf", MIMEType: constants.MIMEPDF})
	require.NoError(t, err)

	words := []ocr.Word{{Text: "hello", Box: ocr.Box{X0: 1, Y0: 2, X1: 30, Y1: 12}, Confidence: 0.93}}
	require.NoError(t, sink.Save(ctx, extract.Result{FileID: f.ID, Text: "page one", Location: extract.Location{Page: 1}}))

	got, err := files.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.False(t, got.TextExtracted)

	require.NoError(t, sink.Save(ctx, extract.Result{
		FileID:     f.ID,
		Text:       "hello",
		Location:   extract.Location{Page: 2, Scale: 2, Words: words},
		IsFinished: true,
	}))

	got, err = files.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, got.TextExtracted)
	assert.Equal(t, constants.FileStatusComplete, got.Status)
	assert.NotNil(t, got.ExtractedAt)

	segs, err := segments.ListByFile(ctx, f.ID)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "page one", segs[0].Text)
	assert.Equal(t, 2, segs[1].Location.Page)
	assert.Equal(t, 2.0, segs[1].Location.Scale)
	assert.Equal(t, words, segs[1].Location.Words)

	require.Len(t, n.events, 2)
	assert.False(t, n.events[0].Finished)
	assert.True(t, n.events[1].Finished)
	assert.Equal(t, string(constants.FileStatusComplete), n.events[1].Status)
}

func TestSink_DuplicatePageIsIgnored(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	files := NewFileRepository(db, nil)
	sink := NewSink(db, nil, nil)

	f, err := files.Create(ctx, NewFile{Filename: "a.pdf", MIMEType: constants.MIMEPDF})
	require.NoError(t, err)

	require.NoError(t, sink.Save(ctx, extract.Result{FileID: f.ID, Text: "first", Location: extract.Location{Page: 1}}))
	require.NoError(t, sink.Save(ctx, extract.Result{FileID: f.ID, Text: "second", Location: extract.Location{Page: 1}}))

	segs, err := NewSegmentRepository(db, nil).ListByFile(ctx, f.ID)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "first", segs[0].Text)
}

func TestSink_AggregateStatus(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	files := NewFileRepository(db, nil)
	sink := NewSink(db, nil, nil)

	degraded, err := files.Create(ctx, NewFile{Filename: "d.pdf", MIMEType: constants.MIMEPDF})
	require.NoError(t, err)
	require.NoError(t, sink.Save(ctx, extract.Result{FileID: degraded.ID, Location: extract.Location{Page: 1}, Failed: true, Error: "render"}))
	require.NoError(t, sink.Save(ctx, extract.Result{FileID: degraded.ID, Text: "ok", Location: extract.Location{Page: 2}, IsFinished: true}))

	failed, err := files.Create(ctx, NewFile{Filename: "f.png", MIMEType: constants.MIMEPNG})
	require.NoError(t, err)
	require.NoError(t, sink.Save(ctx, extract.Result{FileID: failed.ID, Location: extract.Location{Scale: 1}, Failed: true, Error: "unreadable", IsFinished: true}))

	got, err := files.GetByID(ctx, degraded.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.FileStatusDegraded, got.Status)
	assert.Equal(t, 1, got.ErrorCount)

	got, err = files.GetByID(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.FileStatusFailed, got.Status)
	assert.True(t, got.TextExtracted)

	counts, err := files.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[constants.FileStatusDegraded])
	assert.Equal(t, 1, counts[constants.FileStatusFailed])
}

func TestSink_RejectsInvalidLocation(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	f, err := NewFileRepository(db, nil).Create(ctx, NewFile{Filename: "a.pdf", MIMEType: constants.MIMEPDF})
	require.NoError(t, err)

	err = NewSink(db, nil, nil).Save(ctx, extract.Result{
		FileID:   f.ID,
		Location: extract.Location{Page: 1, Scale: -1},
	})
	assert.Error(t, err)
}

func TestFileRepository_FindUnfinishedAndReset(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	files := NewFileRepository(db, nil)
	sink := NewSink(db, nil, nil)

	partial, err := files.Create(ctx, NewFile{Filename: "p.pdf", MIMEType: constants.MIMEPDF})
	require.NoError(t, err)
	require.NoError(t, sink.Save(ctx, extract.Result{FileID: partial.ID, Text: "one", Location: extract.Location{Page: 1}}))

	done, err := files.Create(ctx, NewFile{Filename: "d.html", MIMEType: constants.MIMEHTML})
	require.NoError(t, err)
	require.NoError(t, sink.Save(ctx, extract.Result{FileID: done.ID, Text: "x", IsFinished: true}))

	_, err = files.Create(ctx, NewFile{Filename: "z.zip", MIMEType: "application/zip"})
	require.NoError(t, err)

	fresh, err := files.Create(ctx, NewFile{Filename: "i.png", MIMEType: constants.MIMEPNG})
	require.NoError(t, err)

	unfinished, err := files.FindUnfinished(ctx, constants.HandledMIMETypes)
	require.NoError(t, err)
	require.Len(t, unfinished, 2)
	assert.Equal(t, partial.ID, unfinished[0].ID)
	assert.Equal(t, []extract.Location{{Page: 1}}, unfinished[0].FinishedLocations)
	assert.Equal(t, fresh.ID, unfinished[1].ID)
	assert.Empty(t, unfinished[1].FinishedLocations)

	reset, err := files.ResetExtraction(ctx, done.ID)
	require.NoError(t, err)
	assert.False(t, reset.TextExtracted)
	assert.Equal(t, constants.FileStatusPending, reset.Status)
	assert.Nil(t, reset.ExtractedAt)

	segs, err := NewSegmentRepository(db, nil).ListByFile(ctx, done.ID)
	require.NoError(t, err)
	assert.Empty(t, segs)

	_, err = files.ResetExtraction(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestFileRepository_FindUnfinishedCoversEveryHandledType(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	files := NewFileRepository(db, nil)

	candidates := append([]string{"image/svg+xml", "image/avif", "image/x-icon", "text/plain"}, constants.HandledMIMETypes...)
	want := map[uuid.UUID]string{}
	for _, m := range candidates {
		f, err := files.Create(ctx, NewFile{Filename: "f", MIMEType: m})
		require.NoError(t, err)
		if constants.IsHandled(m) {
			want[f.ID] = m
		}
	}

	unfinished, err := files.FindUnfinished(ctx, constants.HandledMIMETypes)
	require.NoError(t, err)
	got := map[uuid.UUID]string{}
	for _, f := range unfinished {
		got[f.ID] = f.MIMEType
	}
	assert.Equal(t, want, got)
}

func TestDB_HealthCheck(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, db.HealthCheck(context.Background(), 0))
}
