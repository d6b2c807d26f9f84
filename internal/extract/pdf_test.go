package extract

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDFExtractor_TextLayerAndOCRFallback(t *testing.T) {
	doc := &fakeDoc{texts: []string{"first page", "", "third page"}}
	eng := &engines{}
	x := NewPDFExtractor(eng.factory, nil, WithOpener(openerFor(doc)), WithCPUs(4))

	c := &collector{}
	job := Job{FileID: uuid.New(), MIMEType: "application/pdf"}
	require.NoError(t, x.Extract(context.Background(), job, []byte("%PDF"), c.emit))

	require.Len(t, c.results, 3)
	assert.Equal(t, []int{1, 2, 3}, c.pages())

	assert.Equal(t, "first page", c.results[0].Text)
	assert.Equal(t, "ocr:page-2@2", c.results[1].Text)
	assert.Equal(t, 2.0, c.results[1].Location.Scale)
	assert.Len(t, c.results[1].Location.Words, 1)
	assert.Equal(t, "third page", c.results[2].Text)

	assert.False(t, c.results[0].IsFinished)
	assert.False(t, c.results[1].IsFinished)
	assert.True(t, c.results[2].IsFinished)
	for _, r := range c.results {
		assert.Equal(t, job.FileID, r.FileID)
		assert.False(t, r.Failed)
	}

	assert.True(t, doc.closed.Load())
	assert.Len(t, eng.made, 1)
	assert.True(t, eng.allClosed())
	assert.False(t, x.Busy())
}

func TestPDFExtractor_WhitespaceTextLayerIsOCRed(t *testing.T) {
	doc := &fakeDoc{texts: []string{" \n\t "}}
	x := NewPDFExtractor((&engines{}).factory, nil, WithOpener(openerFor(doc)))

	c := &collector{}
	require.NoError(t, x.Extract(context.Background(), Job{FileID: uuid.New()}, nil, c.emit))

	require.Len(t, c.results, 1)
	assert.Equal(t, "ocr:page-1@2", c.results[0].Text)
	assert.True(t, c.results[0].IsFinished)
}

func TestPDFExtractor_SkipsPersistedPages(t *testing.T) {
	doc := &fakeDoc{texts: []string{"one", "two"}}
	x := NewPDFExtractor((&engines{}).factory, nil, WithOpener(openerFor(doc)))

	c := &collector{}
	job := Job{FileID: uuid.New(), SkipLocations: []Location{{Page: 1}}}
	require.NoError(t, x.Extract(context.Background(), job, nil, c.emit))

	require.Len(t, c.results, 1)
	assert.Equal(t, 2, c.results[0].Location.Page)
	assert.Equal(t, "two", c.results[0].Text)
	assert.True(t, c.results[0].IsFinished)
}

func TestPDFExtractor_SkippedLastPageFinishesOnLastEmitted(t *testing.T) {
	doc := &fakeDoc{texts: []string{"one", "two", "three"}}
	x := NewPDFExtractor((&engines{}).factory, nil, WithOpener(openerFor(doc)))

	c := &collector{}
	job := Job{FileID: uuid.New(), SkipLocations: []Location{{Page: 3}}}
	require.NoError(t, x.Extract(context.Background(), job, nil, c.emit))

	require.Equal(t, []int{1, 2}, c.pages())
	assert.False(t, c.results[0].IsFinished)
	assert.True(t, c.results[1].IsFinished)
}

func TestPDFExtractor_PageFailuresAreIsolated(t *testing.T) {
	doc := &fakeDoc{
		texts:     []string{"", "", "", "ok"},
		renderErr: map[int]error{1: errors.New("bad xobject")},
		panicOn:   3,
	}
	x := NewPDFExtractor((&engines{}).factory, nil, WithOpener(openerFor(doc)))

	c := &collector{}
	require.NoError(t, x.Extract(context.Background(), Job{FileID: uuid.New()}, nil, c.emit))

	require.Len(t, c.results, 4)
	assert.True(t, c.results[0].Failed)
	assert.Contains(t, c.results[0].Error, "bad xobject")
	assert.Empty(t, c.results[0].Text)
	assert.Equal(t, 1, c.results[0].Location.Page)

	assert.False(t, c.results[1].Failed)
	assert.Equal(t, "ocr:page-2@2", c.results[1].Text)

	assert.True(t, c.results[2].Failed)
	assert.Contains(t, c.results[2].Error, "panic")

	assert.Equal(t, "ok", c.results[3].Text)
	assert.True(t, c.results[3].IsFinished)
	assert.True(t, doc.closed.Load())
}

func TestPDFExtractor_EmitsInPageOrderWhileOCRRunsInParallel(t *testing.T) {
	doc := &fakeDoc{texts: make([]string, 6)}
	eng := &engines{delay: func(img string) time.Duration {
		if img == "page-1@2" {
			return 80 * time.Millisecond
		}
		return 10 * time.Millisecond
	}}
	x := NewPDFExtractor(eng.factory, nil, WithOpener(openerFor(doc)), WithCPUs(8), WithMaxConcurrency(3))

	c := &collector{}
	require.NoError(t, x.Extract(context.Background(), Job{FileID: uuid.New()}, nil, c.emit))

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, c.pages())
	assert.LessOrEqual(t, len(eng.made), 3)
	assert.Greater(t, atomic.LoadInt32(&eng.peak), int32(1))
	assert.LessOrEqual(t, atomic.LoadInt32(&eng.peak), int32(3))
	assert.True(t, eng.allClosed())
}

func TestPDFExtractor_CancelEmitsNoMarker(t *testing.T) {
	doc := &fakeDoc{texts: []string{"one", "", ""}}
	eng := &engines{delay: func(string) time.Duration { return time.Second }}
	x := NewPDFExtractor(eng.factory, nil, WithOpener(openerFor(doc)), WithCPUs(1))

	ctx, cancel := context.WithCancel(context.Background())
	c := &collector{}
	emit := func(ctx context.Context, r Result) error {
		err := c.emit(ctx, r)
		cancel()
		return err
	}
	err := x.Extract(ctx, Job{FileID: uuid.New()}, nil, emit)
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, c.results, 1)
	assert.Equal(t, 1, c.results[0].Location.Page)
	assert.True(t, doc.closed.Load())
	assert.True(t, eng.allClosed())
	assert.False(t, x.Busy())
}

func TestPDFExtractor_SinkErrorAborts(t *testing.T) {
	doc := &fakeDoc{texts: []string{"a", "b", "c"}}
	x := NewPDFExtractor((&engines{}).factory, nil, WithOpener(openerFor(doc)))

	c := &collector{failAt: 2}
	err := x.Extract(context.Background(), Job{FileID: uuid.New()}, nil, c.emit)
	assert.ErrorIs(t, err, errSink)
	assert.Len(t, c.results, 1)
}

func TestPDFExtractor_OpenFailureAndEmptyDocument(t *testing.T) {
	bad := NewPDFExtractor((&engines{}).factory, nil, WithOpener(func([]byte) (Document, error) {
		return nil, errors.New("not a pdf")
	}))
	c := &collector{}
	assert.Error(t, bad.Extract(context.Background(), Job{FileID: uuid.New()}, nil, c.emit))
	assert.Empty(t, c.results)
	assert.False(t, bad.Busy())

	empty := NewPDFExtractor((&engines{}).factory, nil, WithOpener(openerFor(&fakeDoc{})))
	require.NoError(t, empty.Extract(context.Background(), Job{FileID: uuid.New()}, nil, c.emit))
	require.Len(t, c.results, 1)
	assert.True(t, c.results[0].IsFinished)
	assert.True(t, c.results[0].Failed)
}

func TestPDFExtractor_Busy(t *testing.T) {
	doc := &fakeDoc{texts: []string{""}}
	release := make(chan struct{})
	eng := &engines{delay: func(string) time.Duration { <-release; return 0 }}
	x := NewPDFExtractor(eng.factory, nil, WithOpener(openerFor(doc)))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = x.Extract(context.Background(), Job{FileID: uuid.New()}, nil, (&collector{}).emit)
	}()
	require.Eventually(t, x.Busy, time.Second, 5*time.Millisecond)

	err := x.Extract(context.Background(), Job{FileID: uuid.New()}, nil, (&collector{}).emit)
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	wg.Wait()
	assert.False(t, x.Busy())
}
