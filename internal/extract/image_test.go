package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageExtractor_SingleUnpagedResult(t *testing.T) {
	eng := &engines{}
	x := NewImageExtractor(eng.factory, nil)

	c := &collector{}
	job := Job{FileID: uuid.New(), MIMEType: "image/png"}
	require.NoError(t, x.Extract(context.Background(), job, []byte("scan"), c.emit))

	require.Len(t, c.results, 1)
	r := c.results[0]
	assert.True(t, r.IsFinished)
	assert.False(t, r.Location.Paged())
	assert.Equal(t, 0, r.Location.Page)
	assert.Equal(t, "ocr:scan", r.Text)
	assert.Len(t, r.Location.Words, 1)
}

func TestImageExtractor_ReusesEngine(t *testing.T) {
	eng := &engines{}
	x := NewImageExtractor(eng.factory, nil)
	c := &collector{}

	for i := 0; i < 3; i++ {
		require.NoError(t, x.Extract(context.Background(), Job{FileID: uuid.New()}, []byte("a"), c.emit))
	}
	assert.Len(t, eng.made, 1)
	assert.Equal(t, "eng", eng.made[0].lang)

	require.NoError(t, x.Extract(context.Background(), Job{FileID: uuid.New(), Lang: "chi_sim"}, []byte("b"), c.emit))
	require.Len(t, eng.made, 2)
	assert.True(t, eng.made[0].closed.Load())
	assert.Equal(t, "chi_sim", eng.made[1].lang)

	require.NoError(t, x.Close())
	assert.True(t, eng.allClosed())
}

func TestImageExtractor_FailureIsFinishedMarker(t *testing.T) {
	x := NewImageExtractor((&engines{fail: errors.New("unreadable")}).factory, nil)

	c := &collector{}
	require.NoError(t, x.Extract(context.Background(), Job{FileID: uuid.New()}, []byte("a"), c.emit))

	require.Len(t, c.results, 1)
	assert.True(t, c.results[0].Failed)
	assert.True(t, c.results[0].IsFinished)
	assert.Contains(t, c.results[0].Error, "unreadable")
}

func TestImageExtractor_HEICNeedsConverter(t *testing.T) {
	x := NewImageExtractor((&engines{}).factory, nil)
	c := &collector{}
	require.NoError(t, x.Extract(context.Background(), Job{FileID: uuid.New(), MIMEType: "image/heic"}, []byte("a"), c.emit))
	require.Len(t, c.results, 1)
	assert.True(t, c.results[0].Failed)

	conv := NewImageExtractor((&engines{}).factory, nil, WithHEICConverter(upper{}))
	c = &collector{}
	require.NoError(t, conv.Extract(context.Background(), Job{FileID: uuid.New(), MIMEType: "image/heic"}, []byte("a"), c.emit))
	require.Len(t, c.results, 1)
	assert.Equal(t, "ocr:A", c.results[0].Text)
}

type upper struct{}

func (upper) Convert(_ context.Context, data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	for i, b := range data {
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		out[i] = b
	}
	return out, nil
}

func TestImageExtractor_SkippedUnitAndBusy(t *testing.T) {
	x := NewImageExtractor((&engines{}).factory, nil)
	c := &collector{}

	job := Job{FileID: uuid.New(), SkipLocations: []Location{{}}}
	require.NoError(t, x.Extract(context.Background(), job, []byte("a"), c.emit))
	assert.Empty(t, c.results)

	require.NoError(t, x.enter())
	assert.ErrorIs(t, x.Extract(context.Background(), Job{FileID: uuid.New()}, []byte("a"), c.emit), ErrBusy)
	x.leave()
}
