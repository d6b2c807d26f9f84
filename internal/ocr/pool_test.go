package ocr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	id     int
	delay  time.Duration
	active *int32
	peak   *int32
	closed atomic.Bool
}

func (f *fakeEngine) Recognize(ctx context.Context, image []byte) (Recognition, error) {
	n := atomic.AddInt32(f.active, 1)
	defer atomic.AddInt32(f.active, -1)
	for {
		p := atomic.LoadInt32(f.peak)
		if n <= p || atomic.CompareAndSwapInt32(f.peak, p, n) {
			break
		}
	}
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return Recognition{}, ctx.Err()
	}
	return Recognition{Text: string(image)}, nil
}

func (f *fakeEngine) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeFactory struct {
	mu      sync.Mutex
	engines []*fakeEngine
	delay   time.Duration
	active  int32
	peak    int32
	err     error
}

func (ff *fakeFactory) New(lang string) (Engine, error) {
	if ff.err != nil {
		return nil, ff.err
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()
	e := &fakeEngine{id: len(ff.engines), delay: ff.delay, active: &ff.active, peak: &ff.peak}
	ff.engines = append(ff.engines, e)
	return e, nil
}

func TestPoolSize(t *testing.T) {
	cases := []struct {
		name                 string
		cpus, units, maxConc int
		want                 int
	}{
		{"cpu bound", 4, 10, 0, 4},
		{"page bound", 8, 3, 0, 3},
		{"max bound", 8, 10, 2, 2},
		{"single page", 8, 1, 4, 1},
		{"floor", 4, 0, 0, 1},
		{"max larger than cpus", 2, 10, 16, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PoolSize(tc.cpus, tc.units, tc.maxConc))
		})
	}
}

func TestPool_BoundsConcurrencyAndCreatesLazily(t *testing.T) {
	ff := &fakeFactory{delay: 20 * time.Millisecond}
	p := NewPool(3, "eng", ff.New, nil)
	defer p.Close()

	assert.Equal(t, 0, p.Created())

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := p.Recognize(context.Background(), []byte("x"))
			assert.NoError(t, err)
			assert.Equal(t, "x", rec.Text)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, p.Created(), 3)
	assert.LessOrEqual(t, atomic.LoadInt32(&ff.peak), int32(3))
	assert.Greater(t, atomic.LoadInt32(&ff.peak), int32(1))
}

func TestPool_ReusesSingleEngineSequentially(t *testing.T) {
	ff := &fakeFactory{}
	p := NewPool(4, "eng", ff.New, nil)
	defer p.Close()

	for i := 0; i < 5; i++ {
		_, err := p.Recognize(context.Background(), []byte("a"))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, p.Created())
}

func TestPool_CloseTearsDownEngines(t *testing.T) {
	ff := &fakeFactory{}
	p := NewPool(2, "eng", ff.New, nil)

	_, err := p.Recognize(context.Background(), []byte("a"))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	for _, e := range ff.engines {
		assert.True(t, e.closed.Load())
	}

	_, err = p.Recognize(context.Background(), []byte("a"))
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_WaitHonorsContext(t *testing.T) {
	ff := &fakeFactory{delay: 200 * time.Millisecond}
	p := NewPool(1, "eng", ff.New, nil)
	defer p.Close()

	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = p.Recognize(context.Background(), []byte("slow"))
	}()
	<-started
	require.Eventually(t, func() bool { return p.Created() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Recognize(ctx, []byte("waits"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_FactoryError(t *testing.T) {
	boom := errors.New("no tessdata")
	p := NewPool(1, "eng", (&fakeFactory{err: boom}).New, nil)
	defer p.Close()

	_, err := p.Recognize(context.Background(), []byte("a"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, p.Created())
}
