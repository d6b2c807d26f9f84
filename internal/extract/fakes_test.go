package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joseph-ayodele/docextract/internal/ocr"
)

type fakeDoc struct {
	texts     []string // index 0 is page 1
	renderErr map[int]error
	panicOn   int
	closed    atomic.Bool
}

func (d *fakeDoc) NumPages() int { return len(d.texts) }

func (d *fakeDoc) PageText(page int) (string, error) {
	if page == d.panicOn {
		panic("broken content stream")
	}
	return d.texts[page-1], nil
}

func (d *fakeDoc) RenderPage(page int, scale float64) ([]byte, error) {
	if err := d.renderErr[page]; err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("page-%d@%g", page, scale)), nil
}

func (d *fakeDoc) Close() error {
	d.closed.Store(true)
	return nil
}

func openerFor(d *fakeDoc) Opener {
	return func([]byte) (Document, error) { return d, nil }
}

type fakeEngine struct {
	lang   string
	delay  func(img string) time.Duration
	fail   error
	active *int32
	peak   *int32
	closed atomic.Bool
}

func (e *fakeEngine) Recognize(ctx context.Context, img []byte) (ocr.Recognition, error) {
	n := atomic.AddInt32(e.active, 1)
	defer atomic.AddInt32(e.active, -1)
	for {
		p := atomic.LoadInt32(e.peak)
		if n <= p || atomic.CompareAndSwapInt32(e.peak, p, n) {
			break
		}
	}
	if e.delay != nil {
		select {
		case <-time.After(e.delay(string(img))):
		case <-ctx.Done():
			return ocr.Recognition{}, ctx.Err()
		}
	}
	if e.fail != nil {
		return ocr.Recognition{}, e.fail
	}
	return ocr.Recognition{
		Text:  "ocr:" + string(img),
		Words: []ocr.Word{{Text: string(img), Box: ocr.Box{X1: 10, Y1: 10}, Confidence: 0.9}},
	}, nil
}

func (e *fakeEngine) Close() error {
	e.closed.Store(true)
	return nil
}

type engines struct {
	mu     sync.Mutex
	made   []*fakeEngine
	delay  func(img string) time.Duration
	fail   error
	active int32
	peak   int32
}

func (f *engines) factory(lang string) (ocr.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &fakeEngine{lang: lang, delay: f.delay, fail: f.fail, active: &f.active, peak: &f.peak}
	f.made = append(f.made, e)
	return e, nil
}

func (f *engines) allClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.made {
		if !e.closed.Load() {
			return false
		}
	}
	return true
}

type collector struct {
	mu      sync.Mutex
	results []Result
	failAt  int
}

var errSink = errors.New("sink down")

func (c *collector) emit(_ context.Context, r Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAt > 0 && len(c.results)+1 == c.failAt {
		return errSink
	}
	c.results = append(c.results, r)
	return nil
}

func (c *collector) pages() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, 0, len(c.results))
	for _, r := range c.results {
		out = append(out, r.Location.Page)
	}
	return out
}
