package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docextract/constants"
	"github.com/joseph-ayodele/docextract/internal/blob"
	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/extract"
)

// Extractors is the dispatch table. A nil entry drops jobs of that kind.
type Extractors struct {
	PDF   extract.Extractor
	Image extract.Extractor
	HTML  extract.Extractor
}

// Coordinator runs extraction jobs one at a time, in submission order, on a
// single worker goroutine.
type Coordinator struct {
	extractors Extractors
	blobs      BlobSource
	logger     *slog.Logger
	timeout    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	queue   []extract.Job
	pending map[uuid.UUID]struct{} // queued or running
	running bool
	closed  bool
	idle    chan struct{} // closed while nothing is queued or running
	sinks   []extract.Emit

	enqueued, deduplicated, completed, failed, dropped atomic.Uint64
}

type Option func(*Coordinator)

// WithJobTimeout bounds a single job; 0 disables the bound.
func WithJobTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

func NewCoordinator(ex Extractors, blobs BlobSource, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	c := &Coordinator{
		extractors: ex,
		blobs:      blobs,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		pending:    make(map[uuid.UUID]struct{}),
		idle:       idle,
	}
	for _, o := range opts {
		o(c)
	}
	go c.worker()
	return c
}

// OnExtracted registers a sink. Sinks run in registration order on the worker
// goroutine, once per Result, before the extractor continues.
func (c *Coordinator) OnExtracted(fn extract.Emit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, fn)
}

func (c *Coordinator) AddJob(job extract.Job) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Warn("cannot enqueue: coordinator is shutting down", "file_id", job.FileID)
		return false
	}
	if _, dup := c.pending[job.FileID]; dup {
		c.mu.Unlock()
		c.deduplicated.Add(1)
		c.logger.Debug("job already queued or running", "file_id", job.FileID)
		return false
	}
	c.pending[job.FileID] = struct{}{}
	c.queue = append(c.queue, job)
	if !c.running && len(c.queue) == 1 {
		c.idle = make(chan struct{})
	}
	depth := len(c.queue)
	c.mu.Unlock()

	c.enqueued.Add(1)
	select {
	case c.wake <- struct{}{}:
	default:
	}
	c.logger.Info("queued file for extraction",
		"file_id", job.FileID,
		"mime_type", job.MIMEType,
		"skip", len(job.SkipLocations),
		"queue_depth", depth,
	)
	return true
}

func (c *Coordinator) worker() {
	defer close(c.done)
	c.logger.Info("extraction worker started")
	for {
		job, ok := c.next()
		if !ok {
			c.logger.Info("extraction worker stopped")
			return
		}
		c.process(job)
		c.finish(job)
	}
}

func (c *Coordinator) next() (extract.Job, bool) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return extract.Job{}, false
		}
		if len(c.queue) > 0 {
			job := c.queue[0]
			c.queue[0] = extract.Job{}
			c.queue = c.queue[1:]
			c.running = true
			c.mu.Unlock()
			return job, true
		}
		c.mu.Unlock()

		select {
		case <-c.wake:
		case <-c.ctx.Done():
			return extract.Job{}, false
		}
	}
}

func (c *Coordinator) finish(job extract.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, job.FileID)
	c.running = false
	if len(c.queue) == 0 {
		select {
		case <-c.idle:
		default:
			close(c.idle)
		}
	}
}

// process runs one job. Errors and panics are logged and counted; they never
// stop the worker.
func (c *Coordinator) process(job extract.Job) {
	start := time.Now()
	ctx := common.WithRunID(common.WithFileID(c.ctx, job.FileID), uuid.NewString())
	logger := common.LoggerWith(ctx, c.logger).With("mime_type", job.MIMEType)
	defer func() {
		if r := recover(); r != nil {
			c.failed.Add(1)
			logger.Error("extraction panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ex := c.route(job.MIMEType)
	if ex == nil {
		c.dropped.Add(1)
		logger.Warn("no extractor for mime type, dropping job")
		return
	}

	data, err := c.load(ctx, job)
	switch {
	case errors.Is(err, blob.ErrNotFound) || (err == nil && len(data) == 0):
		c.dropped.Add(1)
		logger.Debug("file data missing, dropping job")
		return
	case err != nil:
		c.failed.Add(1)
		logger.Error("load file data failed", "error", err)
		return
	}

	if err := ex.Extract(ctx, job, data, c.emit); err != nil {
		c.failed.Add(1)
		if c.ctx.Err() != nil {
			logger.Warn("extraction interrupted by shutdown", "error", err)
			return
		}
		logger.Error("extraction failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	c.completed.Add(1)
	logger.Info("extraction complete", "duration_ms", time.Since(start).Milliseconds())
}

func (c *Coordinator) load(ctx context.Context, job extract.Job) ([]byte, error) {
	if job.GetData != nil {
		return job.GetData(ctx, job.FileID)
	}
	if c.blobs == nil {
		return nil, blob.ErrNotFound
	}
	return c.blobs.Get(ctx, job.FileID)
}

func (c *Coordinator) route(mimeType string) extract.Extractor {
	switch {
	case constants.IsPDF(mimeType):
		return c.extractors.PDF
	case constants.IsHTML(mimeType):
		return c.extractors.HTML
	case constants.IsImage(mimeType):
		return c.extractors.Image
	default:
		return nil
	}
}

func (c *Coordinator) emit(ctx context.Context, r extract.Result) error {
	c.mu.Lock()
	sinks := c.sinks
	c.mu.Unlock()
	for i, s := range sinks {
		if err := s(ctx, r); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

// WaitIdle blocks until nothing is queued or running.
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	for {
		c.mu.Lock()
		idle := c.idle
		c.mu.Unlock()
		select {
		case <-idle:
			c.mu.Lock()
			settled := idle == c.idle
			c.mu.Unlock()
			if settled {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	queued, running := len(c.queue), c.running
	c.mu.Unlock()
	return Stats{
		Enqueued:     c.enqueued.Load(),
		Deduplicated: c.deduplicated.Load(),
		Completed:    c.completed.Load(),
		Failed:       c.failed.Load(),
		Dropped:      c.dropped.Load(),
		Queued:       queued,
		Running:      running,
	}
}

// Shutdown stops accepting jobs, cancels the running one and drops whatever is
// still queued. Unfinished files are picked up again by the resume pass on the
// next start.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	dropped := len(c.queue)
	for _, j := range c.queue {
		delete(c.pending, j.FileID)
	}
	c.queue = nil
	if !c.running {
		select {
		case <-c.idle:
		default:
			close(c.idle)
		}
	}
	c.mu.Unlock()
	c.cancel()

	select {
	case <-ctx.Done():
		c.logger.Warn("shutdown interrupted by context")
	case <-c.done:
		c.logger.Info("coordinator stopped", "dropped_jobs", dropped)
	}
}
