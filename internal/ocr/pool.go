package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// PoolSize returns min(cpus, units, maxConcurrency) with a floor of 1.
// A non-positive maxConcurrency does not bound the result.
func PoolSize(cpus, units, maxConcurrency int) int {
	n := cpus
	if units < n {
		n = units
	}
	if maxConcurrency > 0 && maxConcurrency < n {
		n = maxConcurrency
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Pool is a bounded set of engines. Engines are created on first demand, up to
// size, and handed to one caller at a time.
type Pool struct {
	size    int
	lang    string
	factory Factory
	logger  *slog.Logger

	idle chan Engine

	mu      sync.Mutex
	created []Engine
	closed  bool
	done    chan struct{}
}

func NewPool(size int, lang string, factory Factory, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		size:    size,
		lang:    lang,
		factory: factory,
		logger:  logger,
		idle:    make(chan Engine, size),
		done:    make(chan struct{}),
	}
}

// Size is the maximum number of engines the pool will hold.
func (p *Pool) Size() int { return p.size }

// Created is the number of engines instantiated so far.
func (p *Pool) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.created)
}

// Recognize runs one image through whichever engine is free first.
func (p *Pool) Recognize(ctx context.Context, image []byte) (Recognition, error) {
	e, err := p.acquire(ctx)
	if err != nil {
		return Recognition{}, err
	}
	defer p.release(e)
	return e.Recognize(ctx, image)
}

func (p *Pool) acquire(ctx context.Context) (Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-p.done:
		return nil, ErrPoolClosed
	default:
	}
	select {
	case e := <-p.idle:
		return e, nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if len(p.created) < p.size {
		e, err := p.factory(p.lang)
		if err != nil {
			p.mu.Unlock()
			return nil, fmt.Errorf("create ocr engine: %w", err)
		}
		p.created = append(p.created, e)
		p.logger.Debug("ocr engine created", "lang", p.lang, "engines", len(p.created), "pool_size", p.size)
		p.mu.Unlock()
		return e, nil
	}
	p.mu.Unlock()

	select {
	case e := <-p.idle:
		return e, nil
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) release(e Engine) {
	// idle has capacity for every engine, so this never blocks
	p.idle <- e
}

// Close tears every engine down. Callers must not have recognitions in flight.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	engines := p.created
	p.created = nil
	p.mu.Unlock()

	var errs []error
	for _, e := range engines {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(engines) > 0 {
		p.logger.Debug("ocr pool closed", "engines", len(engines))
	}
	return errors.Join(errs...)
}
