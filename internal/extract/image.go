package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/joseph-ayodele/docextract/constants"
	"github.com/joseph-ayodele/docextract/internal/ocr"
)

// Converter turns an image the engine cannot read into one it can.
type Converter interface {
	Convert(ctx context.Context, data []byte) ([]byte, error)
}

// ImageExtractor recognizes a whole image as one unit. It keeps a single
// engine between jobs and rebuilds it only when the language changes.
type ImageExtractor struct {
	guard

	factory ocr.Factory
	heic    Converter
	logger  *slog.Logger

	mu     sync.Mutex
	engine ocr.Engine
	lang   string
}

type ImageOption func(*ImageExtractor)

// WithHEICConverter enables HEIC/HEIF input.
func WithHEICConverter(c Converter) ImageOption {
	return func(x *ImageExtractor) { x.heic = c }
}

func NewImageExtractor(factory ocr.Factory, logger *slog.Logger, opts ...ImageOption) *ImageExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	x := &ImageExtractor{factory: factory, logger: logger}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *ImageExtractor) Extract(ctx context.Context, job Job, data []byte, emit Emit) error {
	if err := x.enter(); err != nil {
		return err
	}
	defer x.leave()
	ctx, logger := withJob(ctx, job, x.logger)

	loc := Location{Scale: 1}
	if job.Skips(loc) {
		return nil
	}

	rec, err := x.recognize(ctx, job, data)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error("image recognition failed", "error", err)
		return emit(ctx, Result{
			FileID:     job.FileID,
			Location:   loc,
			IsFinished: true,
			Failed:     true,
			Error:      err.Error(),
		})
	}
	loc.Words = rec.Words
	logger.Info("image extracted", "words", len(rec.Words), "confidence", rec.Confidence)
	return emit(ctx, Result{
		FileID:     job.FileID,
		Text:       rec.Text,
		Location:   loc,
		IsFinished: true,
	})
}

func (x *ImageExtractor) recognize(ctx context.Context, job Job, data []byte) (rec ocr.Recognition, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if constants.IsHEIC(job.MIMEType) {
		if x.heic == nil {
			return ocr.Recognition{}, fmt.Errorf("no converter configured for %s", job.MIMEType)
		}
		if data, err = x.heic.Convert(ctx, data); err != nil {
			return ocr.Recognition{}, err
		}
	}
	e, err := x.engineFor(job.Lang)
	if err != nil {
		return ocr.Recognition{}, err
	}
	return e.Recognize(ctx, data)
}

func (x *ImageExtractor) engineFor(lang string) (ocr.Engine, error) {
	if lang == "" {
		lang = constants.DefaultLang
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.engine != nil && x.lang == lang {
		return x.engine, nil
	}
	if x.engine != nil {
		if err := x.engine.Close(); err != nil {
			x.logger.Warn("close ocr engine failed", "lang", x.lang, "error", err)
		}
		x.engine = nil
	}
	e, err := x.factory(lang)
	if err != nil {
		return nil, fmt.Errorf("create ocr engine: %w", err)
	}
	x.engine, x.lang = e, lang
	return e, nil
}

// Close releases the cached engine.
func (x *ImageExtractor) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.engine == nil {
		return nil
	}
	err := x.engine.Close()
	x.engine = nil
	return err
}
