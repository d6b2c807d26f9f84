package extract

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/docextract/constants"
	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/ocr"
	"github.com/joseph-ayodele/docextract/internal/render"
)

// Document is an opened PDF as seen by the extractor. Pages are 1-based.
type Document interface {
	NumPages() int
	PageText(page int) (string, error)
	RenderPage(page int, scale float64) ([]byte, error)
	Close() error
}

// Opener parses document bytes.
type Opener func(data []byte) (Document, error)

// PDFExtractor emits one Result per page: the text layer when the page has
// one, otherwise OCR of the page rendered at renderScale. The last Result
// emitted carries IsFinished; that is page N unless page N was skipped as
// already stored, in which case every later page is stored too.
type PDFExtractor struct {
	guard

	open           Opener
	factory        ocr.Factory
	renderScale    float64
	maxConcurrency int
	cpus           int
	logger         *slog.Logger
}

type PDFOption func(*PDFExtractor)

// WithOpener replaces the MuPDF-backed document opener.
func WithOpener(o Opener) PDFOption {
	return func(x *PDFExtractor) {
		if o != nil {
			x.open = o
		}
	}
}

func WithRenderScale(s float64) PDFOption {
	return func(x *PDFExtractor) {
		if s > 0 {
			x.renderScale = s
		}
	}
}

// WithMaxConcurrency caps the OCR pool; 0 leaves it bounded by CPUs and pages.
func WithMaxConcurrency(n int) PDFOption {
	return func(x *PDFExtractor) {
		if n >= 0 {
			x.maxConcurrency = n
		}
	}
}

// WithCPUs overrides runtime.NumCPU for pool sizing.
func WithCPUs(n int) PDFOption {
	return func(x *PDFExtractor) {
		if n > 0 {
			x.cpus = n
		}
	}
}

func NewPDFExtractor(factory ocr.Factory, logger *slog.Logger, opts ...PDFOption) *PDFExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	x := &PDFExtractor{
		factory:     factory,
		renderScale: constants.DefaultRenderScale,
		cpus:        runtime.NumCPU(),
		logger:      logger,
	}
	x.open = func(data []byte) (Document, error) {
		return render.Open(data, x.logger)
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

type pageOutcome struct {
	text string
	loc  Location
	err  error
}

func (x *PDFExtractor) Extract(ctx context.Context, job Job, data []byte, emit Emit) error {
	if err := x.enter(); err != nil {
		return err
	}
	defer x.leave()

	ctx, logger := withJob(ctx, job, x.logger)

	start := time.Now()
	doc, err := x.open(data)
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			logger.Warn("close pdf failed", "error", cerr)
		}
	}()

	total := doc.NumPages()
	if total == 0 {
		logger.Warn("pdf has no pages")
		return emit(ctx, Result{FileID: job.FileID, IsFinished: true, Failed: true, Error: "document has no pages"})
	}
	pages := make([]int, 0, total)
	for p := 1; p <= total; p++ {
		if job.Skips(Location{Page: p}) {
			continue
		}
		pages = append(pages, p)
	}
	if len(pages) == 0 {
		logger.Info("pdf already extracted", "pages", total)
		return nil
	}

	size := ocr.PoolSize(x.cpus, len(pages), x.maxConcurrency)
	lang := job.Lang
	if lang == "" {
		lang = constants.DefaultLang
	}
	pool := ocr.NewPool(size, lang, x.factory, logger)
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Warn("close ocr pool failed", "error", cerr)
		}
	}()

	logger.Info("pdf extraction started",
		"pages", total,
		"skipped", total-len(pages),
		"pool_size", size,
	)

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(wctx)

	slots := make([]chan pageOutcome, len(pages))
	for i := range slots {
		slots[i] = make(chan pageOutcome, 1)
	}
	var cursor atomic.Int64
	for w := 0; w < size; w++ {
		g.Go(func() error {
			for {
				i := int(cursor.Add(1)) - 1
				if i >= len(pages) {
					return nil
				}
				out := x.page(gctx, doc, pool, pages[i])
				if err := gctx.Err(); err != nil {
					return err
				}
				slots[i] <- out
			}
		})
	}

	var (
		runErr error
		failed int
	)
emitLoop:
	for i, p := range pages {
		var out pageOutcome
		select {
		case out = <-slots[i]:
		case <-gctx.Done():
			runErr = ctx.Err()
			break emitLoop
		}

		res := Result{
			FileID:     job.FileID,
			Text:       out.text,
			Location:   out.loc,
			IsFinished: i == len(pages)-1,
		}
		if out.err != nil {
			failed++
			logger.Error("pdf page failed", "page", p, "error", out.err)
			res.Text = ""
			res.Location = Location{Page: p}
			res.Failed = true
			res.Error = out.err.Error()
		}
		if err := emit(ctx, res); err != nil {
			runErr = fmt.Errorf("emit page %d: %w", p, err)
			break
		}
	}
	cancel()
	_ = g.Wait() // workers only fail on cancellation, which runErr already reflects

	if runErr != nil {
		return runErr
	}
	logger.Info("pdf extraction finished",
		"pages", len(pages),
		"failed_pages", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// page extracts a single page. Failures and panics come back as the outcome's
// err so the remaining pages still run.
func (x *PDFExtractor) page(ctx context.Context, doc Document, pool *ocr.Pool, page int) (out pageOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = pageOutcome{loc: Location{Page: page}, err: fmt.Errorf("panic: %v", r)}
		}
	}()

	txt, err := doc.PageText(page)
	if err != nil {
		common.LoggerWith(ctx, x.logger).Debug("text layer unreadable, falling back to ocr", "page", page, "error", err)
		txt = ""
	}
	if strings.TrimSpace(txt) != "" {
		return pageOutcome{text: txt, loc: Location{Page: page}}
	}

	img, err := doc.RenderPage(page, x.renderScale)
	if err != nil {
		return pageOutcome{loc: Location{Page: page}, err: err}
	}
	rec, err := pool.Recognize(ctx, img)
	if err != nil {
		return pageOutcome{loc: Location{Page: page}, err: fmt.Errorf("ocr page %d: %w", page, err)}
	}
	return pageOutcome{
		text: rec.Text,
		loc:  Location{Page: page, Scale: x.renderScale, Words: rec.Words},
	}
}
