// Package render opens PDF documents and exposes per-page text and raster images.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/docextract/constants"
	"github.com/joseph-ayodele/docextract/internal/ocr"
)

var (
	ErrClosed    = errors.New("render: document closed")
	ErrPageRange = errors.New("render: page out of range")
)

// Document is an opened PDF. Page numbers are 1-based. Calls are serialized;
// the underlying MuPDF handle is never used from two goroutines at once.
type Document struct {
	mu     sync.Mutex
	fz     *fitz.Document
	text   *pdf.Reader // nil when the text-layer parser rejected the file
	pages  int
	closed bool
	logger *slog.Logger
}

// Open parses data as a PDF. It fails when MuPDF cannot open the document;
// a text-layer parser failure only downgrades PageText to MuPDF's own text.
func Open(data []byte, logger *slog.Logger) (*Document, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(data) == 0 {
		return nil, errors.New("render: empty document")
	}
	fz, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	d := &Document{fz: fz, pages: fz.NumPage(), logger: logger}

	r, err := openTextReader(data)
	if err != nil {
		logger.Debug("text layer parser unavailable, using mupdf text", "error", err)
	} else {
		d.text = r
	}
	return d, nil
}

func openTextReader(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("pdf parser panic: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func (d *Document) NumPages() int { return d.pages }

// PageText returns the page's embedded text layer in parser order. An empty
// string means the page has no text layer.
func (d *Document) PageText(page int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(page); err != nil {
		return "", err
	}
	if d.text != nil && page <= d.text.NumPage() {
		txt, err := plainText(d.text, page)
		if err == nil {
			return txt, nil
		}
		d.logger.Debug("text layer read failed, using mupdf text", "page", page, "error", err)
	}
	txt, err := d.fz.Text(page - 1)
	if err != nil {
		return "", fmt.Errorf("page %d text: %w", page, err)
	}
	return txt, nil
}

func plainText(r *pdf.Reader, page int) (txt string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			txt, err = "", fmt.Errorf("pdf parser panic on page %d: %v", page, rec)
		}
	}()
	p := r.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	txt, err = p.GetPlainText(nil)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(txt, "\x00", ""), nil
}

// RenderPage rasterizes a page at scale (1.0 = 72 DPI) and returns PNG bytes.
func (d *Document) RenderPage(page int, scale float64) ([]byte, error) {
	if scale <= 0 {
		scale = constants.DefaultRenderScale
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(page); err != nil {
		return nil, err
	}
	img, err := d.fz.ImageDPI(page-1, constants.PointsPerInch*scale)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	return ocr.EncodePNG(img, "page")
}

func (d *Document) check(page int) error {
	if d.closed {
		return ErrClosed
	}
	if page < 1 || page > d.pages {
		return fmt.Errorf("%w: %d of %d", ErrPageRange, page, d.pages)
	}
	return nil
}

// Close releases the native handle. Safe to call more than once.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.text = nil
	return d.fz.Close()
}
