package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockSelector = "p, div, li, tr, h1, h2, h3, h4, h5, h6, section, article, header, footer, blockquote, pre, table, ul, ol, dd, dt"

// HTMLExtractor converts markup to plain text as a single unit. It holds no
// state and is safe for concurrent use.
type HTMLExtractor struct {
	logger *slog.Logger
}

func NewHTMLExtractor(logger *slog.Logger) *HTMLExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTMLExtractor{logger: logger}
}

func (x *HTMLExtractor) Extract(ctx context.Context, job Job, data []byte, emit Emit) error {
	if job.Skips(Location{}) {
		return nil
	}
	ctx, logger := withJob(ctx, job, x.logger)
	text, err := HTMLToText(data)
	if err != nil {
		logger.Error("html parse failed", "error", err)
		return emit(ctx, Result{FileID: job.FileID, IsFinished: true, Failed: true, Error: err.Error()})
	}
	logger.Info("html extracted", "chars", len(text))
	return emit(ctx, Result{FileID: job.FileID, Text: text, IsFinished: true})
}

// HTMLToText drops non-content elements, breaks lines at block elements and
// collapses whitespace.
func HTMLToText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, template, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	lines := strings.Split(doc.Text(), "\n")
	out := lines[:0]
	for _, ln := range lines {
		if ln = strings.Join(strings.Fields(ln), " "); ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n"), nil
}
