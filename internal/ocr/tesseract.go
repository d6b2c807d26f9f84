package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine wraps one libtesseract client. The client keeps its loaded
// language model between calls, which is why engines are pooled.
type TesseractEngine struct {
	client *gosseract.Client
	lang   string
}

func NewTesseractEngine(cfg Config, lang string) (*TesseractEngine, error) {
	if lang == "" {
		lang = "eng"
	}
	c := gosseract.NewClient()
	if cfg.TessdataDir != "" {
		if st, err := os.Stat(cfg.TessdataDir); err == nil && st.IsDir() {
			if err := c.SetTessdataPrefix(cfg.TessdataDir); err != nil {
				_ = c.Close()
				return nil, fmt.Errorf("set tessdata prefix: %w", err)
			}
		}
	}
	if err := c.SetLanguage(splitLangs(lang)...); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("set language %q: %w", lang, err)
	}
	if cfg.PSM > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(cfg.PSM)); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("set psm: %w", err)
		}
	}
	return &TesseractEngine{client: c, lang: lang}, nil
}

func (e *TesseractEngine) Recognize(ctx context.Context, image []byte) (Recognition, error) {
	if len(image) == 0 {
		return Recognition{}, ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return Recognition{}, err
	}
	png, err := ToPNG(image)
	if err != nil {
		return Recognition{}, err
	}
	if err := e.client.SetImageFromBytes(png); err != nil {
		return Recognition{}, fmt.Errorf("set image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return Recognition{}, fmt.Errorf("recognize text: %w", err)
	}
	words := e.words()
	return Recognition{
		Text:       Normalize(text),
		Words:      words,
		Confidence: meanConfidence(words),
	}, nil
}

func (e *TesseractEngine) words() []Word {
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil
	}
	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		words = append(words, Word{
			Text:       b.Word,
			Box:        Box{X0: b.Box.Min.X, Y0: b.Box.Min.Y, X1: b.Box.Max.X, Y1: b.Box.Max.Y},
			Confidence: b.Confidence / 100.0,
		})
	}
	return words
}

func (e *TesseractEngine) Close() error {
	return e.client.Close()
}

// splitLangs turns "eng+chi_sim" into ["eng", "chi_sim"].
func splitLangs(lang string) []string {
	parts := strings.Split(lang, "+")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
