package ocr

import (
	"context"
	"errors"
)

// Box is a word bounding box in pixel coordinates of the recognized image.
type Box struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

// Word is a single recognized token.
type Word struct {
	Text       string  `json:"text"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Recognition is the output of one engine call on one image.
type Recognition struct {
	Text       string
	Words      []Word
	Confidence float64 // mean word confidence, 0..1; 0 when unknown
}

// Engine recognizes text in a single encoded image. Implementations are not
// required to be safe for concurrent use; the Pool hands an engine to one
// caller at a time.
type Engine interface {
	Recognize(ctx context.Context, image []byte) (Recognition, error)
	Close() error
}

// Factory builds a new engine instance for the given language.
type Factory func(lang string) (Engine, error)

// Config holds engine settings shared by every instance.
type Config struct {
	Engine      string // "tesseract" (libtesseract) | "cli" (tesseract binary)
	Tesseract   string // binary name or absolute path for the cli engine; default "tesseract"
	TessdataDir string // engine init data directory; empty -> library default
	PSM         int    // page segmentation mode; 0 -> engine default
}

var (
	ErrPoolClosed    = errors.New("ocr pool closed")
	ErrEmptyImage    = errors.New("ocr: empty image")
	ErrUnknownEngine = errors.New("ocr: unknown engine")
)

// NewFactory returns the engine constructor selected by cfg.Engine.
func NewFactory(cfg Config) (Factory, error) {
	switch cfg.Engine {
	case "", "tesseract":
		return func(lang string) (Engine, error) {
			return NewTesseractEngine(cfg, lang)
		}, nil
	case "cli":
		return func(lang string) (Engine, error) {
			return NewCLIEngine(cfg, lang, nil), nil
		}, nil
	default:
		return nil, ErrUnknownEngine
	}
}

func meanConfidence(words []Word) float64 {
	if len(words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range words {
		sum += w.Confidence
	}
	return sum / float64(len(words))
}
