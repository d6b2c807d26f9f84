package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// HEICConverter turns HEIC/HEIF bytes into PNG using an external tool:
// "heif-convert" | "magick" | "sips".
type HEICConverter struct {
	Converter string
	runner    Runner
}

func NewHEICConverter(converter string, logger *slog.Logger, runner Runner) *HEICConverter {
	if runner == nil {
		runner = execRunner{logger: logger}
	}
	return &HEICConverter{Converter: converter, runner: runner}
}

func (h *HEICConverter) Convert(ctx context.Context, data []byte) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "docx-heic-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	in := filepath.Join(tmpDir, "in.heic")
	out := filepath.Join(tmpDir, "out.png")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, err
	}

	var args []string
	switch h.Converter {
	case "heif-convert":
		args = []string{in, out}
	case "magick":
		args = []string{in, out}
	case "sips":
		args = []string{"-s", "format", "png", in, "--out", out}
	default:
		return nil, fmt.Errorf("HEIC not supported: set the converter to one of: heif-convert | magick | sips")
	}
	if _, errb, err := h.runner.Run(ctx, nil, h.Converter, args...); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", h.Converter, err, truncate(string(errb), 512))
	}

	png, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("HEIC conversion produced no output: %w", err)
	}
	return png, nil
}
