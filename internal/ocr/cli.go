package ocr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// CLIEngine shells out to the tesseract binary, feeding the image on stdin and
// reading TSV output so word boxes come back with the text.
type CLIEngine struct {
	cfg    Config
	lang   string
	runner Runner
}

// NewCLIEngine builds an engine around the tesseract binary. A nil runner uses os/exec.
func NewCLIEngine(cfg Config, lang string, runner Runner) *CLIEngine {
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if lang == "" {
		lang = "eng"
	}
	if runner == nil {
		runner = execRunner{}
	}
	return &CLIEngine{cfg: cfg, lang: lang, runner: runner}
}

func (e *CLIEngine) Recognize(ctx context.Context, image []byte) (Recognition, error) {
	if len(image) == 0 {
		return Recognition{}, ErrEmptyImage
	}
	png, err := ToPNG(image)
	if err != nil {
		return Recognition{}, err
	}

	// tesseract stdin stdout -l <lang> [--psm N] [--tessdata-dir D] tsv
	args := []string{"stdin", "stdout", "-l", e.lang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := e.runner.Run(ctx, png, e.cfg.Tesseract, args...)
	if err != nil {
		return Recognition{}, fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	return ParseTSV(string(out)), nil
}

func (e *CLIEngine) Close() error { return nil }

// ParseTSV converts tesseract TSV output into text and word boxes. Lines are
// rebuilt from (block, paragraph, line) numbers; paragraphs are separated by a
// blank line.
//
// Columns: level page_num block_num par_num line_num word_num left top width height conf text
func ParseTSV(tsv string) Recognition {
	var (
		words []Word
		b     strings.Builder
		last  [3]int
		first = true
	)
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || len(ln) == 0 {
			continue
		} // skip header
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		if cols[0] != "5" { // word level
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		nums := make([]int, 10)
		for j := 0; j < 10; j++ {
			nums[j], _ = strconv.Atoi(cols[j])
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			conf = 0
		}

		key := [3]int{nums[2], nums[3], nums[4]}
		switch {
		case first:
			first = false
		case key[0] != last[0] || key[1] != last[1]:
			b.WriteString("\n\n")
		case key[2] != last[2]:
			b.WriteString("\n")
		default:
			b.WriteString(" ")
		}
		last = key
		b.WriteString(text)

		left, top, width, height := nums[6], nums[7], nums[8], nums[9]
		words = append(words, Word{
			Text:       text,
			Box:        Box{X0: left, Y0: top, X1: left + width, Y1: top + height},
			Confidence: conf / 100.0,
		})
	}
	return Recognition{
		Text:       Normalize(b.String()),
		Words:      words,
		Confidence: meanConfidence(words),
	}
}
