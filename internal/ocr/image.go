package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// ToPNG returns the image re-encoded as PNG. PNG input is returned as is;
// anything else registered with image.Decode is decoded and re-encoded so the
// engine always sees a format it reads.
func ToPNG(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if bytes.HasPrefix(data, pngMagic) {
		return data, nil
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return EncodePNG(img, format)
}

// EncodePNG encodes img as PNG; format is only used in error messages.
func EncodePNG(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode %s as png: %w", format, err)
	}
	return buf.Bytes(), nil
}
