package ingest

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/joseph-ayodele/docextract/constants"
)

// AllowedExt checks if a file extension is in the allowed set.
func AllowedExt(ext string) bool {
	ext = constants.NormalizeExt(ext)
	_, ok := constants.AllowedExtensions[ext]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}

// DetectMIME sniffs content and falls back to the extension when the sniffed
// type has no extractor (e.g. HTML fragments detected as text/plain).
func DetectMIME(path string, data []byte) string {
	sniffed := constants.BaseMIME(mimetype.Detect(data).String())
	if constants.IsHandled(sniffed) {
		return sniffed
	}
	if byExt := constants.MapExtToMIME(filepath.Ext(path)); byExt != "" {
		return byExt
	}
	return sniffed
}
