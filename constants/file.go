package constants

import "strings"

// MIME types handled by the extraction pipeline.
const (
	MIMEPDF   = "application/pdf"
	MIMEHTML  = "text/html"
	MIMEXHTML = "application/xhtml+xml"
	MIMEPNG   = "image/png"
	MIMEJPEG  = "image/jpeg"
	MIMETIFF  = "image/tiff"
	MIMEBMP   = "image/bmp"
	MIMEWebP  = "image/webp"
	MIMEGIF   = "image/gif"
	MIMEHEIC  = "image/heic"
	MIMEHEIF  = "image/heif"
)

// HandledMIMETypes lists every type the pipeline extracts. Ingest, routing and
// the resume pass all read this one table.
var HandledMIMETypes = []string{
	MIMEPDF,
	MIMEHTML,
	MIMEXHTML,
	MIMEPNG,
	MIMEJPEG,
	MIMETIFF,
	MIMEBMP,
	MIMEWebP,
	MIMEGIF,
	MIMEHEIC,
	MIMEHEIF,
}

// AllowedExtensions holds the default allowed file extensions for ingestion.
var AllowedExtensions = map[string]string{
	"pdf":   MIMEPDF,
	"html":  MIMEHTML,
	"htm":   MIMEHTML,
	"xhtml": MIMEXHTML,
	"png":   MIMEPNG,
	"jpg":   MIMEJPEG,
	"jpeg":  MIMEJPEG,
	"tif":   MIMETIFF,
	"tiff":  MIMETIFF,
	"bmp":   MIMEBMP,
	"webp":  MIMEWebP,
	"gif":   MIMEGIF,
	"heic":  MIMEHEIC,
	"heif":  MIMEHEIF,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToMIME returns the MIME type for an extension, or "" when unsupported.
func MapExtToMIME(ext string) string {
	return AllowedExtensions[NormalizeExt(ext)]
}

// BaseMIME strips parameters ("text/html; charset=utf-8" -> "text/html") and lowercases.
func BaseMIME(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func IsPDF(mimeType string) bool { return BaseMIME(mimeType) == MIMEPDF }

func IsHTML(mimeType string) bool {
	m := BaseMIME(mimeType)
	return m == MIMEHTML || m == MIMEXHTML
}

var handledSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(HandledMIMETypes))
	for _, t := range HandledMIMETypes {
		m[t] = struct{}{}
	}
	return m
}()

// IsImage reports whether the type is one of the handled raster formats.
func IsImage(mimeType string) bool {
	m := BaseMIME(mimeType)
	return strings.HasPrefix(m, "image/") && IsHandled(m)
}

// IsHandled reports whether the pipeline has an extractor for the type.
func IsHandled(mimeType string) bool {
	_, ok := handledSet[BaseMIME(mimeType)]
	return ok
}

func IsHEIC(mimeType string) bool {
	m := BaseMIME(mimeType)
	return m == MIMEHEIC || m == MIMEHEIF
}
