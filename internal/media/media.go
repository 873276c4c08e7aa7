package media

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/FAKUBA08/HaySquare-Back/internal/domain"
)

var allowedTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"application/pdf": true,
	"video/mp4":       true,
	"video/quicktime": true,
	"text/plain":      true,
	"application/zip": true,
}

// Allowed reports whether mimeType is on the upload allow-list.
func Allowed(mimeType string) bool {
	return allowedTypes[normalize(mimeType)]
}

// Classify maps a MIME type to the message kind stored with the attachment.
func Classify(mimeType string) domain.Kind {
	mt := normalize(mimeType)
	switch {
	case strings.HasPrefix(mt, "image/"):
		return domain.KindImage
	case strings.HasPrefix(mt, "video/"):
		return domain.KindVideo
	case mt == "application/pdf":
		return domain.KindPDF
	default:
		return domain.KindDocument
	}
}

// strips parameters such as "; charset=utf-8"
func normalize(mimeType string) string {
	mt, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// NewFileName returns "<unix-millis>-<random><ext>" keeping the extension of
// the uploaded name.
func NewFileName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	return fmt.Sprintf("%d-%d%s", time.Now().UnixMilli(), rand.IntN(1_000_000_000), ext)
}

func compressedName(name, ext string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return base + "_compressed" + ext
}
