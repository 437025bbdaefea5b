package scanning

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// MediaKind is the declared kind of a source document
type MediaKind string

const (
	KindPDF   MediaKind = "pdf"
	KindImage MediaKind = "image"
)

// PNGMimeType is the MIME type of every normalized page
const PNGMimeType = "image/png"

// SourceDocument is an uploaded invoice before normalization
type SourceDocument struct {
	Name     string
	Kind     MediaKind
	MIMEType string // declared content type, used to detect HEIC
	Data     []byte
}

// PageImage is one rendered page of a document
type PageImage struct {
	Number   int // 1-based page number
	MIMEType string
	Data     []byte
}

// NewSourceDocument builds a SourceDocument from a declared media type.
// declared may be a short kind ("pdf", "png", "jpg", "jpeg"), a MIME type or
// a file extension. When declared is empty or generic (application/octet-stream,
// as multipart uploads often send) the filename extension is used.
func NewSourceDocument(name string, data []byte, declared string) (SourceDocument, error) {
	if len(data) == 0 {
		return SourceDocument{}, fmt.Errorf("%w: empty document", ErrUnsupportedMedia)
	}

	mimeType, ok := normalizeMediaType(declared)
	if !ok {
		mimeType, ok = normalizeMediaType(filepath.Ext(name))
	}
	if !ok {
		return SourceDocument{}, fmt.Errorf("%w: %q (%s)", ErrUnsupportedMedia, declared, name)
	}

	kind := KindImage
	if mimeType == "application/pdf" {
		kind = KindPDF
	}

	return SourceDocument{
		Name:     name,
		Kind:     kind,
		MIMEType: mimeType,
		Data:     data,
	}, nil
}

// normalizeMediaType maps a declared kind, extension or MIME type to a MIME type
func normalizeMediaType(declared string) (string, bool) {
	d := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(d, ";"); i >= 0 {
		d = strings.TrimSpace(d[:i])
	}
	d = strings.TrimPrefix(d, ".")

	switch d {
	case "pdf", "application/pdf":
		return "application/pdf", true
	case "png", "image/png":
		return "image/png", true
	case "jpg", "jpeg", "image/jpeg", "image/jpg", "image/pjpeg":
		return "image/jpeg", true
	case "gif", "image/gif":
		return "image/gif", true
	case "heic", "image/heic":
		return "image/heic", true
	case "heif", "image/heif":
		return "image/heif", true
	}
	return "", false
}

// GenerationConfig holds the decoding parameters sent with every request
type GenerationConfig struct {
	Temperature     float32
	TopP            float32
	TopK            int32
	MaxOutputTokens int32
}

// DefaultGenerationConfig is tuned for low-variance extraction
var DefaultGenerationConfig = GenerationConfig{
	Temperature:     0.35,
	TopP:            0.95,
	TopK:            64,
	MaxOutputTokens: 8192,
}

// Backend sends a page sequence and one prompt to a generative model
type Backend interface {
	// Generate returns the raw response text for one extraction pass.
	// All pages are sent together, in order, as context for the prompt.
	Generate(ctx context.Context, pages []PageImage, prompt Prompt) (string, error)
	// Close releases the backend's clients
	Close() error
}
