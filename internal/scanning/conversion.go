package scanning

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"log/slog"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// DefaultDPI is the resolution PDF pages are rendered at
const DefaultDPI = 150

func init() {
	// pdfcpu would otherwise create a config directory under the user's home
	api.DisableConfigDir()
}

// Normalizer turns source documents into PNG page sequences.
// It holds no per-document state and is safe for concurrent use.
type Normalizer struct {
	dpi      float64
	maxPages int
	logger   *slog.Logger
}

// NormalizerOption configures a Normalizer
type NormalizerOption func(*Normalizer)

// WithDPI sets the PDF rendering resolution
func WithDPI(dpi float64) NormalizerOption {
	return func(n *Normalizer) {
		if dpi > 0 {
			n.dpi = dpi
		}
	}
}

// WithMaxPages rejects PDFs with more than max pages. Zero means unlimited.
func WithMaxPages(max int) NormalizerOption {
	return func(n *Normalizer) {
		n.maxPages = max
	}
}

// WithNormalizerLogger sets the logger used for preflight warnings
func WithNormalizerLogger(logger *slog.Logger) NormalizerOption {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNormalizer creates a Normalizer
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		dpi:    DefaultDPI,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts a document into an ordered, non-empty sequence of PNG pages.
// Every failure is reported as a *DocumentConversionError; a partial sequence is never returned.
func (n *Normalizer) Normalize(ctx context.Context, doc SourceDocument) ([]PageImage, error) {
	switch doc.Kind {
	case KindPDF:
		return n.renderPDF(ctx, doc.Data)
	case KindImage:
		pngData, err := imageToPNG(doc.Data, doc.MIMEType)
		if err != nil {
			return nil, conversionError(1, err)
		}
		return []PageImage{{Number: 1, MIMEType: PNGMimeType, Data: pngData}}, nil
	default:
		return nil, conversionError(0, fmt.Errorf("%w: kind %q", ErrUnsupportedMedia, doc.Kind))
	}
}

// renderPDF renders every page of a PDF to PNG, in page order
func (n *Normalizer) renderPDF(ctx context.Context, pdfData []byte) ([]PageImage, error) {
	expected, preflightErr := pdfPageCount(pdfData)
	if preflightErr != nil {
		n.logger.Warn("PDF preflight failed, relying on renderer", "error", preflightErr)
	}

	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, conversionError(0, fmt.Errorf("opening PDF: %w", err))
	}
	defer doc.Close()

	count := doc.NumPage()
	if count <= 0 {
		return nil, conversionError(0, ErrNoPages)
	}
	if preflightErr == nil && expected != count {
		return nil, conversionError(0, fmt.Errorf("page count mismatch: preflight found %d, renderer found %d", expected, count))
	}
	if n.maxPages > 0 && count > n.maxPages {
		return nil, conversionError(0, fmt.Errorf("document has %d pages, limit is %d", count, n.maxPages))
	}

	pages := make([]PageImage, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, conversionError(i+1, err)
		}

		img, err := doc.ImageDPI(i, n.dpi)
		if err != nil {
			return nil, conversionError(i+1, fmt.Errorf("rendering PDF page: %w", err))
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, conversionError(i+1, fmt.Errorf("encoding PNG: %w", err))
		}

		pages = append(pages, PageImage{
			Number:   i + 1,
			MIMEType: PNGMimeType,
			Data:     buf.Bytes(),
		})
	}

	return pages, nil
}

// pdfPageCount reads the page count with pdfcpu in relaxed validation mode
func pdfPageCount(pdfData []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	count, err := api.PageCount(bytes.NewReader(pdfData), conf)
	if err != nil {
		return 0, fmt.Errorf("reading PDF structure: %w", err)
	}
	return count, nil
}

// imageToPNG converts any supported image format to PNG.
// PNG input is decoded and re-encoded too, so the output is always a clean PNG.
func imageToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	// Check for HEIC/HEIF format (common on iPhones) - Go's standard image package doesn't support it
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
				return nil, fmt.Errorf("%w. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF: %v", ErrUnsupportedMedia, err)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}

	return buf.Bytes(), nil
}

// isHEICFormat checks the ftyp box for a HEIC/HEIF brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
