package scanning

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedMedia is returned for documents that are neither a PDF nor a supported image
	ErrUnsupportedMedia = errors.New("unsupported media type")
	// ErrNoPages is returned when a document renders to zero pages
	ErrNoPages = errors.New("document has no pages")
	// ErrEmptyResponse is returned when a backend answers without any text
	ErrEmptyResponse = errors.New("empty response from backend")
)

// DocumentConversionError reports that a document could not be turned into page images
type DocumentConversionError struct {
	Page int // 0 when the failure is not tied to a page
	Err  error
}

func (e *DocumentConversionError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("document conversion failed on page %d: %v", e.Page, e.Err)
	}
	return fmt.Sprintf("document conversion failed: %v", e.Err)
}

func (e *DocumentConversionError) Unwrap() error {
	return e.Err
}

// BackendUnavailableError reports a failed call to the generative backend
type BackendUnavailableError struct {
	Backend string
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("%s backend unavailable: %v", e.Backend, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

// MalformedResponseError describes a JSON pass response that could not be parsed.
// It is recorded for diagnostics and never returned to pipeline callers.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed JSON response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

func conversionError(page int, err error) error {
	return &DocumentConversionError{Page: page, Err: err}
}
