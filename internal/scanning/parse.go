package scanning

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode"
)

const codeFence = "```"

// rawPreviewLen bounds how much of a malformed response is logged
const rawPreviewLen = 500

// DiagnosticSink receives the raw text of responses that failed to parse
type DiagnosticSink interface {
	Capture(raw string) error
}

// DiagnosticSinkFunc adapts a function to DiagnosticSink
type DiagnosticSinkFunc func(raw string) error

func (f DiagnosticSinkFunc) Capture(raw string) error {
	return f(raw)
}

// SanitizeJSON strips markdown code fences and the prose around them.
// A fence only opens at the start of a line and only closes at the end of one,
// so fences inside JSON string values are kept and clean JSON is only trimmed.
func SanitizeJSON(text string) string {
	text = strings.TrimSpace(text)

	open := openingFence(text)
	if open == -1 || strings.TrimSpace(text[open+len(codeFence):]) == "" {
		// No opening fence, at most a trailing one
		return strings.TrimSpace(strings.TrimSuffix(text, codeFence))
	}

	body := stripLanguageTag(text[open+len(codeFence):])
	if closing := closingFence(body); closing != -1 {
		body = body[:closing]
	}
	return strings.TrimSpace(body)
}

// openingFence returns the index of the first fence that starts a line, or -1
func openingFence(text string) int {
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], codeFence)
		if i == -1 {
			return -1
		}
		i += offset
		if i == 0 || text[i-1] == '\n' {
			return i
		}
		offset = i + len(codeFence)
	}
	return -1
}

// closingFence returns the index of the first fence that ends a line, or -1
func closingFence(body string) int {
	for offset := 0; offset < len(body); {
		i := strings.Index(body[offset:], codeFence)
		if i == -1 {
			return -1
		}
		i += offset
		rest := body[i+len(codeFence):]
		if eol := strings.IndexByte(rest, '\n'); eol != -1 {
			rest = rest[:eol]
		}
		if strings.TrimSpace(rest) == "" {
			return i
		}
		offset = i + len(codeFence)
	}
	return -1
}

// stripLanguageTag removes a "json" annotation right after an opening fence.
// A longer tag such as "jsonc" is left alone.
func stripLanguageTag(body string) string {
	if len(body) < 4 || !strings.EqualFold(body[:4], "json") {
		return body
	}
	rest := body[4:]
	if rest != "" {
		if r := rune(rest[0]); unicode.IsLetter(r) || unicode.IsDigit(r) {
			return body
		}
	}
	return rest
}

// ResponseParser turns JSON pass responses into mappings, degrading to an
// empty mapping when the response is not a JSON object.
type ResponseParser struct {
	sink   DiagnosticSink
	logger *slog.Logger
}

// NewResponseParser creates a parser. sink and logger may be nil.
func NewResponseParser(sink DiagnosticSink, logger *slog.Logger) *ResponseParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseParser{sink: sink, logger: logger}
}

// Parse sanitizes and strictly parses raw. It never fails: on malformed input
// it records the raw text and returns an empty, non-nil mapping and false.
func (p *ResponseParser) Parse(raw string) (map[string]any, bool) {
	data, err := DecodeObject(SanitizeJSON(raw))
	if err == nil {
		return data, true
	}

	malformed := &MalformedResponseError{Raw: raw, Err: err}
	p.logger.Error("Error processing JSON response", "error", malformed, "raw_preview", preview(raw))

	if p.sink != nil {
		if sinkErr := p.sink.Capture(raw); sinkErr != nil {
			p.logger.Warn("Failed to capture raw response", "error", sinkErr)
		}
	}

	return map[string]any{}, false
}

// DecodeObject strictly decodes text as exactly one JSON object.
// Numbers are kept as json.Number so their formatting survives re-encoding.
func DecodeObject(text string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %s", jsonKind(value))
	}
	return obj, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func preview(raw string) string {
	r := []rune(raw)
	if len(r) <= rawPreviewLen {
		return raw
	}
	return string(r[:rawPreviewLen]) + "..."
}
