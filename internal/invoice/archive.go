package invoice

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Archive entry names
const (
	ArchiveName      = "invoice_outputs.zip"
	JSONEntryName    = "extracted_data.json"
	SummaryEntryName = "summary.txt"
	CSVEntryName     = "invoice_items.csv"
	XLSXEntryName    = "invoice_items.xlsx"
)

// PrettyJSON renders a record with two-space indentation and without HTML escaping
func PrettyJSON(record Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(record.Map()); err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// BuildArchive packages the artifacts of a run into a zip archive.
// A CSV reply that cannot be rendered as a worksheet only drops the XLSX entry.
func BuildArchive(result *Result, logger *slog.Logger) ([]byte, error) {
	if result == nil {
		return nil, ErrRunNotComplete
	}
	if logger == nil {
		logger = slog.Default()
	}

	jsonData, err := PrettyJSON(result.Record)
	if err != nil {
		return nil, err
	}

	entries := []struct {
		name string
		data []byte
	}{
		{JSONEntryName, jsonData},
		{SummaryEntryName, []byte(result.Summary)},
		{CSVEntryName, []byte(result.CSV)},
	}

	xlsx, err := CSVToXLSX(result.CSV)
	if err != nil {
		logger.Warn("Skipping spreadsheet entry", "run_id", result.RunID, "error", err)
	} else {
		entries = append(entries, struct {
			name string
			data []byte
		}{XLSXEntryName, xlsx})
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	modified := time.Now()
	for _, entry := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     entry.name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", entry.name, err)
		}
		if _, err := w.Write(entry.data); err != nil {
			return nil, fmt.Errorf("writing %s: %w", entry.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	return buf.Bytes(), nil
}
