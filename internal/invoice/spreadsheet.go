package invoice

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/invoice-parser/internal/scanning"
)

const itemsSheet = "Invoice Items"

// ErrNoRows is returned when a CSV reply holds no data rows
var ErrNoRows = errors.New("no CSV rows")

// ParseCSV reads the CSV pass reply. Stray code fence lines and blank lines are
// skipped and rows may have differing widths.
func ParseCSV(text string) ([][]string, error) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "```") {
			continue
		}
		lines = append(lines, strings.TrimRight(line, "\r"))
	}
	if len(lines) == 0 {
		return nil, ErrNoRows
	}

	r := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	return rows, nil
}

// CheckCSVHeader compares the header row of the CSV pass reply with the
// requested columns and describes any difference. Unreadable replies yield nil.
func CheckCSVHeader(text string) []string {
	rows, err := ParseCSV(text)
	if err != nil || len(rows) == 0 {
		return nil
	}

	header := rows[0]
	matches := len(header) == len(scanning.CSVColumns)
	for i := 0; matches && i < len(header); i++ {
		matches = strings.EqualFold(strings.TrimSpace(header[i]), scanning.CSVColumns[i])
	}
	if matches {
		return nil
	}
	return []string{fmt.Sprintf("csv: header is %q, expected %q", header, scanning.CSVColumns)}
}

// CSVToXLSX renders the CSV pass reply as a single worksheet with a bold header row
func CSVToXLSX(text string) ([]byte, error) {
	rows, err := ParseCSV(text)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", itemsSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	widest := 0
	for i, row := range rows {
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(itemsSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("writing row %d: %w", i+1, err)
		}
		widest = max(widest, len(row))
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetRowStyle(itemsSheet, 1, 1, bold); err != nil {
		return nil, fmt.Errorf("styling header: %w", err)
	}

	if widest > 0 {
		last, err := excelize.ColumnNumberToName(widest)
		if err != nil {
			return nil, err
		}
		_ = f.SetColWidth(itemsSheet, "A", "A", 40)
		if widest > 1 {
			_ = f.SetColWidth(itemsSheet, "B", last, 14)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
