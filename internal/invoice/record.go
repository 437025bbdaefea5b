package invoice

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/invoice-parser/internal/scanning"
)

// TemplateFields are the top-level keys of the base extraction template
var TemplateFields = []string{
	"invoice_number",
	"issue_date",
	"due_date",
	"payment_terms",
	"customer_info",
	"company_info",
	"items",
	"summary",
	"notes",
}

// Record is the parsed structured result of the JSON pass.
// It keeps the full mapping the model returned; Template gives a typed view of
// the base template fields and Extensions the keys the model added.
// The zero value is an empty record.
type Record struct {
	fields map[string]any
}

// NewRecord wraps a parsed mapping. A nil mapping yields an empty record.
func NewRecord(fields map[string]any) Record {
	if fields == nil {
		fields = map[string]any{}
	}
	return Record{fields: fields}
}

// Map returns the underlying mapping, never nil
func (r Record) Map() map[string]any {
	if r.fields == nil {
		return map[string]any{}
	}
	return r.fields
}

// IsEmpty reports whether the record has no fields
func (r Record) IsEmpty() bool {
	return len(r.fields) == 0
}

// Extensions returns the top-level fields that are not part of the base template
func (r Record) Extensions() map[string]any {
	ext := make(map[string]any)
	for k, v := range r.fields {
		if !isTemplateField(k) {
			ext[k] = v
		}
	}
	return ext
}

func isTemplateField(key string) bool {
	for _, f := range TemplateFields {
		if f == key {
			return true
		}
	}
	return false
}

// MarshalJSON encodes the record as a JSON object; an empty record is {}
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// UnmarshalJSON decodes a JSON object, keeping numbers as written
func (r *Record) UnmarshalJSON(data []byte) error {
	if strings.TrimSpace(string(data)) == "null" {
		*r = NewRecord(nil)
		return nil
	}
	fields, err := scanning.DecodeObject(string(data))
	if err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}
	*r = NewRecord(fields)
	return nil
}

// Template is the typed view of the base template.
// Missing or null values are empty strings; numbers are kept in their written form.
type Template struct {
	InvoiceNumber string
	IssueDate     string
	DueDate       string
	PaymentTerms  string
	Customer      Party
	Company       Party
	Items         []LineItem
	Summary       Summary
	Notes         string
}

type Party struct {
	Name    string
	Address Address
	Contact Contact
	GSTIN   string
}

type Address struct {
	Line1   string
	Line2   string
	PinCode string
}

type Contact struct {
	Phone   string
	Email   string
	Website string
}

type LineItem struct {
	Description string
	Quantity    string
	UnitPrice   string
	Total       string
}

type Summary struct {
	Subtotal     string
	Tax          Charge
	Discount     Charge
	InvoiceTotal string
}

// Charge is a rate (percent) with its resulting amount
type Charge struct {
	Rate   string
	Amount string
}

// Template projects the record onto the base template
func (r Record) Template() Template {
	f := r.Map()
	t := Template{
		InvoiceNumber: text(f["invoice_number"]),
		IssueDate:     text(f["issue_date"]),
		DueDate:       text(f["due_date"]),
		PaymentTerms:  text(f["payment_terms"]),
		Customer:      party(object(f["customer_info"])),
		Company:       party(object(f["company_info"])),
		Notes:         text(f["notes"]),
	}

	if items, ok := f["items"].([]any); ok {
		for _, item := range items {
			m := object(item)
			t.Items = append(t.Items, LineItem{
				Description: text(m["description"]),
				Quantity:    text(m["quantity"]),
				UnitPrice:   text(m["unit_price"]),
				Total:       text(m["total"]),
			})
		}
	}

	summary := object(f["summary"])
	t.Summary = Summary{
		Subtotal:     text(summary["subtotal"]),
		Tax:          charge(object(summary["tax"])),
		Discount:     charge(object(summary["discount"])),
		InvoiceTotal: text(summary["invoice_total"]),
	}
	return t
}

func party(m map[string]any) Party {
	address := object(m["address"])
	contact := object(m["contact"])
	return Party{
		Name: text(m["name"]),
		Address: Address{
			Line1:   text(address["line_1"]),
			Line2:   text(address["line_2"]),
			PinCode: text(address["pin_code"]),
		},
		Contact: Contact{
			Phone:   text(contact["phone"]),
			Email:   text(contact["email"]),
			Website: text(contact["website"]),
		},
		GSTIN: text(m["GSTIN"]),
	}
}

func charge(m map[string]any) Charge {
	return Charge{Rate: text(m["rate"]), Amount: text(m["amount"])}
}

// object returns v as a mapping, or an empty one; reads from nil maps are safe
func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// Status is a state of the extraction state machine
type Status string

const (
	StatusNormalizing       Status = "NORMALIZING"
	StatusExtractingJSON    Status = "EXTRACTING_JSON"
	StatusExtractingSummary Status = "EXTRACTING_SUMMARY"
	StatusExtractingCSV     Status = "EXTRACTING_CSV"
	StatusDone              Status = "DONE"
	StatusFailed            Status = "FAILED"
)

// Result holds the three artifacts extracted from one document
type Result struct {
	RunID    string   `json:"run_id"`
	Record   Record   `json:"record"`
	Summary  string   `json:"summary"`
	CSV      string   `json:"csv"`
	Pages    int      `json:"pages"`
	Degraded bool     `json:"degraded"`           // JSON pass could not be parsed
	Warnings []string `json:"warnings,omitempty"` // template and CSV header warnings
}

// Run is the history entry of one extraction
type Run struct {
	ID         string             `json:"id"`
	Filename   string             `json:"filename"`
	Kind       scanning.MediaKind `json:"kind"`
	Status     Status             `json:"status"`
	Pages      int                `json:"pages"`
	FailedPass string             `json:"failed_pass,omitempty"`
	Error      string             `json:"error,omitempty"`
	Result     *Result            `json:"result,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}
