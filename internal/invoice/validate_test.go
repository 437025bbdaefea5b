package invoice

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("CheckTemplate", func() {
	decode := func(text string) Record {
		var r Record
		Expect(json.Unmarshal([]byte(text), &r)).To(Succeed())
		return r
	}

	It("accepts a complete template", func() {
		record := decode(`{
			"invoice_number": "INV-1",
			"issue_date": "2024-01-15",
			"due_date": null,
			"customer_info": {"name": "Jane", "address": {"line_1": "1 Main St", "line_2": null, "pin_code": 560001}, "contact": {"phone": null, "email": "j@example.com", "website": null}, "GSTIN": null},
			"items": [{"description": "Widget", "quantity": 2, "unit_price": 5.00, "total": 10.00}],
			"summary": {"subtotal": 10.00, "tax": {"rate": 18, "amount": 1.80}, "discount": {"rate": null, "amount": null}, "invoice_total": 11.80},
			"notes": "Thanks"
		}`)
		Expect(CheckTemplate(record)).To(BeEmpty())
	})

	It("allows fields outside the template", func() {
		record := decode(`{"invoice_number": "INV-1", "po_number": "PO-7", "bank": {"iban": "X"}}`)
		Expect(CheckTemplate(record)).To(BeEmpty())
	})

	It("skips empty records", func() {
		Expect(CheckTemplate(NewRecord(nil))).To(BeNil())
	})

	It("reports each departure with its location", func() {
		record := decode(`{"items": [{"description": ["a"]}], "summary": {"tax": 5}}`)
		warnings := CheckTemplate(record)
		Expect(warnings).To(HaveLen(2))
		Expect(warnings[0]).To(HavePrefix("/items/0/description"))
		Expect(warnings[1]).To(HavePrefix("/summary/tax"))
	})

	It("never changes the record", func() {
		record := decode(`{"items": "none"}`)
		CheckTemplate(record)
		Expect(record.Map()).To(Equal(map[string]any{"items": "none"}))
	})
})
