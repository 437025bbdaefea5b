package scanning

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Catalog", func() {
	It("returns the three passes in order", func() {
		catalog := Catalog()
		Expect(catalog).To(HaveLen(3))
		Expect(catalog[0].Kind).To(Equal(OutputJSON))
		Expect(catalog[1].Kind).To(Equal(OutputText))
		Expect(catalog[2].Kind).To(Equal(OutputText))
		Expect([]string{catalog[0].Name, catalog[1].Name, catalog[2].Name}).To(Equal([]string{"json", "summary", "csv"}))
	})

	Describe("InvoiceJSONPrompt", func() {
		It("carries the base template", func() {
			for _, field := range []string{`"invoice_number"`, `"customer_info"`, `"company_info"`, `"items"`, `"summary"`, `"discount"`, `"invoice_total"`, `"notes"`} {
				Expect(InvoiceJSONPrompt.Text).To(ContainSubstring(field))
			}
		})

		It("asks for new fields instead of dropping information", func() {
			Expect(InvoiceJSONPrompt.Text).To(ContainSubstring("create new appropriate fields"))
		})

		It("asks for the JSON object to be the only content", func() {
			Expect(InvoiceJSONPrompt.Text).To(ContainSubstring("single, valid JSON object only"))
			Expect(InvoiceJSONPrompt.Text).To(ContainSubstring("backticks"))
		})
	})

	Describe("LineItemsCSVPrompt", func() {
		It("fixes the column set", func() {
			Expect(LineItemsCSVPrompt.Text).To(ContainSubstring(strings.Join(CSVColumns, ", ")))
			Expect(LineItemsCSVPrompt.Text).To(ContainSubstring("Description,Quantity,Unit Price,Amount"))
		})

		It("puts summary labels in the Unit Price column", func() {
			Expect(LineItemsCSVPrompt.Text).To(ContainSubstring("in the 'Unit Price' column"))
			Expect(LineItemsCSVPrompt.Text).To(ContainSubstring("Leave 'Description' and 'Quantity' columns empty"))
			Expect(LineItemsCSVPrompt.Text).To(ContainSubstring(",,TOTAL,"))
		})
	})

	It("asks for two decimal places in every prompt", func() {
		for _, prompt := range Catalog() {
			Expect(prompt.Text).To(ContainSubstring("two decimal places"), prompt.Name)
		}
	})
})
