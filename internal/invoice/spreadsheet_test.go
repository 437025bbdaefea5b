package invoice

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"
)

var _ = Describe("ParseCSV", func() {
	It("skips fence and blank lines", func() {
		rows, err := ParseCSV("```csv\nDescription,Quantity,Unit Price,Amount\n\nWidget,1,$3.00,$3.00\n```\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(Equal([][]string{
			{"Description", "Quantity", "Unit Price", "Amount"},
			{"Widget", "1", "$3.00", "$3.00"},
		}))
	})

	It("accepts rows of differing widths and quoted commas", func() {
		rows, err := ParseCSV("Description,Quantity,Unit Price,Amount\n\"Bolts, M4\",100,$0.10,$10.00\n,,TOTAL")
		Expect(err).NotTo(HaveOccurred())
		Expect(rows[1][0]).To(Equal("Bolts, M4"))
		Expect(rows[2]).To(HaveLen(3))
	})

	It("handles CRLF line endings", func() {
		rows, err := ParseCSV("a,b\r\nc,d\r\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(Equal([][]string{{"a", "b"}, {"c", "d"}}))
	})

	It("rejects replies without rows", func() {
		_, err := ParseCSV("```\n```")
		Expect(err).To(MatchError(ErrNoRows))
	})
})

var _ = Describe("CSVToXLSX", func() {
	It("writes every row to the items sheet with a bold header", func() {
		data, err := CSVToXLSX("Description,Quantity,Unit Price,Amount\nWidget,1,$3.00,$3.00\n,,TOTAL,$3.00")
		Expect(err).NotTo(HaveOccurred())

		f, err := excelize.OpenReader(bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		Expect(f.GetSheetList()).To(Equal([]string{itemsSheet}))

		header, err := f.GetCellValue(itemsSheet, "A1")
		Expect(err).NotTo(HaveOccurred())
		Expect(header).To(Equal("Description"))

		total, err := f.GetCellValue(itemsSheet, "C3")
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal("TOTAL"))

		styleID, err := f.GetCellStyle(itemsSheet, "A1")
		Expect(err).NotTo(HaveOccurred())
		style, err := f.GetStyle(styleID)
		Expect(err).NotTo(HaveOccurred())
		Expect(style.Font).NotTo(BeNil())
		Expect(style.Font.Bold).To(BeTrue())
	})

	It("fails on an empty reply", func() {
		_, err := CSVToXLSX("   ")
		Expect(err).To(MatchError(ErrNoRows))
	})
})

var _ = Describe("CheckCSVHeader", func() {
	It("accepts the requested columns in any case", func() {
		Expect(CheckCSVHeader("```csv\ndescription, Quantity,UNIT PRICE,Amount\nWidget,1,$5.00,$5.00")).To(BeNil())
	})

	It("describes a different header", func() {
		warnings := CheckCSVHeader("Item,Qty,Price\nWidget,1,$5.00")
		Expect(warnings).To(HaveLen(1))
		Expect(warnings[0]).To(HavePrefix("csv: header is"))
		Expect(warnings[0]).To(ContainSubstring(`"Unit Price"`))
	})

	It("ignores an empty reply", func() {
		Expect(CheckCSVHeader("")).To(BeNil())
	})
})
