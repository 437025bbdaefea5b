package scanning

// OutputKind is the shape a prompt asks the model to answer in
type OutputKind string

const (
	OutputJSON OutputKind = "json"
	OutputText OutputKind = "text"
)

// Prompt is one fixed extraction instruction
type Prompt struct {
	Name string
	Kind OutputKind
	Text string
}

// InvoiceJSONPrompt asks for the whole invoice as one JSON object
var InvoiceJSONPrompt = Prompt{
	Name: "json",
	Kind: OutputJSON,
	Text: `You are an expert at reading invoices and extracting their data. Analyze the given invoice image(s) and structure all the information into a single, comprehensive JSON object. Follow these guidelines:

1. Use the structure below as a base template, but adapt it to match the actual content of the invoice. The sections of an invoice are usually: invoice details (invoice number, issue date, due date, etc), client or customer info (often in the "billed to" and "ship to" sections), company info, items, and summary.

{
  "invoice_number": "",
  "issue_date": "",
  "due_date": "",
  "payment_terms": "",
  "customer_info": {
    "name": "",
    "address": {
      "line_1": "",
      "line_2": "",
      "pin_code": ""
    },
    "contact": {
      "phone": "",
      "email": ""
    }
  },
  "company_info": {
    "name": "",
    "address": {
      "line_1": "",
      "line_2": "",
      "pin_code": ""
    },
    "contact": {
      "phone": "",
      "email": "",
      "website": ""
    },
    "GSTIN": ""
  },
  "items": [
    {
      "description": "",
      "quantity": "",
      "unit_price": "",
      "total": ""
    }
  ],
  "summary": {
    "subtotal": "",
    "tax": {
      "rate": "",
      "amount": ""
    },
    "discount": {
      "rate": "",
      "amount": ""
    },
    "invoice_total": ""
  },
  "notes": ""
}

Field notes:
- customer_info.address is the bill to / ship to address; company_info is the company issuing the invoice.
- address.line_1 is the house number and street, line_2 is city, state and country, pin_code is the postal or zip code (eg: 380015).
- tax.rate and discount.rate are percentages.
- invoice_total is subtotal - discount amount + tax amount.

2. If you encounter information that doesn't fit into this structure, create new appropriate fields or nested objects to accommodate it. Use clear, descriptive field names. Never drop information.

3. If certain information is not present in the invoice, include the field with a null or empty value.

4. Ensure all monetary values are consistent in format: always use a decimal point and two decimal places, like "100.00".

5. For arrays like "items", include every item found in the invoice, one entry per line item.

Important: The response must be a single, valid JSON object only. Do not include any explanatory text, quotes, or backticks around the JSON. The output must be directly parseable by a JSON parser.`,
}

// SummaryPrompt asks for a narrative summary of the invoice
var SummaryPrompt = Prompt{
	Name: "summary",
	Kind: OutputText,
	Text: `Analyze the given invoice image(s) and provide a comprehensive summary. Include the following details:
1. A brief introduction stating what this document is.
2. Key information such as invoice number, date, and total amount.
3. Details about the billed client and the company issuing the invoice.
4. A summary of the items or services listed, including the total number of items and any notable entries.
5. Information about subtotal, discounts (if any), tax rates, and final total. Write monetary values with two decimal places.
6. Any additional relevant information or unusual aspects of this invoice.

Present this information in a clear, concise paragraph format that gives a complete overview of the invoice contents.`,
}

// LineItemsCSVPrompt asks for the line items and summary rows as CSV.
// The summary row convention (label in Unit Price, value in Amount) is relied on by CSV consumers.
var LineItemsCSVPrompt = Prompt{
	Name: "csv",
	Kind: OutputText,
	Text: `Provide details about the items and summary information from the invoice image(s) in CSV format. Follow these guidelines:

1. Use the following columns: Description, Quantity, Unit Price, Amount
2. For actual items purchased:
  - Fill in all columns appropriately
  - Use the 'Quantity' column for the quantity of each item
  - 'Unit Price' should be the price per unit
  - 'Amount' should be the total for that line item
3. For summary information (subtotal, tax, discount, total):
  - Put the label (e.g., "Subtotal", "Discount", "Tax Rate", "Tax", "TOTAL") in the 'Unit Price' column
  - Leave 'Description' and 'Quantity' columns empty for these rows
  - Put the corresponding amount or rate/percentage in the 'Amount' column
4. Ensure all monetary values are formatted consistently (always use a dollar sign, except for percentages where you'll use %, and two decimal places)
5. Start with the column header line and do not include any titles or explanatory text outside the CSV data

Example structure:
Description,Quantity,Unit Price,Amount
Item 1,2,$10.00,$20.00
Item 2,1,$15.00,$15.00
,,Subtotal,$35.00
,,Tax Rate(%),10%
,,Tax Amount,$3.50
,,TOTAL,$38.50

Notes on the example:
- Tax Rate is the tax rate in percent.
- Tax Amount is the subtotal times the tax rate.
- TOTAL, if not given, is calculated as subtotal - discount + tax amount. If no discount is mentioned in the summary, assume it to be 0.

Ensure the CSV structure accurately represents the invoice data and follows these guidelines.`,
}

// Catalog returns the extraction prompts in pass order
func Catalog() []Prompt {
	return []Prompt{InvoiceJSONPrompt, SummaryPrompt, LineItemsCSVPrompt}
}

// CSVColumns is the fixed column set of the line item table
var CSVColumns = []string{"Description", "Quantity", "Unit Price", "Amount"}
