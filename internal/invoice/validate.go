package invoice

import (
	"errors"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// templateSchema describes the base template. Every field is optional and
// extra fields are allowed; only the shape of what is present is checked.
const templateSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "definitions": {
    "scalar": {"type": ["string", "number", "null"]},
    "party": {
      "type": ["object", "null"],
      "properties": {
        "name": {"$ref": "#/definitions/scalar"},
        "address": {
          "type": ["object", "null"],
          "properties": {
            "line_1": {"$ref": "#/definitions/scalar"},
            "line_2": {"$ref": "#/definitions/scalar"},
            "pin_code": {"$ref": "#/definitions/scalar"}
          }
        },
        "contact": {
          "type": ["object", "null"],
          "properties": {
            "phone": {"$ref": "#/definitions/scalar"},
            "email": {"$ref": "#/definitions/scalar"},
            "website": {"$ref": "#/definitions/scalar"}
          }
        },
        "GSTIN": {"$ref": "#/definitions/scalar"}
      }
    },
    "charge": {
      "type": ["object", "null"],
      "properties": {
        "rate": {"$ref": "#/definitions/scalar"},
        "amount": {"$ref": "#/definitions/scalar"}
      }
    }
  },
  "properties": {
    "invoice_number": {"$ref": "#/definitions/scalar"},
    "issue_date": {"$ref": "#/definitions/scalar"},
    "due_date": {"$ref": "#/definitions/scalar"},
    "payment_terms": {"$ref": "#/definitions/scalar"},
    "customer_info": {"$ref": "#/definitions/party"},
    "company_info": {"$ref": "#/definitions/party"},
    "items": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "description": {"$ref": "#/definitions/scalar"},
          "quantity": {"$ref": "#/definitions/scalar"},
          "unit_price": {"$ref": "#/definitions/scalar"},
          "total": {"$ref": "#/definitions/scalar"}
        }
      }
    },
    "summary": {
      "type": ["object", "null"],
      "properties": {
        "subtotal": {"$ref": "#/definitions/scalar"},
        "tax": {"$ref": "#/definitions/charge"},
        "discount": {"$ref": "#/definitions/charge"},
        "invoice_total": {"$ref": "#/definitions/scalar"}
      }
    },
    "notes": {"$ref": "#/definitions/scalar"}
  }
}`

var compiledTemplate = jsonschema.MustCompileString("invoice_template.json", templateSchema)

// CheckTemplate reports where a record departs from the shape of the base template.
// The warnings are informational; an empty record yields none.
func CheckTemplate(record Record) []string {
	if record.IsEmpty() {
		return nil
	}

	err := compiledTemplate.Validate(record.Map())
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}

	warnings := leafWarnings(verr, nil)
	sort.Strings(warnings)
	return warnings
}

func leafWarnings(verr *jsonschema.ValidationError, out []string) []string {
	if len(verr.Causes) == 0 {
		location := verr.InstanceLocation
		if location == "" {
			location = "/"
		}
		return append(out, fmt.Sprintf("%s: %s", location, verr.Message))
	}
	for _, cause := range verr.Causes {
		out = leafWarnings(cause, out)
	}
	return out
}
