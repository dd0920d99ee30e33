package llm

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We send it to the model as a structured output constraint and
// also use it locally to validate what comes back.
func BuildInvoiceJSONSchema() map[string]any {
	section := func() map[string]any {
		return map[string]any{
			"type":                 "object",
			"additionalProperties": map[string]any{"type": "string"},
		}
	}

	lineItem := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"description": map[string]any{"type": "string", "minLength": 1},
			"quantity":    map[string]any{"type": "string", "pattern": `^-?\d+(\.\d+)?$`},
			"unit_price":  decimalProp(),
			"line_total":  decimalProp(),
		},
		"required": []string{"description"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"vendor":               section(),
			"customer":             section(),
			"invoice_metadata":     section(),
			"totals":               section(),
			"payment_instructions": section(),
			"line_items":           map[string]any{"type": "array", "items": lineItem},
			"confidence":           map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		// Everything is best effort; a page may legitimately contribute nothing.
		"required": []string{},
	}
}

func decimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^-?\d+(\.\d{1,2})?$`, // allow negatives for credits
	}
}
