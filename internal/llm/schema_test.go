package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvoiceSchemaValidation(t *testing.T) {
	schema := BuildInvoiceJSONSchema()

	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{
			name: "full candidate",
			data: `{
				"vendor": {"name": "Acme GmbH"},
				"invoice_metadata": {"invoice_number": "INV-1", "invoice_date": "2026-01-15"},
				"totals": {"subtotal": "25.00", "tax": "5.00", "total": "30.00"},
				"line_items": [
					{"description": "Widget", "quantity": "2", "unit_price": "10.00", "line_total": "20.00"}
				],
				"confidence": 0.9
			}`,
		},
		{name: "empty page contributes nothing", data: `{}`},
		{name: "negative amounts allowed for credits", data: `{"totals": {"total": "-12.50"}}`},
		{name: "numeric total rejected", data: `{"totals": {"total": 30.5}}`, wantErr: true},
		{name: "three decimal places rejected", data: `{"totals": {"total": "30.505"}}`, wantErr: true},
		{name: "line item without description rejected", data: `{"line_items": [{"quantity": "1"}]}`, wantErr: true},
		{name: "unknown line item key rejected", data: `{"line_items": [{"description": "x", "sku": "W-1"}]}`, wantErr: true},
		{name: "unknown top-level key rejected", data: `{"notes": "hello"}`, wantErr: true},
		{name: "confidence out of range rejected", data: `{"confidence": 1.5}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJSONAgainstSchema(schema, []byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
