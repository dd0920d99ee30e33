package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json untouched", `{"a":1}`, `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"leading whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
		{"unterminated fence", "```json\n{\"a\":1}", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}

func TestSanitizeCandidateJSON(t *testing.T) {
	raw := []byte(`{
		"vendor": {"name": "Acme GmbH", "tax_id": null, "address": "  "},
		"invoice_metadata": {"invoice_number": "INV-1", "page_count": 3},
		"totals": {"total": 30.5, "tax": 5},
		"line_items": [
			{"description": "Widget", "qty": 2, "price": "10.00", "total": "20,000.00", "sku": "W-1"},
			{"description": "  ", "quantity": 1},
			{"description": "Gadget", "quantity": "n/a"}
		]
	}`)

	out, changed, err := SanitizeCandidateJSON(raw)
	require.NoError(t, err)
	assert.NotEmpty(t, changed)

	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))

	vendor := m["vendor"].(map[string]any)
	assert.Equal(t, "Acme GmbH", vendor["name"])
	assert.NotContains(t, vendor, "tax_id")
	assert.NotContains(t, vendor, "address")

	meta := m["invoice_metadata"].(map[string]any)
	assert.Equal(t, "3", meta["page_count"])

	totals := m["totals"].(map[string]any)
	assert.Equal(t, "30.50", totals["total"])
	assert.Equal(t, "5", totals["tax"])

	items := m["line_items"].([]any)
	// Blank-description row is dropped; the other two survive.
	require.Len(t, items, 2)

	first := items[0].(map[string]any)
	assert.Equal(t, "Widget", first["description"])
	assert.Equal(t, "2", first["quantity"])
	assert.Equal(t, "10", first["unit_price"])
	assert.Equal(t, "20000", first["line_total"])
	assert.NotContains(t, first, "sku")

	second := items[1].(map[string]any)
	assert.Equal(t, "Gadget", second["description"])
	assert.NotContains(t, second, "quantity")
}

func TestSanitizeRejectsNonObject(t *testing.T) {
	_, _, err := SanitizeCandidateJSON([]byte(`[1,2,3]`))
	assert.Error(t, err)
}

func TestDecodeCandidateStampsSourcePage(t *testing.T) {
	raw := []byte(`{
		"vendor": {"name": "Acme"},
		"line_items": [
			{"description": "Widget", "quantity": "2", "unit_price": "10.00", "line_total": "20.00"}
		],
		"confidence": 0.85
	}`)
	cand, err := DecodeCandidate(raw, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, cand.PageIndex)
	require.Len(t, cand.Fields.LineItems, 1)
	assert.Equal(t, 4, cand.Fields.LineItems[0].SourcePage)
	require.NotNil(t, cand.Confidence)
	assert.InDelta(t, 0.85, float64(*cand.Confidence), 1e-6)
}
