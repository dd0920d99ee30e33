package llm

import (
	"encoding/json"
	"fmt"

	"github.com/docparse/invoice-pipeline/internal/invoice"
)

type candidateDoc struct {
	Vendor     map[string]string `json:"vendor"`
	Customer   map[string]string `json:"customer"`
	Metadata   map[string]string `json:"invoice_metadata"`
	Totals     map[string]string `json:"totals"`
	Payment    map[string]string `json:"payment_instructions"`
	LineItems  []lineItemDoc     `json:"line_items"`
	Confidence *float32          `json:"confidence"`
}

type lineItemDoc struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

// DecodeCandidate turns sanitized candidate JSON into a PageCandidate,
// stamping every line item with its source page.
func DecodeCandidate(raw []byte, pageIndex int) (invoice.PageCandidate, error) {
	var doc candidateDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return invoice.PageCandidate{}, fmt.Errorf("decode candidate: %w", err)
	}

	items := make([]invoice.LineItem, 0, len(doc.LineItems))
	for _, it := range doc.LineItems {
		items = append(items, invoice.LineItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal,
			SourcePage:  pageIndex,
		})
	}

	return invoice.PageCandidate{
		PageIndex: pageIndex,
		Fields: invoice.Fields{
			Vendor:    doc.Vendor,
			Customer:  doc.Customer,
			Metadata:  doc.Metadata,
			Totals:    doc.Totals,
			Payment:   doc.Payment,
			LineItems: items,
		},
		Confidence: doc.Confidence,
	}, nil
}
