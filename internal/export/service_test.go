package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/docparse/invoice-pipeline/internal/invoice"
)

func TestExportXLSX(t *testing.T) {
	entries := []Entry{
		{
			FileName: "a.pdf",
			Status:   "PROCESSED",
			Document: &invoice.Document{
				Vendor:   map[string]string{"name": "Acme GmbH"},
				Metadata: map[string]string{"invoice_number": "INV-1", "invoice_date": "2026-01-15", "currency_code": "EUR"},
				LineItems: []invoice.LineItem{
					{Description: "Widget", Quantity: "2", UnitPrice: "10.00", LineTotal: "20.00", SourcePage: 1},
					{Description: "Gadget", Quantity: "1", UnitPrice: "5.00", LineTotal: "5.00", SourcePage: 2},
				},
				Totals: map[string]string{"subtotal": "25.00", "tax": "5.00", "total": "30.00"},
			},
			Report: invoice.ValidationReport{IsValid: true, Confidence: 0.95},
		},
		{FileName: "b.pdf", Status: "FAILED"},
	}

	svc := NewService(nil)
	data, err := svc.ExportXLSX(entries)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	rows, err := f.GetRows("Invoices")
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + two entries
	assert.Equal(t, "File", rows[0][0])
	assert.Equal(t, "a.pdf", rows[1][0])
	assert.Equal(t, "Acme GmbH", rows[1][1])
	assert.Equal(t, "INV-1", rows[1][2])
	assert.Equal(t, "PROCESSED", rows[1][8])
	// The failed file still gets a summary row, just an empty one.
	assert.Equal(t, "b.pdf", rows[2][0])
	assert.Equal(t, "FAILED", rows[2][8])

	items, err := f.GetRows("Line Items")
	require.NoError(t, err)
	require.Len(t, items, 3) // header + two line items
	assert.Equal(t, "Widget", items[1][2])
	assert.Equal(t, "Gadget", items[2][2])
}
