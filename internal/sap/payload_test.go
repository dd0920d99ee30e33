package sap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docparse/invoice-pipeline/constants"
	"github.com/docparse/invoice-pipeline/internal/invoice"
)

func TestHashBytes(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashBytes(nil))
	assert.Equal(t, HashBytes([]byte("a")), HashBytes([]byte("a")))
	assert.NotEqual(t, HashBytes([]byte("a")), HashBytes([]byte("b")))
}

func TestPrepare(t *testing.T) {
	doc := &invoice.Document{
		Vendor:   map[string]string{"name": "Acme"},
		Metadata: map[string]string{"invoice_number": "INV-1"},
	}
	data := []byte("%PDF-1.4 ...")

	p := Prepare(doc, "/uploads/2026/invoice-001.PDF", data, constants.StatusProcessed)

	assert.Same(t, doc, p.Invoice)
	assert.Equal(t, "invoice-001.PDF", p.Attachment.FileName)
	assert.Equal(t, "PDF", p.Attachment.FileType)
	assert.Equal(t, HashBytes(data), p.Attachment.FileHash)
	assert.Equal(t, "PROCESSED", p.Status)
}
