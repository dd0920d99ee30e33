package extract

import (
	"context"

	"github.com/docparse/invoice-pipeline/internal/invoice"
)

// PageTextProvider is Stage 1: one raw page -> plain text plus layout hints.
// Implementations wrap an external OCR engine; they never see other pages.
type PageTextProvider interface {
	ExtractPage(ctx context.Context, page invoice.RawPage) (invoice.PageContent, error)
}

// BarcodeEnricher is the optional enrichment collaborator. A failure here is
// mapped to "feature absent" by the caller, never propagated.
type BarcodeEnricher interface {
	Decode(ctx context.Context, page invoice.RawPage) ([]string, error)
}
