package llm

import (
	"context"

	"github.com/docparse/invoice-pipeline/internal/invoice"
)

// ExtractRequest carries one page's content to the structured extractor.
type ExtractRequest struct {
	PageIndex       int
	PageText        string
	BarcodeValues   []string
	DefaultCurrency string

	// PrepConfidence is the OCR stage's quality estimate. When it is low and
	// PageImage is set, vision-capable clients attach the page image.
	PrepConfidence float32
	PageImage      []byte
}

// CandidateExtractor is the interface the pipeline depends on: page text in,
// best-effort structured candidate out. The candidate carries no schema
// guarantee; that is the validator's job.
type CandidateExtractor interface {
	ExtractCandidate(ctx context.Context, req ExtractRequest) (invoice.PageCandidate, []byte /*rawJSON*/, error)
}
