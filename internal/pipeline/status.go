package pipeline

import (
	"github.com/docparse/invoice-pipeline/constants"
	"github.com/docparse/invoice-pipeline/internal/invoice"
)

// StatusFor maps a validation report to the document status: clean reports
// above the review threshold are PROCESSED, everything else needs a human.
func StatusFor(report invoice.ValidationReport, reviewThreshold float32) constants.DocStatus {
	if report.IsValid && report.Confidence >= reviewThreshold {
		return constants.StatusProcessed
	}
	return constants.StatusNeedsReview
}
