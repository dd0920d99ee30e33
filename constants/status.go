package constants

// DocStatus is the canonical outcome status for a processed invoice document.
type DocStatus string

// Stable values (these exact strings go into the archive and API payloads).
const (
	StatusProcessed   DocStatus = "PROCESSED"    // extraction + validation completed, report is clean
	StatusNeedsReview DocStatus = "NEEDS_REVIEW" // completed, but validation found problems or confidence is low
	StatusFailed      DocStatus = "FAILED"       // terminal failure, no usable document
)
