package common

import (
	"errors"
	"fmt"
)

// Error taxonomy:
//   - PageError: recoverable, scoped to one page; recorded and skipped.
//   - StructuralError: the reconciler received an inconsistent candidate
//     sequence; fatal for the document.
//   - DocumentError: total failure (empty input, zero usable pages,
//     cancellation); fatal for the document.

// Common category sentinels for errors.Is checks.
var (
	ErrPage       = errors.New("page processing failed")
	ErrStructural = errors.New("inconsistent candidate sequence")
	ErrDocument   = errors.New("document rejected")
)

// PageError wraps a failure in one page's OCR/enrichment/extraction. It never
// aborts the document; the orchestrator records it and substitutes an empty
// candidate.
type PageError struct {
	Page  int
	Stage string // "ocr" | "barcode" | "extract"
	Cause error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %s failed: %v", e.Page, e.Stage, e.Cause)
}

func (e *PageError) Unwrap() error { return e.Cause }

func (e *PageError) Is(target error) bool { return target == ErrPage }

func NewPageError(page int, stage string, cause error) *PageError {
	return &PageError{Page: page, Stage: stage, Cause: cause}
}

// StructuralError reports a malformed candidate sequence (gaps or disorder in
// page indices). The caller gets this instead of a document.
type StructuralError struct {
	Message string
}

func (e *StructuralError) Error() string { return "structural: " + e.Message }

func (e *StructuralError) Is(target error) bool { return target == ErrStructural }

func NewStructuralError(format string, args ...any) *StructuralError {
	return &StructuralError{Message: fmt.Sprintf(format, args...)}
}

// DocumentError reports a whole-document failure. Reason is a short stable
// token ("empty_input", "no_usable_pages", "cancelled") suitable for API
// payloads; Cause carries detail.
type DocumentError struct {
	Reason string
	Cause  error
}

func (e *DocumentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("document rejected (%s): %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("document rejected (%s)", e.Reason)
}

func (e *DocumentError) Unwrap() error { return e.Cause }

func (e *DocumentError) Is(target error) bool { return target == ErrDocument }

func NewDocumentError(reason string, cause error) *DocumentError {
	return &DocumentError{Reason: reason, Cause: cause}
}

// WrapError adds context while preserving the cause chain.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
