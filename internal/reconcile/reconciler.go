// Package reconcile merges per-page candidates into one invoice document.
// The merge is a pure function over the ordered candidate sequence; nothing
// here touches OCR or the extractor.
package reconcile

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/docparse/invoice-pipeline/internal/common"
	"github.com/docparse/invoice-pipeline/internal/invoice"
)

type Reconciler struct {
	// Tolerance is the relative tolerance used when comparing the extracted
	// total against the sum of line items (e.g. 0.01 = 1%).
	Tolerance float64
	Logger    *slog.Logger
}

func New(tolerance float64, logger *slog.Logger) *Reconciler {
	if tolerance <= 0 {
		tolerance = 0.01
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{Tolerance: tolerance, Logger: logger}
}

// Reconcile merges the candidates in ascending page order. Header sections
// are resolved per field path with last-non-empty-wins; line items are
// concatenated with boundary overlap removal. A page that failed extraction
// must still be present as an empty candidate: gaps or disorder in the index
// sequence are a StructuralError.
func (r *Reconciler) Reconcile(candidates []invoice.PageCandidate) (*invoice.Document, error) {
	if len(candidates) == 0 {
		return nil, common.NewStructuralError("empty candidate sequence")
	}
	base := candidates[0].PageIndex
	for i, c := range candidates {
		if c.PageIndex != base+i {
			return nil, common.NewStructuralError(
				"page index gap: position %d has page_index %d, want %d", i, c.PageIndex, base+i)
		}
	}

	doc := &invoice.Document{
		Vendor:    map[string]string{},
		Customer:  map[string]string{},
		Metadata:  map[string]string{},
		Totals:    map[string]string{},
		Payment:   map[string]string{},
		LineItems: []invoice.LineItem{},
	}

	for _, c := range candidates {
		mergeSection(doc.Vendor, c.Fields.Vendor)
		mergeSection(doc.Customer, c.Fields.Customer)
		mergeSection(doc.Metadata, c.Fields.Metadata)
		mergeSection(doc.Totals, c.Fields.Totals)
		mergeSection(doc.Payment, c.Fields.Payment)
	}

	for _, c := range candidates {
		items := c.Fields.LineItems
		if overlap := boundaryOverlap(doc.LineItems, items); overlap > 0 {
			r.Logger.Debug("reconcile.dedup", "page", c.PageIndex, "rows_dropped", overlap)
			items = items[overlap:]
		}
		doc.LineItems = append(doc.LineItems, items...)
	}

	doc.ExtractionConfidence = meanConfidence(candidates)
	r.annotateTotals(doc)

	r.Logger.Info("reconcile.ok",
		"pages", len(candidates),
		"line_items", len(doc.LineItems),
		"annotations", len(doc.Annotations),
	)
	return doc, nil
}

// mergeSection applies last-non-empty-wins: src overrides dst only where it
// supplies a non-blank value.
func mergeSection(dst, src map[string]string) {
	for k, v := range src {
		if strings.TrimSpace(v) != "" {
			dst[k] = v
		}
	}
}

// boundaryOverlap returns how many leading items of next exactly repeat the
// trailing items of prev, compared on (description, quantity, unit_price).
// OCR engines re-emit rows split across a page boundary; a continuation page
// that repeats the previous page verbatim collapses entirely.
func boundaryOverlap(prev, next []invoice.LineItem) int {
	max := len(next)
	if len(prev) < max {
		max = len(prev)
	}
	for n := max; n > 0; n-- {
		match := true
		for i := 0; i < n; i++ {
			if !prev[len(prev)-n+i].SameRow(next[i]) {
				match = false
				break
			}
		}
		if match {
			return n
		}
	}
	return 0
}

func meanConfidence(candidates []invoice.PageCandidate) *float32 {
	var sum float32
	var n int
	for _, c := range candidates {
		if c.Confidence != nil {
			sum += *c.Confidence
			n++
		}
	}
	if n == 0 {
		return nil
	}
	mean := sum / float32(n)
	return &mean
}

// annotateTotals records a non-fatal annotation when the extracted total
// disagrees with the sum of line-item totals beyond the tolerance. The
// discrepancy is flagged, never corrected.
func (r *Reconciler) annotateTotals(doc *invoice.Document) {
	totalStr, ok := doc.Totals["total"]
	if !ok {
		return
	}
	total, err := strconv.ParseFloat(strings.TrimSpace(totalStr), 64)
	if err != nil {
		return
	}

	var sum float64
	var counted int
	for _, li := range doc.LineItems {
		if li.LineTotal == "" {
			continue
		}
		v, err := strconv.ParseFloat(li.LineTotal, 64)
		if err != nil {
			continue
		}
		sum += v
		counted++
	}
	if counted == 0 {
		return
	}

	if !withinRelTolerance(sum, total, r.Tolerance) {
		doc.Annotations = append(doc.Annotations, invoice.Annotation{
			FieldPath: "totals.total",
			Message:   fmt.Sprintf("line items sum to %.2f but extracted total is %.2f", sum, total),
		})
		r.Logger.Warn("reconcile.totals_mismatch", "line_sum", sum, "extracted_total", total)
	}
}

// withinRelTolerance compares b against reference a with relative tolerance.
func withinRelTolerance(a, b, tol float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	ref := a
	if ref < 0 {
		ref = -ref
	}
	if ref < 1 {
		ref = 1 // absolute tolerance floor near zero
	}
	return diff <= tol*ref
}
