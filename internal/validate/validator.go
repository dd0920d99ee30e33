// Package validate enforces the invoice output schema and scores confidence.
// Findings are accumulated, never short-circuited: the report always covers
// the whole document.
package validate

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/docparse/invoice-pipeline/internal/invoice"
)

type Validator struct {
	// Tolerance is the relative tolerance for arithmetic checks.
	Tolerance float64
	// DateFormats are the accepted date layouts (Go reference time).
	DateFormats []string
	// CurrencyCodes is the accepted ISO 4217 set.
	CurrencyCodes map[string]struct{}
	Logger        *slog.Logger
}

// Weights of the confidence formula. Extraction certainty and required-field
// completeness split the base; each validation error subtracts a fixed
// penalty.
const (
	weightExtraction = 0.5
	weightRequired   = 0.5
	errorPenalty     = 0.1
	inexactCap       = 0.99
)

func New(tolerance float64, dateFormats, currencyCodes []string, logger *slog.Logger) *Validator {
	if tolerance <= 0 {
		tolerance = 0.01
	}
	if logger == nil {
		logger = slog.Default()
	}
	codes := make(map[string]struct{}, len(currencyCodes))
	for _, c := range currencyCodes {
		codes[strings.ToUpper(c)] = struct{}{}
	}
	return &Validator{
		Tolerance:     tolerance,
		DateFormats:   dateFormats,
		CurrencyCodes: codes,
		Logger:        logger,
	}
}

// Validate runs every rule in order and returns the full report. It never
// fails: a document missing everything still produces a report with
// is_valid=false and the findings that explain why.
func (v *Validator) Validate(doc *invoice.Document) invoice.ValidationReport {
	var errs []invoice.FieldError
	addErr := func(path, format string, args ...any) {
		errs = append(errs, invoice.FieldError{FieldPath: path, Message: fmt.Sprintf(format, args...)})
	}

	// Rule 1: required-field presence.
	requiredPresent := 0
	const requiredTotal = 4
	if strings.TrimSpace(doc.Vendor["name"]) != "" {
		requiredPresent++
	} else {
		addErr("vendor.name", "vendor name is required")
	}
	if strings.TrimSpace(doc.Metadata["invoice_number"]) != "" {
		requiredPresent++
	} else {
		addErr("invoice_metadata.invoice_number", "invoice number is required")
	}
	if len(doc.LineItems) > 0 {
		requiredPresent++
	} else {
		addErr("line_items", "at least one line item is required")
	}
	if strings.TrimSpace(doc.Totals["total"]) != "" {
		requiredPresent++
	} else {
		addErr("totals.total", "total amount is required")
	}

	// Rule 2: type/format checks.
	if date := strings.TrimSpace(doc.Metadata["invoice_date"]); date != "" {
		if !v.parsesAsDate(date) {
			addErr("invoice_metadata.invoice_date", "date %q does not match any accepted format", date)
		}
	}
	if code := strings.TrimSpace(doc.Metadata["currency_code"]); code != "" {
		if _, ok := v.CurrencyCodes[strings.ToUpper(code)]; !ok {
			addErr("invoice_metadata.currency_code", "currency code %q is not recognized", code)
		}
	}
	for _, key := range []string{"subtotal", "tax", "total"} {
		if s := strings.TrimSpace(doc.Totals[key]); s != "" {
			if f, err := strconv.ParseFloat(s, 64); err != nil {
				addErr("totals."+key, "value %q is not a number", s)
			} else if f < 0 {
				addErr("totals."+key, "monetary value %q must be non-negative", s)
			}
		}
	}
	for i, li := range doc.LineItems {
		for _, fld := range []struct{ name, val string }{
			{"quantity", li.Quantity},
			{"unit_price", li.UnitPrice},
			{"line_total", li.LineTotal},
		} {
			if fld.val == "" {
				continue
			}
			if f, err := strconv.ParseFloat(fld.val, 64); err != nil {
				addErr(fmt.Sprintf("line_items[%d].%s", i, fld.name), "value %q is not a number", fld.val)
			} else if f < 0 {
				addErr(fmt.Sprintf("line_items[%d].%s", i, fld.name), "monetary value %q must be non-negative", fld.val)
			}
		}
	}

	// Rule 3: arithmetic checks. Discrepancies are flagged, not corrected.
	exact := len(doc.Annotations) == 0

	var lineSum float64
	var summed int
	for i, li := range doc.LineItems {
		lt, ltErr := parseMoney(li.LineTotal)
		if ltErr == nil && li.LineTotal != "" {
			lineSum += lt
			summed++
		}
		if li.Quantity == "" || li.UnitPrice == "" || li.LineTotal == "" {
			continue
		}
		qty, qErr := parseMoney(li.Quantity)
		price, pErr := parseMoney(li.UnitPrice)
		if qErr != nil || pErr != nil || ltErr != nil {
			continue
		}
		product := qty * price
		if product != lt {
			exact = false
		}
		if !v.withinTolerance(product, lt) {
			addErr(fmt.Sprintf("line_items[%d].line_total", i),
				"line total %.2f does not match quantity x unit price (%.2f)", lt, product)
		}
	}

	if subStr := strings.TrimSpace(doc.Totals["subtotal"]); subStr != "" && summed > 0 {
		if sub, err := parseMoney(subStr); err == nil {
			if lineSum != sub {
				exact = false
			}
			if !v.withinTolerance(lineSum, sub) {
				addErr("totals.subtotal",
					"line items sum to %.2f but subtotal is %.2f", lineSum, sub)
			}
		}
	}
	subStr, taxStr, totStr := doc.Totals["subtotal"], doc.Totals["tax"], doc.Totals["total"]
	if subStr != "" && totStr != "" {
		sub, sErr := parseMoney(subStr)
		tot, tErr := parseMoney(totStr)
		tax := 0.0
		var xErr error
		if taxStr != "" {
			tax, xErr = parseMoney(taxStr)
		}
		if sErr == nil && tErr == nil && xErr == nil {
			if sub+tax != tot {
				exact = false
			}
			if !v.withinTolerance(sub+tax, tot) {
				addErr("totals.total",
					"subtotal %.2f + tax %.2f does not match total %.2f", sub, tax, tot)
			}
		}
	}

	confidence := v.confidence(doc.ExtractionConfidence, requiredPresent, requiredTotal, len(errs), exact)

	report := invoice.ValidationReport{
		IsValid:    len(errs) == 0,
		Errors:     errs,
		Confidence: confidence,
	}
	v.Logger.Info("validate.done",
		"is_valid", report.IsValid,
		"errors", len(errs),
		"confidence", confidence,
	)
	return report
}

// confidence combines mean extraction certainty, required-field completeness
// and a per-error penalty. It is monotonically non-increasing in the error
// count, and reaches 1.0 only for a complete document with exact arithmetic
// and (where reported) perfect extractor confidence.
func (v *Validator) confidence(extraction *float32, present, total, errCount int, exact bool) float32 {
	mc := float64(1)
	if extraction != nil {
		mc = float64(*extraction)
	}
	rf := float64(present) / float64(total)
	conf := weightExtraction*mc + weightRequired*rf
	conf -= errorPenalty * float64(errCount)
	if !exact {
		conf = math.Min(conf, inexactCap)
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return float32(conf)
}

func (v *Validator) parsesAsDate(s string) bool {
	for _, layout := range v.DateFormats {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func (v *Validator) withinTolerance(a, b float64) bool {
	diff := math.Abs(a - b)
	ref := math.Abs(a)
	if ref < 1 {
		ref = 1
	}
	return diff <= v.Tolerance*ref
}

func parseMoney(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
