package llm

import (
	"strconv"
	"strings"
)

// BuildSystemPrompt composes the instruction message: schema discipline,
// date/currency conventions, and page-scope rules.
func BuildSystemPrompt(req ExtractRequest) string {
	defCur := strings.TrimSpace(req.DefaultCurrency)
	if defCur == "" {
		defCur = "USD"
	}

	parts := []string{
		"You are an invoice page parser. Return ONLY JSON that matches the provided JSON Schema.",
		"You see ONE page of a possibly multi-page invoice; extract only what is visible on this page and omit the rest.",
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"Currency must be a 3-letter ISO 4217 code under invoice_metadata.currency_code; default to " + defCur + " if uncertain.",
		"Put vendor name under vendor.name and customer name under customer.name.",
		"Put invoice number under invoice_metadata.invoice_number and date under invoice_metadata.invoice_date.",
		"Totals go under totals.subtotal, totals.tax and totals.total as decimal strings.",
		"Every table row on this page becomes one line_items entry in top-to-bottom order.",
		"Report your overall certainty in 'confidence' between 0 and 1.",
		"Never output null. If a field is not present on this page, omit it.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt wraps the page text and enrichment hints.
func BuildUserPrompt(req ExtractRequest) string {
	var b strings.Builder
	b.WriteString("Page index: ")
	b.WriteString(strconv.Itoa(req.PageIndex))
	if len(req.BarcodeValues) > 0 {
		b.WriteString("\nBarcodes decoded on this page: ")
		b.WriteString(strings.Join(req.BarcodeValues, ", "))
	}
	b.WriteString("\n\nPage text (first ~6k chars):\n")
	if len(req.PageText) > 6000 {
		b.WriteString(req.PageText[:6000])
	} else {
		b.WriteString(req.PageText)
	}
	return b.String()
}
