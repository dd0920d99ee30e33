package ocr

import (
	"regexp"
	"strings"
)

var (
	reDate   = regexp.MustCompile(`\b(20\d{2}[-/.]\d{2}[-/.]\d{2})\b|\b\d{2}[-/.]\d{2}[-/.]20\d{2}\b`)
	reCurr   = regexp.MustCompile(`\b(usd|eur|gbp|cad|aud|inr|jpy|chf)\b|[$£€]`)
	reAmount = regexp.MustCompile(`\b\d{1,3}(,\d{3})*(\.\d{2})\b|\b\d+\.\d{2}\b`)
	reInvNo  = regexp.MustCompile(`\b(invoice|inv|rechnung|facture)\b`)
)

// heuristicConfidence estimates OCR quality from invoice artifacts in the
// decoded text: date-ish, currency-ish, amount-ish tokens and the word
// "invoice" itself each add a share.
func heuristicConfidence(txt string) float32 {
	txtL := strings.ToLower(txt)
	score := float32(0.2) // base
	if reDate.MatchString(txtL) {
		score += 0.2
	}
	if reCurr.MatchString(txtL) {
		score += 0.15
	}
	if reAmount.MatchString(txtL) {
		score += 0.15
	}
	if reInvNo.MatchString(txtL) {
		score += 0.1
	}
	if len(txt) > 200 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
