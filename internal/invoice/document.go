// Package invoice holds the data model shared by every pipeline stage:
// raw pages in, per-page candidates through, one reconciled document out.
// Values are immutable once handed to the next stage.
package invoice

// RawPage is one undecoded input page as received at the pipeline boundary.
// For image uploads Data is the image bytes; for PDFs the splitter produces
// one RawPage per rasterized page.
type RawPage struct {
	Index    int
	Filename string
	Data     []byte
}

// TextLine is a positioned line of text reported by an OCR engine.
type TextLine struct {
	Text   string `json:"text"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// PageContent is the decoded content of one page: plain text plus optional
// layout hints and any barcode values found on the page.
type PageContent struct {
	PageIndex     int        `json:"page_index"`
	RawText       string     `json:"raw_text"`
	LayoutHints   []TextLine `json:"layout_hints,omitempty"`
	BarcodeValues []string   `json:"barcode_values,omitempty"`

	// OCRConfidence is the text provider's own quality estimate (0..1),
	// passed along to the structured extractor as a hint.
	OCRConfidence float32 `json:"ocr_confidence,omitempty"`
}

// LineItem is one invoice row. Monetary values and quantities are decimal
// strings; an empty string means the value was not extracted.
type LineItem struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity,omitempty"`
	UnitPrice   string `json:"unit_price,omitempty"`
	LineTotal   string `json:"line_total,omitempty"`
	SourcePage  int    `json:"source_page"`
}

// SameRow reports whether two items are the same row for deduplication
// purposes: exact match on description, quantity and unit price.
func (li LineItem) SameRow(other LineItem) bool {
	return li.Description == other.Description &&
		li.Quantity == other.Quantity &&
		li.UnitPrice == other.UnitPrice
}

// Fields is the per-page structured guess at the invoice. Header sections are
// open key/value maps so the merge can operate per field path.
type Fields struct {
	Vendor    map[string]string `json:"vendor,omitempty"`
	Customer  map[string]string `json:"customer,omitempty"`
	Metadata  map[string]string `json:"invoice_metadata,omitempty"`
	Totals    map[string]string `json:"totals,omitempty"`
	Payment   map[string]string `json:"payment_instructions,omitempty"`
	LineItems []LineItem        `json:"line_items,omitempty"`
}

// IsEmpty reports whether no field was extracted at all.
func (f Fields) IsEmpty() bool {
	return len(f.Vendor) == 0 && len(f.Customer) == 0 && len(f.Metadata) == 0 &&
		len(f.Totals) == 0 && len(f.Payment) == 0 && len(f.LineItems) == 0
}

// PageCandidate is one page's extraction output, pre-merge and pre-validation.
// Confidence is the extractor's self-reported certainty; nil when the
// extractor did not report one.
type PageCandidate struct {
	PageIndex  int      `json:"page_index"`
	Fields     Fields   `json:"extracted_fields"`
	Confidence *float32 `json:"extraction_confidence,omitempty"`
}

// EmptyCandidate is the placeholder for a page whose extraction failed. It
// keeps the index alignment the reconciler depends on.
func EmptyCandidate(pageIndex int) PageCandidate {
	return PageCandidate{PageIndex: pageIndex}
}

// Annotation is a non-fatal data-quality note the reconciler attaches to the
// document for the validator to surface.
type Annotation struct {
	FieldPath string `json:"field_path"`
	Message   string `json:"message"`
}

// Document is the reconciled, pre-validation invoice record.
type Document struct {
	Vendor    map[string]string `json:"vendor"`
	Customer  map[string]string `json:"customer"`
	Metadata  map[string]string `json:"invoice_metadata"`
	LineItems []LineItem        `json:"line_items"`
	Totals    map[string]string `json:"totals"`
	Payment   map[string]string `json:"payment_instructions,omitempty"`

	Annotations []Annotation `json:"annotations,omitempty"`

	// ExtractionConfidence is the mean of the per-page extractor confidences
	// that were reported; nil when no page reported one.
	ExtractionConfidence *float32 `json:"extraction_confidence,omitempty"`
}
