// Package pipeline sequences the per-page stages and the cross-page merge.
// Pages run concurrently through OCR and extraction; reconciliation and
// validation run single-threaded over the collected, index-ordered results.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/docparse/invoice-pipeline/internal/common"
	"github.com/docparse/invoice-pipeline/internal/extract"
	"github.com/docparse/invoice-pipeline/internal/invoice"
	"github.com/docparse/invoice-pipeline/internal/llm"
	"github.com/docparse/invoice-pipeline/internal/reconcile"
	"github.com/docparse/invoice-pipeline/internal/validate"
)

// Result is the complete outcome for one document: the reconciled record, its
// validation report, per-page diagnostics and any decoded barcode values. The
// caller always gets either a full Result or a fatal error, never half of one.
type Result struct {
	Document   *invoice.Document        `json:"document"`
	Report     invoice.ValidationReport `json:"report"`
	PageErrors map[int]string           `json:"page_errors"`
	Codes      []string                 `json:"codes,omitempty"`
}

type Orchestrator struct {
	Provider  extract.PageTextProvider
	Enricher  extract.BarcodeEnricher // nil disables enrichment
	Extractor llm.CandidateExtractor

	Reconciler *reconcile.Reconciler
	Validator  *validate.Validator

	Workers         int
	PageTimeout     time.Duration
	DefaultCurrency string
	Logger          *slog.Logger
}

func New(provider extract.PageTextProvider, enricher extract.BarcodeEnricher,
	extractor llm.CandidateExtractor, rec *reconcile.Reconciler, val *validate.Validator,
	workers int, pageTimeout time.Duration, defaultCurrency string, logger *slog.Logger) *Orchestrator {
	if workers <= 0 {
		workers = 4
	}
	if pageTimeout <= 0 {
		pageTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		Provider:        provider,
		Enricher:        enricher,
		Extractor:       extractor,
		Reconciler:      rec,
		Validator:       val,
		Workers:         workers,
		PageTimeout:     pageTimeout,
		DefaultCurrency: defaultCurrency,
		Logger:          logger,
	}
}

// pageOutcome is one page's collected result. A failed page still occupies
// its slot with an empty candidate so index alignment survives.
type pageOutcome struct {
	pos     int
	content invoice.PageContent
	cand    invoice.PageCandidate
	pageErr *common.PageError
}

// Process runs the full pipeline over the ordered pages. Per-page failures
// are recorded and skipped; only structural and document-level failures
// return an error.
func (o *Orchestrator) Process(ctx context.Context, pages []invoice.RawPage) (*Result, error) {
	if len(pages) == 0 {
		return nil, common.NewDocumentError("empty_input", nil)
	}
	start := time.Now()
	o.Logger.Info("pipeline.start", "pages", len(pages))

	workers := o.Workers
	if workers > len(pages) {
		workers = len(pages)
	}

	jobs := make(chan int)
	results := make(chan pageOutcome)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pos := range jobs {
				results <- o.processPage(ctx, pos, pages[pos])
			}
		}()
	}
	go func() {
		defer close(jobs)
		for pos := range pages {
			select {
			case jobs <- pos:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	// Single collection point, keyed by position.
	outcomes := make([]pageOutcome, len(pages))
	collected := 0
	for out := range results {
		outcomes[out.pos] = out
		collected++
	}

	if err := ctx.Err(); err != nil {
		o.Logger.Warn("pipeline.cancelled", "collected", collected, "pages", len(pages))
		return nil, common.NewDocumentError("cancelled", err)
	}

	pageErrors := make(map[int]string)
	candidates := make([]invoice.PageCandidate, len(pages))
	var codes []string
	failed := 0
	for pos, out := range outcomes {
		candidates[pos] = out.cand
		codes = append(codes, out.content.BarcodeValues...)
		if out.pageErr != nil {
			pageErrors[pages[pos].Index] = out.pageErr.Error()
			if out.cand.Fields.IsEmpty() {
				failed++
			}
		}
	}
	if failed == len(pages) {
		o.Logger.Error("pipeline.no_usable_pages", "pages", len(pages))
		return nil, common.NewDocumentError("no_usable_pages", nil)
	}

	doc, err := o.Reconciler.Reconcile(candidates)
	if err != nil {
		return nil, err
	}
	report := o.Validator.Validate(doc)

	o.Logger.Info("pipeline.done",
		"pages", len(pages),
		"page_errors", len(pageErrors),
		"is_valid", report.IsValid,
		"confidence", report.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &Result{
		Document:   doc,
		Report:     report,
		PageErrors: pageErrors,
		Codes:      codes,
	}, nil
}

// processPage runs OCR, optional barcode enrichment and structured extraction
// for one page. Each external call carries its own timeout; a timed-out page
// is treated exactly like a failed one.
func (o *Orchestrator) processPage(ctx context.Context, pos int, page invoice.RawPage) pageOutcome {
	out := pageOutcome{pos: pos, cand: invoice.EmptyCandidate(page.Index)}

	octx, cancel := context.WithTimeout(ctx, o.PageTimeout)
	content, err := o.Provider.ExtractPage(octx, page)
	cancel()
	if err != nil {
		out.pageErr = common.NewPageError(page.Index, "ocr", err)
		o.Logger.Error("pipeline.page.ocr_failed", "page", page.Index, "error", err)
		return out
	}
	content.PageIndex = page.Index

	// Optional enrichment: a failure is recorded but the page goes on.
	if o.Enricher != nil {
		bctx, cancel := context.WithTimeout(ctx, o.PageTimeout)
		values, err := o.Enricher.Decode(bctx, page)
		cancel()
		if err != nil {
			o.Logger.Warn("pipeline.page.barcode_failed", "page", page.Index, "error", err)
		} else {
			content.BarcodeValues = values
		}
	}
	out.content = content

	ectx, cancel := context.WithTimeout(ctx, o.PageTimeout)
	cand, _, err := o.Extractor.ExtractCandidate(ectx, llm.ExtractRequest{
		PageIndex:       page.Index,
		PageText:        content.RawText,
		BarcodeValues:   content.BarcodeValues,
		DefaultCurrency: o.DefaultCurrency,
		PrepConfidence:  content.OCRConfidence,
		PageImage:       page.Data,
	})
	cancel()
	if err != nil {
		out.pageErr = common.NewPageError(page.Index, "extract", err)
		o.Logger.Error("pipeline.page.extract_failed", "page", page.Index, "error", err)
		return out
	}
	cand.PageIndex = page.Index
	out.cand = cand

	o.Logger.Info("pipeline.page.ok",
		"page", page.Index,
		"text_len", len(content.RawText),
		"line_items", len(cand.Fields.LineItems),
		"barcodes", len(content.BarcodeValues),
	)
	return out
}
