package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/docparse/invoice-pipeline/internal/invoice"
)

// TesseractProvider extracts page text with a local Tesseract engine. It
// implements extract.PageTextProvider.
type TesseractProvider struct {
	Language string
	Enhance  bool
	Logger   *slog.Logger
}

func NewTesseractProvider(language string, enhance bool, logger *slog.Logger) *TesseractProvider {
	if language == "" {
		language = "eng"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TesseractProvider{Language: language, Enhance: enhance, Logger: logger}
}

// ExtractPage runs OCR on one page image. gosseract has no native context
// support, so the call runs in its own goroutine and the deadline is enforced
// here.
func (p *TesseractProvider) ExtractPage(ctx context.Context, page invoice.RawPage) (invoice.PageContent, error) {
	start := time.Now()

	data := page.Data
	if p.Enhance {
		enhanced, err := EnhanceForOCR(data)
		if err != nil {
			p.Logger.Warn("ocr.enhance_failed", "page", page.Index, "error", err)
		} else {
			data = enhanced
		}
	}

	type ocrResult struct {
		text string
		err  error
	}
	done := make(chan ocrResult, 1)
	go func() {
		client := gosseract.NewClient()
		defer func() {
			if err := client.Close(); err != nil {
				p.Logger.Warn("ocr.client_close_failed", "error", err)
			}
		}()
		if err := client.SetLanguage(p.Language); err != nil {
			done <- ocrResult{err: fmt.Errorf("set language: %w", err)}
			return
		}
		if err := client.SetImageFromBytes(data); err != nil {
			done <- ocrResult{err: fmt.Errorf("set image: %w", err)}
			return
		}
		text, err := client.Text()
		done <- ocrResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return invoice.PageContent{}, ctx.Err()
	case res := <-done:
		if res.err != nil {
			p.Logger.Error("ocr.tesseract_failed", "page", page.Index, "error", res.err)
			return invoice.PageContent{}, fmt.Errorf("tesseract: %w", res.err)
		}
		content := invoice.PageContent{
			PageIndex:     page.Index,
			RawText:       res.text,
			OCRConfidence: heuristicConfidence(res.text),
		}
		p.Logger.Debug("ocr.tesseract_ok",
			"page", page.Index,
			"text_len", len(res.text),
			"confidence", content.OCRConfidence,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return content, nil
	}
}
