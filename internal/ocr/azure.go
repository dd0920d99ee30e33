package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"

	"github.com/docparse/invoice-pipeline/internal/invoice"
)

// AzureProvider extracts page text with the Azure Computer Vision OCR API.
// It implements extract.PageTextProvider and reports positioned lines as
// layout hints.
type AzureProvider struct {
	client  *computervision.BaseClient
	enhance bool
	logger  *slog.Logger
}

func NewAzureProvider(endpoint, apiKey string, enhance bool, logger *slog.Logger) *AzureProvider {
	client := computervision.New(endpoint)
	client.Authorizer = autorest.NewCognitiveServicesAuthorizer(apiKey)
	if logger == nil {
		logger = slog.Default()
	}
	return &AzureProvider{client: &client, enhance: enhance, logger: logger}
}

func (p *AzureProvider) ExtractPage(ctx context.Context, page invoice.RawPage) (invoice.PageContent, error) {
	start := time.Now()

	data := page.Data
	if p.enhance {
		enhanced, err := EnhanceForOCR(data)
		if err != nil {
			p.logger.Warn("ocr.enhance_failed", "page", page.Index, "error", err)
		} else {
			data = enhanced
		}
	}

	reader := io.NopCloser(bytes.NewReader(data))
	result, err := p.client.RecognizePrintedTextInStream(
		ctx,
		true,
		reader,
		computervision.OcrLanguages(computervision.En),
	)
	if err != nil {
		p.logger.Error("ocr.azure_failed", "page", page.Index, "error", err)
		return invoice.PageContent{}, fmt.Errorf("azure ocr: %w", err)
	}

	lines := linesFromOCRResult(result)
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.Text)
		b.WriteString("\n")
	}
	text := b.String()

	content := invoice.PageContent{
		PageIndex:     page.Index,
		RawText:       text,
		LayoutHints:   lines,
		OCRConfidence: heuristicConfidence(text),
	}
	p.logger.Debug("ocr.azure_ok",
		"page", page.Index,
		"lines", len(lines),
		"confidence", content.OCRConfidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

// linesFromOCRResult flattens the region/line/word hierarchy into positioned
// text lines.
func linesFromOCRResult(result computervision.OcrResult) []invoice.TextLine {
	var textLines []invoice.TextLine
	if result.Regions == nil {
		return textLines
	}
	for _, region := range *result.Regions {
		if region.Lines == nil {
			continue
		}
		for _, line := range *region.Lines {
			var lineText strings.Builder
			var boundingBox []int

			if line.BoundingBox != nil {
				parts := strings.Split(*line.BoundingBox, ",")
				for _, part := range parts {
					val, _ := strconv.Atoi(part)
					boundingBox = append(boundingBox, val)
				}
			}

			if line.Words != nil {
				for _, word := range *line.Words {
					if word.Text != nil {
						lineText.WriteString(*word.Text)
						lineText.WriteString(" ")
					}
				}
			}

			tl := invoice.TextLine{Text: strings.TrimSpace(lineText.String())}
			if len(boundingBox) >= 4 {
				tl.X, tl.Y, tl.Width, tl.Height = boundingBox[0], boundingBox[1], boundingBox[2], boundingBox[3]
			}
			if tl.Text != "" {
				textLines = append(textLines, tl)
			}
		}
	}
	return textLines
}
