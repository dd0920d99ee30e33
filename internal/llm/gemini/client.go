package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docparse/invoice-pipeline/internal/invoice"
	"github.com/docparse/invoice-pipeline/internal/llm"
)

// ExtractCandidate implements llm.CandidateExtractor against the Gemini
// generateContent API. When OCR confidence for the page is below the
// threshold and the raw page image is available, the image is attached as an
// inline part so the model can read what the OCR engine could not.
func (c *Client) ExtractCandidate(ctx context.Context, req llm.ExtractRequest) (invoice.PageCandidate, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"page", req.PageIndex,
		"text_len", len(req.PageText),
		"prep_confidence", req.PrepConfidence,
		"barcodes", len(req.BarcodeValues),
	)

	schema := llm.BuildInvoiceJSONSchema()
	sys := llm.BuildSystemPrompt(req)
	user := llm.BuildUserPrompt(req)

	parts := []map[string]any{
		{"text": sys + "\n\n" + user + "\n\nJSON Schema:\n" + mustJSON(schema)},
	}
	if len(req.PageImage) > 0 && req.PrepConfidence < c.cfg.LowConfThreshold {
		c.log.Info("llm.extract.attach_image",
			"req_id", rid, "page", req.PageIndex,
			"prep_confidence", req.PrepConfidence, "image_bytes", len(req.PageImage))
		parts = append(parts, map[string]any{
			"inline_data": map[string]any{
				"mime_type": "image/jpeg",
				"data":      base64.StdEncoding.EncodeToString(req.PageImage),
			},
		})
	}

	body := map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": parts},
		},
		"generationConfig": map[string]any{
			"temperature":      c.cfg.Temperature,
			"responseMimeType": "application/json",
		},
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model)
	raw, httpErr := c.post(ctx, endpoint, body)
	if httpErr != nil {
		c.log.Error("llm.extract.http_error",
			"req_id", rid, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return invoice.PageCandidate{}, nil, httpErr
	}

	var gc struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &gc); err != nil {
		c.log.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return invoice.PageCandidate{}, raw, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(gc.Candidates) == 0 || len(gc.Candidates[0].Content.Parts) == 0 {
		c.log.Error("llm.extract.no_candidates",
			"req_id", rid, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return invoice.PageCandidate{}, raw, fmt.Errorf("no candidates in gemini response")
	}

	content := llm.StripCodeFences(gc.Candidates[0].Content.Parts[0].Text)
	rawContent := []byte(content)

	// Validate strictly first.
	if err := llm.ValidateJSONAgainstSchema(schema, rawContent); err != nil {
		if !c.cfg.LenientOptional {
			c.log.Error("llm.extract.schema_validation_failed",
				"req_id", rid, "error", err,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return invoice.PageCandidate{}, rawContent, fmt.Errorf("schema validation failed: %w", err)
		}
		cleaned, changed, sErr := llm.SanitizeCandidateJSON(rawContent)
		if sErr != nil {
			c.log.Error("llm.extract.sanitize_failed",
				"req_id", rid, "error", sErr,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return invoice.PageCandidate{}, rawContent, fmt.Errorf("sanitize failed: %w", sErr)
		}
		if vErr := llm.ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			c.log.Error("llm.extract.schema_validation_failed",
				"req_id", rid, "error", vErr,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return invoice.PageCandidate{}, rawContent, fmt.Errorf("schema validation failed: %w", vErr)
		}
		c.log.Warn("llm.extract.lenient_sanitize_applied",
			"req_id", rid, "changed", changed,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		rawContent = cleaned
	}

	cand, err := llm.DecodeCandidate(rawContent, req.PageIndex)
	if err != nil {
		c.log.Error("llm.extract.unmarshal_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return invoice.PageCandidate{}, rawContent, err
	}

	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"page", req.PageIndex,
		"vendor", cand.Fields.Vendor["name"],
		"invoice_number", cand.Fields.Metadata["invoice_number"],
		"line_items", len(cand.Fields.LineItems),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return cand, rawContent, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"?key="+c.cfg.APIKey, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.Warn("gemini response body close error", "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gemini status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
