package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docparse/invoice-pipeline/internal/llm"
)

// geminiResponse wraps text the way generateContent returns it.
func geminiResponse(text string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	}
}

func newStubServer(t *testing.T, text string, gotBody *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":generateContent")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		if gotBody != nil {
			_ = json.NewDecoder(r.Body).Decode(gotBody)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(geminiResponse(text))
	}))
}

func TestExtractCandidate(t *testing.T) {
	const candidateJSON = `{
		"vendor": {"name": "Acme GmbH"},
		"invoice_metadata": {"invoice_number": "INV-1"},
		"line_items": [{"description": "Widget", "quantity": "2", "unit_price": "10.00", "line_total": "20.00"}],
		"confidence": 0.9
	}`

	srv := newStubServer(t, "```json\n"+candidateJSON+"\n```", nil)
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL}, nil)
	cand, raw, err := c.ExtractCandidate(context.Background(), llm.ExtractRequest{
		PageIndex:      2,
		PageText:       "ACME GmbH Invoice INV-1",
		PrepConfidence: 0.9,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Equal(t, 2, cand.PageIndex)
	assert.Equal(t, "Acme GmbH", cand.Fields.Vendor["name"])
	require.Len(t, cand.Fields.LineItems, 1)
	assert.Equal(t, 2, cand.Fields.LineItems[0].SourcePage)
}

func TestExtractCandidateLenientSanitize(t *testing.T) {
	// Numbers instead of decimal strings: fails strict validation, passes
	// after sanitizing.
	const sloppy = `{"totals": {"total": 30.5}, "line_items": [{"description": "Widget", "qty": 2}]}`

	srv := newStubServer(t, sloppy, nil)
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, LenientOptional: true}, nil)
	cand, _, err := c.ExtractCandidate(context.Background(), llm.ExtractRequest{PageIndex: 1, PrepConfidence: 0.9})
	require.NoError(t, err)
	assert.Equal(t, "30.50", cand.Fields.Totals["total"])
	require.Len(t, cand.Fields.LineItems, 1)
	assert.Equal(t, "2", cand.Fields.LineItems[0].Quantity)
}

func TestExtractCandidateStrictModeRejects(t *testing.T) {
	srv := newStubServer(t, `{"totals": {"total": 30.5}}`, nil)
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, LenientOptional: false}, nil)
	_, _, err := c.ExtractCandidate(context.Background(), llm.ExtractRequest{PageIndex: 1, PrepConfidence: 0.9})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")
}

func TestExtractCandidateAttachesImageOnLowConfidence(t *testing.T) {
	var body map[string]any
	srv := newStubServer(t, `{}`, &body)
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL}, nil)
	_, _, err := c.ExtractCandidate(context.Background(), llm.ExtractRequest{
		PageIndex:      1,
		PageText:       "barely readable",
		PrepConfidence: 0.2,
		PageImage:      []byte{0xFF, 0xD8},
	})
	require.NoError(t, err)

	contents := body["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	require.Len(t, parts, 2)
	_, hasImage := parts[1].(map[string]any)["inline_data"]
	assert.True(t, hasImage)
}

func TestExtractCandidateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": "quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL}, nil)
	_, _, err := c.ExtractCandidate(context.Background(), llm.ExtractRequest{PageIndex: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
