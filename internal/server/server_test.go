package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docparse/invoice-pipeline/internal/common"
	"github.com/docparse/invoice-pipeline/internal/invoice"
	"github.com/docparse/invoice-pipeline/internal/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSplitter struct {
	pages []invoice.RawPage
	err   error
}

func (s *stubSplitter) Split(_ context.Context, _ string, data []byte) ([]invoice.RawPage, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.pages != nil {
		return s.pages, nil
	}
	return []invoice.RawPage{{Index: 1, Filename: "upload", Data: data}}, nil
}

type stubProcessor struct {
	result *pipeline.Result
	err    error
}

func (s *stubProcessor) Process(_ context.Context, _ []invoice.RawPage) (*pipeline.Result, error) {
	return s.result, s.err
}

func goodResult() *pipeline.Result {
	conf := float32(0.95)
	return &pipeline.Result{
		Document: &invoice.Document{
			Vendor:               map[string]string{"name": "Acme GmbH"},
			Metadata:             map[string]string{"invoice_number": "INV-1"},
			LineItems:            []invoice.LineItem{{Description: "Widget", LineTotal: "10.00", SourcePage: 1}},
			Totals:               map[string]string{"total": "10.00"},
			ExtractionConfidence: &conf,
		},
		Report:     invoice.ValidationReport{IsValid: true, Confidence: 0.95},
		PageErrors: map[int]string{},
	}
}

func newTestServer(proc Processor, splitter PageSplitter) *Server {
	return New(proc, splitter, nil, 0.60, 1<<20, nil)
}

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/convert", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(&stubProcessor{result: goodResult()}, &stubSplitter{})
	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/v1/convert", body["endpoint"])
}

func TestConvertHappyPath(t *testing.T) {
	s := newTestServer(&stubProcessor{result: goodResult()}, &stubSplitter{})
	rec := doRequest(s, uploadRequest(t, "file", "invoice.pdf", []byte("%PDF-1.4")))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status     string           `json:"status"`
		Document   invoice.Document `json:"document"`
		Attachment struct {
			FileName string `json:"file_name"`
			FileHash string `json:"file_hash"`
		} `json:"attachment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "PROCESSED", body.Status)
	assert.Equal(t, "Acme GmbH", body.Document.Vendor["name"])
	assert.Equal(t, "invoice.pdf", body.Attachment.FileName)
	assert.Len(t, body.Attachment.FileHash, 64)
}

func TestConvertLowConfidenceNeedsReview(t *testing.T) {
	result := goodResult()
	result.Report.Confidence = 0.40
	s := newTestServer(&stubProcessor{result: result}, &stubSplitter{})
	rec := doRequest(s, uploadRequest(t, "file", "invoice.pdf", []byte("x")))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NEEDS_REVIEW", body["status"])
}

func TestConvertBadRequests(t *testing.T) {
	s := newTestServer(&stubProcessor{result: goodResult()}, &stubSplitter{})

	t.Run("missing file field", func(t *testing.T) {
		rec := doRequest(s, uploadRequest(t, "document", "invoice.pdf", []byte("x")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		rec := doRequest(s, uploadRequest(t, "file", "invoice.docx", []byte("x")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("oversized upload", func(t *testing.T) {
		small := New(&stubProcessor{result: goodResult()}, &stubSplitter{}, nil, 0.60, 8, nil)
		rec := doRequest(small, uploadRequest(t, "file", "invoice.pdf", bytes.Repeat([]byte("x"), 64)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestConvertDegradesToNeedsReview(t *testing.T) {
	tests := []struct {
		name       string
		splitter   PageSplitter
		processor  Processor
		wantReason string
	}{
		{
			name:       "splitter failure",
			splitter:   &stubSplitter{err: errors.New("pdftoppm exploded")},
			processor:  &stubProcessor{result: goodResult()},
			wantReason: "page_split_failed",
		},
		{
			name:       "document error reason is surfaced",
			splitter:   &stubSplitter{},
			processor:  &stubProcessor{err: common.NewDocumentError("no_usable_pages", nil)},
			wantReason: "no_usable_pages",
		},
		{
			name:       "structural error",
			splitter:   &stubSplitter{},
			processor:  &stubProcessor{err: common.NewStructuralError("page index gap")},
			wantReason: "structural_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(tt.processor, tt.splitter)
			rec := doRequest(s, uploadRequest(t, "file", "invoice.pdf", []byte("x")))

			require.Equal(t, http.StatusOK, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "NEEDS_REVIEW", body["status"])
			assert.Equal(t, tt.wantReason, body["reason"])
		})
	}
}

func TestRecentWithoutArchive(t *testing.T) {
	s := newTestServer(&stubProcessor{result: goodResult()}, &stubSplitter{})
	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/v1/invoices", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
