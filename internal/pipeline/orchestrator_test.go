package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docparse/invoice-pipeline/constants"
	"github.com/docparse/invoice-pipeline/internal/common"
	"github.com/docparse/invoice-pipeline/internal/invoice"
	"github.com/docparse/invoice-pipeline/internal/llm"
	"github.com/docparse/invoice-pipeline/internal/reconcile"
	"github.com/docparse/invoice-pipeline/internal/validate"
)

// fakeProvider returns canned text per page index, or an error for pages in fail.
type fakeProvider struct {
	fail map[int]error
}

func (f *fakeProvider) ExtractPage(_ context.Context, page invoice.RawPage) (invoice.PageContent, error) {
	if err, ok := f.fail[page.Index]; ok {
		return invoice.PageContent{}, err
	}
	return invoice.PageContent{
		PageIndex:     page.Index,
		RawText:       fmt.Sprintf("page %d text", page.Index),
		OCRConfidence: 0.9,
	}, nil
}

// fakeExtractor returns the candidate registered for the page, or an error.
type fakeExtractor struct {
	fields map[int]invoice.Fields
	fail   map[int]error
}

func (f *fakeExtractor) ExtractCandidate(_ context.Context, req llm.ExtractRequest) (invoice.PageCandidate, []byte, error) {
	if err, ok := f.fail[req.PageIndex]; ok {
		return invoice.PageCandidate{}, nil, err
	}
	conf := float32(0.9)
	return invoice.PageCandidate{
		PageIndex:  req.PageIndex,
		Fields:     f.fields[req.PageIndex],
		Confidence: &conf,
	}, nil, nil
}

// fakeEnricher returns fixed codes, or an error for every page.
type fakeEnricher struct {
	codes []string
	err   error
}

func (f *fakeEnricher) Decode(_ context.Context, _ invoice.RawPage) ([]string, error) {
	return f.codes, f.err
}

func rawPages(n int) []invoice.RawPage {
	pages := make([]invoice.RawPage, n)
	for i := range pages {
		pages[i] = invoice.RawPage{Index: i + 1, Filename: "doc.pdf", Data: []byte{0x1}}
	}
	return pages
}

func goodFields(page int) invoice.Fields {
	f := invoice.Fields{
		LineItems: []invoice.LineItem{{
			Description: fmt.Sprintf("Item %d", page),
			Quantity:    "1",
			UnitPrice:   "10.00",
			LineTotal:   "10.00",
			SourcePage:  page,
		}},
	}
	if page == 1 {
		f.Vendor = map[string]string{"name": "Acme GmbH"}
		f.Metadata = map[string]string{"invoice_number": "INV-001"}
	}
	return f
}

func newTestOrchestrator(p *fakeProvider, e *fakeExtractor, enr *fakeEnricher) *Orchestrator {
	o := New(p, nil, e,
		reconcile.New(0.01, nil),
		validate.New(0.01, common.DefaultDateFormats, constants.DefaultCurrencyCodes, nil),
		2, time.Second, "USD", nil)
	if enr != nil {
		o.Enricher = enr
	}
	return o
}

func TestProcessHappyPath(t *testing.T) {
	ext := &fakeExtractor{fields: map[int]invoice.Fields{
		1: goodFields(1), 2: goodFields(2), 3: goodFields(3),
	}}
	ext.fields[3] = func() invoice.Fields {
		f := goodFields(3)
		f.Totals = map[string]string{"total": "30.00"}
		return f
	}()

	o := newTestOrchestrator(&fakeProvider{}, ext, nil)
	result, err := o.Process(context.Background(), rawPages(3))
	require.NoError(t, err)

	assert.Empty(t, result.PageErrors)
	assert.True(t, result.Report.IsValid)
	assert.Equal(t, "Acme GmbH", result.Document.Vendor["name"])
	assert.Len(t, result.Document.LineItems, 3)
	assert.Equal(t, "30.00", result.Document.Totals["total"])
}

func TestProcessEmptyInput(t *testing.T) {
	o := newTestOrchestrator(&fakeProvider{}, &fakeExtractor{}, nil)
	result, err := o.Process(context.Background(), nil)
	assert.Nil(t, result)
	require.Error(t, err)
	var docErr *common.DocumentError
	require.True(t, errors.As(err, &docErr))
	assert.Equal(t, "empty_input", docErr.Reason)
}

func TestProcessIsolatesFailedPage(t *testing.T) {
	tests := []struct {
		name      string
		provider  *fakeProvider
		extractor *fakeExtractor
		wantStage string
	}{
		{
			name:     "ocr failure on page 2",
			provider: &fakeProvider{fail: map[int]error{2: errors.New("engine crashed")}},
			extractor: &fakeExtractor{fields: map[int]invoice.Fields{
				1: goodFields(1), 3: goodFields(3),
			}},
			wantStage: "ocr",
		},
		{
			name:     "extraction failure on page 2",
			provider: &fakeProvider{},
			extractor: &fakeExtractor{
				fields: map[int]invoice.Fields{1: goodFields(1), 3: goodFields(3)},
				fail:   map[int]error{2: errors.New("model refused")},
			},
			wantStage: "extract",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator(tt.provider, tt.extractor, nil)
			result, err := o.Process(context.Background(), rawPages(3))
			require.NoError(t, err)

			// Only the failed page shows up, and the document still carries
			// the other pages' content.
			require.Len(t, result.PageErrors, 1)
			assert.Contains(t, result.PageErrors[2], tt.wantStage)
			assert.Equal(t, "Acme GmbH", result.Document.Vendor["name"])
			assert.Len(t, result.Document.LineItems, 2)
		})
	}
}

// slowProvider hangs on the configured page until its context expires.
type slowProvider struct {
	inner    fakeProvider
	slowPage int
}

func (s *slowProvider) ExtractPage(ctx context.Context, page invoice.RawPage) (invoice.PageContent, error) {
	if page.Index == s.slowPage {
		<-ctx.Done()
		return invoice.PageContent{}, ctx.Err()
	}
	return s.inner.ExtractPage(ctx, page)
}

func TestProcessTimedOutPageIsIsolated(t *testing.T) {
	ext := &fakeExtractor{fields: map[int]invoice.Fields{
		1: goodFields(1), 3: goodFields(3),
	}}
	o := newTestOrchestrator(&fakeProvider{}, ext, nil)
	o.Provider = &slowProvider{slowPage: 2}
	o.PageTimeout = 20 * time.Millisecond

	result, err := o.Process(context.Background(), rawPages(3))
	require.NoError(t, err)
	require.Len(t, result.PageErrors, 1)
	assert.Contains(t, result.PageErrors[2], "deadline")
	assert.Len(t, result.Document.LineItems, 2)
}

func TestProcessAllPagesFailed(t *testing.T) {
	boom := errors.New("boom")
	o := newTestOrchestrator(
		&fakeProvider{fail: map[int]error{1: boom, 2: boom}},
		&fakeExtractor{}, nil)
	result, err := o.Process(context.Background(), rawPages(2))
	assert.Nil(t, result)
	var docErr *common.DocumentError
	require.True(t, errors.As(err, &docErr))
	assert.Equal(t, "no_usable_pages", docErr.Reason)
}

func TestProcessCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(&fakeProvider{}, &fakeExtractor{
		fields: map[int]invoice.Fields{1: goodFields(1), 2: goodFields(2)},
	}, nil)
	result, err := o.Process(ctx, rawPages(2))
	assert.Nil(t, result)
	require.Error(t, err)
	var docErr *common.DocumentError
	require.True(t, errors.As(err, &docErr))
	assert.Equal(t, "cancelled", docErr.Reason)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestProcessBarcodeEnrichment(t *testing.T) {
	ext := &fakeExtractor{fields: map[int]invoice.Fields{1: goodFields(1)}}

	t.Run("codes are collected", func(t *testing.T) {
		o := newTestOrchestrator(&fakeProvider{}, ext, &fakeEnricher{codes: []string{"QR-PAYLOAD"}})
		result, err := o.Process(context.Background(), rawPages(1))
		require.NoError(t, err)
		assert.Equal(t, []string{"QR-PAYLOAD"}, result.Codes)
	})

	t.Run("enricher failure is non-fatal", func(t *testing.T) {
		o := newTestOrchestrator(&fakeProvider{}, ext, &fakeEnricher{err: errors.New("decode failed")})
		result, err := o.Process(context.Background(), rawPages(1))
		require.NoError(t, err)
		assert.Empty(t, result.Codes)
		assert.Empty(t, result.PageErrors)
		assert.Equal(t, "Acme GmbH", result.Document.Vendor["name"])
	})
}
