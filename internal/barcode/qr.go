// Package barcode is the optional QR enrichment collaborator. It never
// blocks the pipeline: a page without a readable code simply contributes no
// values.
package barcode

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/docparse/invoice-pipeline/internal/invoice"
)

// QREnricher decodes QR codes from page images. It implements
// extract.BarcodeEnricher.
type QREnricher struct {
	Logger *slog.Logger
}

func NewQREnricher(logger *slog.Logger) *QREnricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &QREnricher{Logger: logger}
}

// Decode returns the QR values found on the page, in reading order. A page
// without a code returns an empty slice and no error; only a broken image is
// an error, and even that is non-fatal to the caller.
func (e *QREnricher) Decode(ctx context.Context, page invoice.RawPage) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(page.Data))
	if err != nil {
		return nil, fmt.Errorf("decode page image: %w", err)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("binarize page image: %w", err)
	}

	result, err := qrcode.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		// No code on the page is the common case, not a failure.
		if _, notFound := err.(gozxing.NotFoundException); notFound {
			return nil, nil
		}
		return nil, fmt.Errorf("qr decode: %w", err)
	}

	value := result.GetText()
	e.Logger.Debug("barcode.qr_decoded", "page", page.Index, "bytes", len(value))
	return []string{value}, nil
}
