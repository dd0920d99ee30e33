// Package export renders processed invoices as XLSX workbooks for review
// and bookkeeping handoff.
package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/docparse/invoice-pipeline/internal/invoice"
)

// Entry is one processed invoice bound for the workbook.
type Entry struct {
	FileName string
	Status   string
	Document *invoice.Document
	Report   invoice.ValidationReport
}

type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// ExportXLSX returns a workbook with an "Invoices" summary sheet and a
// "Line Items" detail sheet.
func (s *Service) ExportXLSX(entries []Entry) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	const summary = "Invoices"
	const details = "Line Items"

	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(details); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(summary)
	f.SetActiveSheet(idx)

	writeRow := func(sheet string, row int, values []any) {
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	writeRow(summary, 1, []any{
		"File", "Vendor", "Invoice Number", "Invoice Date", "Currency",
		"Subtotal", "Tax", "Total", "Status", "Confidence", "Validation Errors",
	})
	writeRow(details, 1, []any{
		"File", "Invoice Number", "Description", "Quantity", "Unit Price", "Line Total", "Source Page",
	})

	sumRow, detRow := 2, 2
	for _, e := range entries {
		doc := e.Document
		if doc == nil {
			writeRow(summary, sumRow, []any{e.FileName, "", "", "", "", "", "", "", e.Status, "", ""})
			sumRow++
			continue
		}
		invNo := doc.Metadata["invoice_number"]
		writeRow(summary, sumRow, []any{
			e.FileName,
			doc.Vendor["name"],
			invNo,
			doc.Metadata["invoice_date"],
			doc.Metadata["currency_code"],
			doc.Totals["subtotal"],
			doc.Totals["tax"],
			doc.Totals["total"],
			e.Status,
			fmt.Sprintf("%.2f", e.Report.Confidence),
			len(e.Report.Errors),
		})
		sumRow++

		for _, li := range doc.LineItems {
			writeRow(details, detRow, []any{
				e.FileName, invNo, li.Description, li.Quantity, li.UnitPrice, li.LineTotal, li.SourcePage,
			})
			detRow++
		}
	}

	// Widen the columns people actually read.
	_ = f.SetColWidth(summary, "A", "A", 32) // file
	_ = f.SetColWidth(summary, "B", "B", 28) // vendor
	_ = f.SetColWidth(summary, "C", "D", 16)
	_ = f.SetColWidth(details, "A", "A", 32)
	_ = f.SetColWidth(details, "C", "C", 48) // description

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"invoices", len(entries),
		"line_rows", detRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
