package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/joho/godotenv"

	"github.com/docparse/invoice-pipeline/constants"
	"github.com/docparse/invoice-pipeline/internal/archive"
	"github.com/docparse/invoice-pipeline/internal/barcode"
	"github.com/docparse/invoice-pipeline/internal/common"
	"github.com/docparse/invoice-pipeline/internal/export"
	"github.com/docparse/invoice-pipeline/internal/extract"
	"github.com/docparse/invoice-pipeline/internal/llm/gemini"
	"github.com/docparse/invoice-pipeline/internal/ocr"
	"github.com/docparse/invoice-pipeline/internal/pages"
	"github.com/docparse/invoice-pipeline/internal/pipeline"
	"github.com/docparse/invoice-pipeline/internal/reconcile"
	"github.com/docparse/invoice-pipeline/internal/sap"
	"github.com/docparse/invoice-pipeline/internal/validate"
)

func main() {
	dir := flag.String("dir", "", "directory of invoice files to process (required)")
	out := flag.String("out", "invoices.xlsx", "path of the XLSX report to write")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *dir == "" {
		logger.Error("usage: invoice-batch -dir <directory> [-out invoices.xlsx]")
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var provider extract.PageTextProvider
	switch cfg.OCR.Provider {
	case "azure":
		provider = ocr.NewAzureProvider(cfg.OCR.AzureEndpoint, cfg.OCR.AzureKey, cfg.OCR.EnhanceImages, logger)
	default:
		provider = ocr.NewTesseractProvider(cfg.OCR.TesseractLang, cfg.OCR.EnhanceImages, logger)
	}
	var enricher extract.BarcodeEnricher
	if cfg.OCR.EnableBarcode {
		enricher = barcode.NewQREnricher(logger)
	}
	extractor := gemini.NewClient(gemini.Config{
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		Model:           cfg.LLM.Model,
		Temperature:     cfg.LLM.Temperature,
		Timeout:         cfg.LLM.Timeout,
		LenientOptional: cfg.LLM.LenientOptional,
	}, logger)

	orch := pipeline.New(
		provider,
		enricher,
		extractor,
		reconcile.New(cfg.Pipeline.ArithTolerance, logger),
		validate.New(cfg.Pipeline.ArithTolerance, cfg.Pipeline.DateFormats, cfg.Pipeline.CurrencyCodes, logger),
		cfg.Pipeline.MaxPageWorkers,
		cfg.Pipeline.PageTimeout,
		cfg.Pipeline.DefaultCurrency,
		logger,
	)
	splitter := pages.NewSplitter(pages.Config{
		Pdftoppm: cfg.OCR.Pdftoppm,
		DPI:      cfg.OCR.DPI,
		MaxPages: cfg.OCR.MaxPages,
	}, logger)

	var store *archive.Store
	if cfg.Archive.DSN != "" {
		var err error
		store, err = archive.Open(ctx, cfg.Archive.DSN, logger)
		if err != nil {
			logger.Error("failed to open archive", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("archive close failed", "error", err)
			}
		}()
	}

	files, err := listInvoiceFiles(*dir)
	if err != nil {
		logger.Error("cannot list input directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		logger.Error("no supported files found", "dir", *dir)
		os.Exit(1)
	}
	logger.Info("batch.start", "dir", *dir, "files", len(files))

	start := time.Now()
	entries := make([]export.Entry, 0, len(files))
	var processed, review, failed int
	for _, path := range files {
		entry := processOne(ctx, logger, splitter, orch, store, cfg.Pipeline.ReviewThreshold, path)
		entries = append(entries, entry)
		switch constants.DocStatus(entry.Status) {
		case constants.StatusProcessed:
			processed++
		case constants.StatusNeedsReview:
			review++
		default:
			failed++
		}
	}

	svc := export.NewService(logger)
	data, err := svc.ExportXLSX(entries)
	if err != nil {
		logger.Error("xlsx export failed", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("cannot write report", "path", *out, "error", err)
		os.Exit(1)
	}

	logger.Info("batch.done",
		"files", len(files),
		"processed", processed,
		"needs_review", review,
		"failed", failed,
		"report", *out,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if failed > 0 {
		os.Exit(1)
	}
}

// listInvoiceFiles returns the supported files directly under dir, sorted by name.
func listInvoiceFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		ext := constants.NormalizeExt(filepath.Ext(e.Name()))
		if _, ok := constants.AllowedExtensions[ext]; ok {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// processOne runs the full pipeline on a single file. Failures never stop the
// batch; they come back as a FAILED entry.
func processOne(ctx context.Context, logger *slog.Logger, splitter *pages.Splitter,
	orch *pipeline.Orchestrator, store *archive.Store, reviewThreshold float32, path string) export.Entry {
	name := filepath.Base(path)
	entry := export.Entry{FileName: name, Status: string(constants.StatusFailed)}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("batch.read_failed", "file", name, "error", err)
		return entry
	}
	rawPages, err := splitter.Split(ctx, name, data)
	if err != nil {
		logger.Error("batch.split_failed", "file", name, "error", err)
		return entry
	}
	result, err := orch.Process(ctx, rawPages)
	if err != nil {
		logger.Error("batch.process_failed", "file", name, "error", err)
		return entry
	}

	status := pipeline.StatusFor(result.Report, reviewThreshold)
	entry.Status = string(status)
	entry.Document = result.Document
	entry.Report = result.Report

	logger.Info("batch.file.ok",
		"file", name,
		"status", entry.Status,
		"confidence", result.Report.Confidence,
		"page_errors", len(result.PageErrors),
	)

	if store != nil {
		saveResult(ctx, logger, store, name, data, status, result)
	}
	return entry
}

func saveResult(ctx context.Context, logger *slog.Logger, store *archive.Store,
	name string, data []byte, status constants.DocStatus, result *pipeline.Result) {
	docJSON, err := json.Marshal(result.Document)
	if err != nil {
		logger.Warn("batch.archive.marshal_failed", "file", name, "error", err)
		return
	}
	repJSON, err := json.Marshal(result.Report)
	if err != nil {
		logger.Warn("batch.archive.marshal_failed", "file", name, "error", err)
		return
	}
	rec := archive.Record{
		FileName:   name,
		FileHash:   sap.HashBytes(data),
		Status:     string(status),
		Confidence: result.Report.Confidence,
		Document:   docJSON,
		Report:     repJSON,
	}
	if err := store.Save(ctx, rec); err != nil {
		logger.Warn("batch.archive.save_failed", "file", name, "error", err)
	}
}
