package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/docparse/invoice-pipeline/internal/archive"
	"github.com/docparse/invoice-pipeline/internal/barcode"
	"github.com/docparse/invoice-pipeline/internal/common"
	"github.com/docparse/invoice-pipeline/internal/extract"
	"github.com/docparse/invoice-pipeline/internal/llm/gemini"
	"github.com/docparse/invoice-pipeline/internal/ocr"
	"github.com/docparse/invoice-pipeline/internal/pages"
	"github.com/docparse/invoice-pipeline/internal/pipeline"
	"github.com/docparse/invoice-pipeline/internal/reconcile"
	"github.com/docparse/invoice-pipeline/internal/server"
	"github.com/docparse/invoice-pipeline/internal/validate"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var provider extract.PageTextProvider
	switch cfg.OCR.Provider {
	case "azure":
		provider = ocr.NewAzureProvider(cfg.OCR.AzureEndpoint, cfg.OCR.AzureKey, cfg.OCR.EnhanceImages, logger)
		logger.Info("using azure ocr provider")
	default:
		provider = ocr.NewTesseractProvider(cfg.OCR.TesseractLang, cfg.OCR.EnhanceImages, logger)
		logger.Info("using tesseract ocr provider", "lang", cfg.OCR.TesseractLang)
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
	} else {
		logger.Warn("ARCHIVE_DSN not set, results will not be persisted")
	}

	srv := server.New(orch, splitter, store, cfg.Pipeline.ReviewThreshold, cfg.Server.MaxUploadSize, logger)
	httpSrv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: srv.Routes(),
	}

	go func() {
		logger.Info("http serving", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	logger.Info("stopped")
}
