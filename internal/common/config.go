package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docparse/invoice-pipeline/constants"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Pipeline PipelineConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Archive  ArchiveConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr      string
	MaxUploadSize int64
}

// PipelineConfig is the tuning surface consumed by the extraction core.
type PipelineConfig struct {
	ArithTolerance  float64       // relative tolerance for arithmetic checks
	PageTimeout     time.Duration // per-call timeout for OCR and extraction
	MaxPageWorkers  int           // bound on concurrent page processing
	DateFormats     []string      // accepted date layouts, Go reference time
	CurrencyCodes   []string      // accepted ISO 4217 codes
	ReviewThreshold float32       // confidence below this marks NEEDS_REVIEW
	DefaultCurrency string
}

// OCRConfig holds page-text provider configuration
type OCRConfig struct {
	Provider      string // "tesseract" | "azure"
	TesseractLang string
	AzureEndpoint string
	AzureKey      string
	Pdftoppm      string // binary name or absolute path
	DPI           int    // rasterization DPI for PDFs
	MaxPages      int    // 0 = no limit
	EnhanceImages bool   // preprocess pages before OCR
	EnableBarcode bool   // optional QR enrichment
}

// LLMConfig holds structured-extractor configuration
type LLMConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     float32
	Timeout         time.Duration
	LenientOptional bool
}

// ArchiveConfig holds result-store configuration. DSN empty disables archiving.
type ArchiveConfig struct {
	DSN string
}

// DefaultDateFormats are the layouts accepted for invoice dates unless
// DATE_FORMATS overrides them.
var DefaultDateFormats = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02.01.2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
			MaxUploadSize: getEnvAsInt64("MAX_UPLOAD_BYTES", 32<<20),
		},
		Pipeline: PipelineConfig{
			ArithTolerance:  getEnvAsFloat64("ARITH_TOLERANCE", 0.01),
			PageTimeout:     getEnvAsDuration("PAGE_TIMEOUT", 45*time.Second),
			MaxPageWorkers:  getEnvAsInt("MAX_PAGE_WORKERS", 4),
			DateFormats:     getEnvAsList("DATE_FORMATS", DefaultDateFormats),
			CurrencyCodes:   getEnvAsList("CURRENCY_CODES", constants.DefaultCurrencyCodes),
			ReviewThreshold: getEnvAsFloat32("REVIEW_THRESHOLD", 0.60),
			DefaultCurrency: getEnv("DEFAULT_CURRENCY", "USD"),
		},
		OCR: OCRConfig{
			Provider:      getEnv("OCR_PROVIDER", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			AzureEndpoint: getEnv("AZURE_CV_ENDPOINT", ""),
			AzureKey:      getEnv("AZURE_CV_KEY", ""),
			Pdftoppm:      getEnv("PDFTOPPM", "pdftoppm"),
			DPI:           getEnvAsInt("PDF_DPI", 300),
			MaxPages:      getEnvAsInt("MAX_PAGES", 0),
			EnhanceImages: getEnvAsBool("ENHANCE_IMAGES", true),
			EnableBarcode: getEnvAsBool("ENABLE_BARCODE", true),
		},
		LLM: LLMConfig{
			APIKey:          getEnv("GEMINI_API_KEY", ""),
			BaseURL:         getEnv("GEMINI_BASE_URL", ""),
			Model:           getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			Temperature:     getEnvAsFloat32("GEMINI_TEMPERATURE", 0.0),
			Timeout:         getEnvAsDuration("GEMINI_TIMEOUT", 90*time.Second),
			LenientOptional: getEnvAsBool("LLM_LENIENT_OPTIONAL", true),
		},
		Archive: ArchiveConfig{
			DSN: getEnv("ARCHIVE_DSN", ""),
		},
	}
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("config: GEMINI_API_KEY is required")
	}
	if c.OCR.Provider != "tesseract" && c.OCR.Provider != "azure" {
		return fmt.Errorf("config: unknown OCR_PROVIDER %q", c.OCR.Provider)
	}
	if c.OCR.Provider == "azure" && (c.OCR.AzureEndpoint == "" || c.OCR.AzureKey == "") {
		return fmt.Errorf("config: AZURE_CV_ENDPOINT and AZURE_CV_KEY are required for the azure provider")
	}
	if c.Pipeline.ArithTolerance < 0 {
		return fmt.Errorf("config: ARITH_TOLERANCE must be >= 0")
	}
	if c.Pipeline.MaxPageWorkers <= 0 {
		return fmt.Errorf("config: MAX_PAGE_WORKERS must be > 0")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
