package gemini

import (
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Config for the Gemini client.
type Config struct {
	APIKey          string        // if empty, falls back to env GEMINI_API_KEY
	BaseURL         string        // default https://generativelanguage.googleapis.com/v1
	Model           string        // e.g., "gemini-1.5-flash"
	Temperature     float32       // 0..2
	Timeout         time.Duration // http client timeout
	LenientOptional bool

	// LowConfThreshold: attach the page image when OCR confidence is below it.
	LowConfThreshold float32
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.LowConfThreshold <= 0 {
		cfg.LowConfThreshold = 0.55
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger,
	}
}
