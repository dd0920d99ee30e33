// Package pages turns an uploaded file into an ordered sequence of raw page
// images. Image uploads pass through as a single page; PDFs are rasterized
// one image per page.
package pages

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/docparse/invoice-pipeline/constants"
	"github.com/docparse/invoice-pipeline/internal/invoice"
)

type Config struct {
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	DPI      int    // rasterization DPI, default 300
	MaxPages int    // 0 = no limit
}

type Splitter struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewSplitter(cfg Config, logger *slog.Logger) *Splitter {
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Splitter{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Split picks a strategy based on file extension.
func (s *Splitter) Split(ctx context.Context, filename string, data []byte) ([]invoice.RawPage, error) {
	ext := constants.NormalizeExt(filepath.Ext(filename))
	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		return s.splitPDF(ctx, filename, data)
	case constants.IMAGE:
		return []invoice.RawPage{{Index: 0, Filename: filename, Data: data}}, nil
	default:
		s.logger.Error("unsupported upload extension", "extension", ext)
		return nil, fmt.Errorf("unsupported extension: %q", ext)
	}
}

// splitPDF rasterizes each PDF page to a PNG.
// pdftoppm -r <dpi> -png <in.pdf> <tmp/page>
func (s *Splitter) splitPDF(ctx context.Context, filename string, data []byte) ([]invoice.RawPage, error) {
	tmpDir, err := os.MkdirTemp("", "ip-split-*")
	if err != nil {
		return nil, err
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("failed to remove temp dir", "path", path, "error", err)
		}
	}(tmpDir)

	in := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}

	prefix := filepath.Join(tmpDir, "page")
	_, errb, err := s.runner.Run(ctx, s.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", s.cfg.DPI), "-png", in, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w (%s)", err, truncate(string(errb), 512))
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if s.cfg.MaxPages > 0 && len(matches) > s.cfg.MaxPages {
		matches = matches[:s.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images")
	}

	result := make([]invoice.RawPage, 0, len(matches))
	for i, m := range matches {
		b, err := os.ReadFile(m)
		if err != nil {
			return nil, fmt.Errorf("read rendered page: %w", err)
		}
		result = append(result, invoice.RawPage{Index: i, Filename: filename, Data: b})
	}
	s.logger.Info("pages.split_ok", "file", filename, "pages", len(result))
	return result, nil
}
