// Package server exposes the pipeline over HTTP: a health check, the convert
// endpoint and a recent-results listing backed by the archive.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docparse/invoice-pipeline/constants"
	"github.com/docparse/invoice-pipeline/internal/archive"
	"github.com/docparse/invoice-pipeline/internal/common"
	"github.com/docparse/invoice-pipeline/internal/invoice"
	"github.com/docparse/invoice-pipeline/internal/pipeline"
	"github.com/docparse/invoice-pipeline/internal/sap"
)

// PageSplitter turns an upload into ordered raw pages. Declared here so the
// handler can be tested with a stub instead of pdftoppm.
type PageSplitter interface {
	Split(ctx context.Context, filename string, data []byte) ([]invoice.RawPage, error)
}

// Processor is the slice of the orchestrator the handlers need.
type Processor interface {
	Process(ctx context.Context, pages []invoice.RawPage) (*pipeline.Result, error)
}

type Server struct {
	Proc            Processor
	Splitter        PageSplitter
	Archive         *archive.Store // nil disables archiving
	ReviewThreshold float32
	MaxUploadSize   int64
	Logger          *slog.Logger
}

func New(proc Processor, splitter PageSplitter, store *archive.Store,
	reviewThreshold float32, maxUploadSize int64, logger *slog.Logger) *Server {
	if reviewThreshold <= 0 {
		reviewThreshold = 0.60
	}
	if maxUploadSize <= 0 {
		maxUploadSize = 32 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Proc:            proc,
		Splitter:        splitter,
		Archive:         store,
		ReviewThreshold: reviewThreshold,
		MaxUploadSize:   maxUploadSize,
		Logger:          logger,
	}
}

// Routes builds the gin engine with all handlers registered.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID())
	r.GET("/", s.handleHealth)
	r.POST("/v1/convert", s.handleConvert)
	r.GET("/v1/invoices", s.handleRecent)
	return r
}

// requestID stamps every request with an ID for log correlation.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), id))
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "invoice pipeline running",
		"endpoint": "/v1/convert",
		"method":   "POST",
	})
}

// handleConvert accepts a PDF or image upload and returns the structured
// invoice with its validation report. Extraction trouble degrades to a
// NEEDS_REVIEW payload; only a malformed request is a client error.
func (s *Server) handleConvert(c *gin.Context) {
	reqID := common.RequestIDFromContext(c.Request.Context())

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	if fileHeader.Size > s.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	ext := filepath.Ext(fileHeader.Filename)
	if constants.MapExtToFormat(ext) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type: " + ext})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open upload"})
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			s.Logger.Warn("server.upload_close_failed", "req_id", reqID, "error", err)
		}
	}()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read upload"})
		return
	}

	s.Logger.Info("server.convert.start",
		"req_id", reqID, "file", fileHeader.Filename, "bytes", len(data))

	rawPages, err := s.Splitter.Split(c.Request.Context(), fileHeader.Filename, data)
	if err != nil {
		s.Logger.Error("server.convert.split_failed", "req_id", reqID, "error", err)
		c.JSON(http.StatusOK, gin.H{
			"status": string(constants.StatusNeedsReview),
			"reason": "page_split_failed",
		})
		return
	}

	result, err := s.Proc.Process(c.Request.Context(), rawPages)
	if err != nil {
		s.Logger.Error("server.convert.failed", "req_id", reqID, "error", err)
		reason := "extraction_failed"
		var docErr *common.DocumentError
		if errors.As(err, &docErr) {
			reason = docErr.Reason
		} else if errors.Is(err, common.ErrStructural) {
			reason = "structural_error"
		}
		c.JSON(http.StatusOK, gin.H{
			"status": string(constants.StatusNeedsReview),
			"reason": reason,
		})
		return
	}

	status := pipeline.StatusFor(result.Report, s.ReviewThreshold)
	s.archiveResult(c.Request.Context(), reqID, fileHeader.Filename, data, status, result)

	payload := sap.Prepare(result.Document, fileHeader.Filename, data, status)
	c.JSON(http.StatusOK, gin.H{
		"status":      string(status),
		"document":    result.Document,
		"report":      result.Report,
		"page_errors": result.PageErrors,
		"codes":       result.Codes,
		"attachment":  payload.Attachment,
	})
}

// archiveResult persists the outcome; failures are logged, never surfaced.
func (s *Server) archiveResult(ctx context.Context, reqID, fileName string,
	data []byte, status constants.DocStatus, result *pipeline.Result) {
	if s.Archive == nil {
		return
	}
	docJSON, err := json.Marshal(result.Document)
	if err != nil {
		s.Logger.Warn("server.archive.marshal_failed", "req_id", reqID, "error", err)
		return
	}
	repJSON, err := json.Marshal(result.Report)
	if err != nil {
		s.Logger.Warn("server.archive.marshal_failed", "req_id", reqID, "error", err)
		return
	}
	rec := archive.Record{
		FileName:   fileName,
		FileHash:   sap.HashBytes(data),
		Status:     string(status),
		Confidence: result.Report.Confidence,
		Document:   docJSON,
		Report:     repJSON,
	}
	if err := s.Archive.Save(ctx, rec); err != nil {
		s.Logger.Warn("server.archive.save_failed", "req_id", reqID, "error", err)
	}
}

func (s *Server) handleRecent(c *gin.Context) {
	if s.Archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive is not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	recs, err := s.Archive.Recent(c.Request.Context(), limit)
	if err != nil {
		s.Logger.Error("server.recent.failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "archive query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": recs})
}
