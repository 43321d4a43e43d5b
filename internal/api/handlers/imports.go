package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/omniaweb/hnmigrate/internal/document"
	"github.com/omniaweb/hnmigrate/internal/gateway"
	"github.com/omniaweb/hnmigrate/internal/history"
	"github.com/omniaweb/hnmigrate/internal/metrics"
	"github.com/rs/zerolog"
)

// Importer submits import bodies to one gateway.
type Importer interface {
	Import(ctx context.Context, body *document.Value) (*gateway.Response, error)
}

// ImporterFactory returns an Importer for a gateway and access token.
type ImporterFactory func(baseURL, token string) Importer

// GatewayImporters returns a factory of gateway clients sharing httpClient.
func GatewayImporters(httpClient *http.Client, logger zerolog.Logger) ImporterFactory {
	return func(baseURL, token string) Importer {
		c := gateway.NewClient(baseURL, httpClient, logger)
		c.SetToken(token)
		return c
	}
}

// HistoryStore is the import log. *history.Store implements it.
type HistoryStore interface {
	Pinger
	Record(ctx context.Context, e *history.Entry) error
	List(ctx context.Context, limit int) ([]*history.Entry, error)
}

// ImportHandler builds an import body and submits it to a gateway.
type ImportHandler struct {
	importers ImporterFactory
	history   HistoryStore
	metrics   *metrics.PrometheusMetrics
	logger    zerolog.Logger
}

// NewImportHandler creates a new ImportHandler. history and m may be nil.
func NewImportHandler(importers ImporterFactory, history HistoryStore, m *metrics.PrometheusMetrics, logger zerolog.Logger) *ImportHandler {
	return &ImportHandler{
		importers: importers,
		history:   history,
		metrics:   m,
		logger:    logger.With().Str("component", "import_handler").Logger(),
	}
}

// RegisterRoutes registers import routes on the given router group.
func (h *ImportHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/import", h.Submit)
	r.GET("/history", h.History)
}

// ImportRequest is a RewriteRequest plus the destination gateway.
type ImportRequest struct {
	RewriteRequest
	BaseURL     string `json:"base_url" binding:"required"`
	AccessToken string `json:"access_token" binding:"required"`
	SourceName  string `json:"source_name"`
}

// ImportResponse reports the gateway's answer.
type ImportResponse struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message"`
	Response *gateway.Response `json:"response,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Submit builds the import body and posts it to the gateway.
// POST /api/v1/import
func (h *ImportHandler) Submit(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	baseURL := gateway.NormalizeBaseURL(req.BaseURL)

	st, body, res, ok := buildImport(c, req.RewriteRequest, h.logger)
	if !ok {
		return
	}

	resp, err := h.importers(baseURL, req.AccessToken).Import(c.Request.Context(), body)
	if resp == nil {
		resp = &gateway.Response{}
	}
	out := ImportResponse{
		Success:  err == nil && resp.Success,
		Message:  resp.FormatImport(),
		Response: resp,
	}
	if err != nil {
		out.Error = err.Error()
	}

	h.metrics.RecordImport(out.Success)

	if h.history != nil {
		entry := &history.Entry{
			BaseURL:      baseURL,
			SourceName:   req.SourceName,
			Sections:     st.Selection.Selected(),
			Associations: len(st.AssociationMap()),
			Replacements: res.Replacements,
			Unmatched:    res.Unmatched,
			Success:      out.Success,
			Message:      out.Message,
		}
		if herr := h.history.Record(c.Request.Context(), entry); herr != nil {
			h.logger.Warn().Err(herr).Msg("failed to record import")
		}
	}

	log := h.logger.Info()
	if !out.Success {
		log = h.logger.Warn().Err(err)
	}
	log.Str("base_url", baseURL).
		Int("replacements", res.Replacements).
		Bool("success", out.Success).
		Msg("import submitted")

	if err != nil {
		c.JSON(http.StatusBadGateway, out)
		return
	}
	c.JSON(http.StatusOK, out)
}

// History lists recorded imports, newest first.
// GET /api/v1/history
func (h *ImportHandler) History(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "import history is disabled"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	entries, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list imports")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list imports"})
		return
	}
	if entries == nil {
		entries = []*history.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"imports": entries})
}
