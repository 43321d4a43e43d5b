package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/omniaweb/hnmigrate/internal/association"
	"github.com/omniaweb/hnmigrate/internal/document"
	"github.com/omniaweb/hnmigrate/internal/metrics"
	"github.com/omniaweb/hnmigrate/internal/payload"
	"github.com/omniaweb/hnmigrate/internal/rewrite"
	"github.com/omniaweb/hnmigrate/internal/services"
	"github.com/omniaweb/hnmigrate/internal/session"
	"github.com/rs/zerolog"
)

// MigrationHandler exposes planning and rewriting of exports. It is
// stateless: every request carries the documents it works on.
type MigrationHandler struct {
	metrics *metrics.PrometheusMetrics
	logger  zerolog.Logger
}

// NewMigrationHandler creates a new MigrationHandler. m may be nil.
func NewMigrationHandler(m *metrics.PrometheusMetrics, logger zerolog.Logger) *MigrationHandler {
	return &MigrationHandler{
		metrics: m,
		logger:  logger.With().Str("component", "migration_handler").Logger(),
	}
}

// RegisterRoutes registers migration routes on the given router group.
func (h *MigrationHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/plan", h.Plan)
	r.POST("/rewrite", h.Rewrite)
	r.POST("/rewrite/type", h.RewriteType)
	r.POST("/rewrite/services", h.RewriteServices)
}

// PlanRequest carries an export and the destination mapping.
type PlanRequest struct {
	Export  *document.Value `json:"export"`
	Mapping *document.Value `json:"mapping"`
}

// PlanResponse describes what an import built from the request would need.
type PlanResponse struct {
	OldServices  []services.Descriptor `json:"old_services"`
	NewServices  []services.Descriptor `json:"new_services"`
	Associations []association.Row     `json:"associations"`
	Complete     bool                  `json:"complete"`
	Unresolved   []services.Descriptor `json:"unresolved"`
	Eligible     []string              `json:"eligible"`
	Toggleable   []string              `json:"toggleable"`
	Selected     []string              `json:"selected"`
	Problems     []string              `json:"problems"`
	Summary      payload.Summary       `json:"summary"`
}

// RewriteRequest carries a full rewrite: the export, the destination
// mapping, operator association choices and the sections to send. Empty
// Sections keeps the default selection. An association to "" clears the
// automatic choice for that old service.
type RewriteRequest struct {
	Export       *document.Value   `json:"export"`
	Mapping      *document.Value   `json:"mapping"`
	Associations map[string]string `json:"associations"`
	Sections     []string          `json:"sections"`
}

// RewriteResponse holds the import body and what the rewrite changed.
type RewriteResponse struct {
	Body   *document.Value `json:"body"`
	Result rewrite.Result  `json:"result"`
}

// RewriteTypeRequest points every reference of one service type at a new
// identifier.
type RewriteTypeRequest struct {
	Document    *document.Value `json:"document"`
	ServiceType string          `json:"service_type" binding:"required"`
	NewID       string          `json:"new_id" binding:"required"`
}

// RewriteTypeResponse is the rewritten document and whether the identifier
// went to the root fallback map.
type RewriteTypeResponse struct {
	Document *document.Value `json:"document"`
	Fallback bool            `json:"fallback"`
}

// RewriteServicesRequest points each service type of a mapping at its
// identifier.
type RewriteServicesRequest struct {
	Document *document.Value `json:"document"`
	Mapping  *document.Value `json:"mapping"`
}

// RewriteServicesResponse lists the types that had no reference.
type RewriteServicesResponse struct {
	Document  *document.Value `json:"document"`
	Fallbacks []string        `json:"fallbacks"`
}

// Plan loads an export against a destination mapping.
// POST /api/v1/plan
func (h *MigrationHandler) Plan(c *gin.Context) {
	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if req.Export == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "export is required"})
		return
	}

	st := newState(req.Export, req.Mapping)

	resp := PlanResponse{
		OldServices:  nonNilDescriptors(st.OldServices()),
		NewServices:  nonNilDescriptors(st.NewServices()),
		Associations: []association.Row{},
		Complete:     st.AssociationsComplete(),
		Unresolved:   []services.Descriptor{},
		Eligible:     nonNilStrings(st.Selection.Eligible()),
		Toggleable:   nonNilStrings(st.Selection.Toggleable()),
		Selected:     nonNilStrings(st.Selection.Selected()),
		Problems:     nonNilStrings(st.Problems()),
		Summary:      st.Summary(),
	}
	if st.Associations != nil {
		resp.Associations = st.Associations.Rows()
		resp.Unresolved = nonNilDescriptors(st.Associations.Unresolved())
	}

	c.JSON(http.StatusOK, resp)
}

// Rewrite builds the import body for an export.
// POST /api/v1/rewrite
func (h *MigrationHandler) Rewrite(c *gin.Context) {
	var req RewriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	st, body, res, ok := buildImport(c, req, h.logger)
	if !ok {
		return
	}

	h.metrics.RecordRewrite(res.Replacements, nil)
	h.logger.Info().
		Int("replacements", res.Replacements).
		Int("unmatched", len(res.Unmatched)).
		Strs("sections", st.Selection.Selected()).
		Msg("import body built")

	c.JSON(http.StatusOK, RewriteResponse{Body: body, Result: res})
}

// RewriteType rewrites every reference of one service type.
// POST /api/v1/rewrite/type
func (h *MigrationHandler) RewriteType(c *gin.Context) {
	var req RewriteTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	found, err := rewrite.ApplyToType(req.Document, req.ServiceType, req.NewID)
	if err != nil {
		writeRewriteError(c, err, h.logger)
		return
	}

	var fallbacks []string
	if !found {
		fallbacks = []string{req.ServiceType}
	}
	h.metrics.RecordRewrite(0, fallbacks)

	c.JSON(http.StatusOK, RewriteTypeResponse{Document: req.Document, Fallback: !found})
}

// RewriteServices applies every service of a mapping by type.
// POST /api/v1/rewrite/services
func (h *MigrationHandler) RewriteServices(c *gin.Context) {
	var req RewriteServicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if req.Mapping == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mapping is required"})
		return
	}

	fallbacks, err := rewrite.ApplyServices(req.Document, services.Extract(req.Mapping))
	if err != nil {
		writeRewriteError(c, err, h.logger)
		return
	}
	h.metrics.RecordRewrite(0, fallbacks)

	c.JSON(http.StatusOK, RewriteServicesResponse{Document: req.Document, Fallbacks: nonNilStrings(fallbacks)})
}

// buildImport applies the choices of req and builds the import body. On
// failure it writes the error response and returns false.
func buildImport(c *gin.Context, req RewriteRequest, logger zerolog.Logger) (*session.State, *document.Value, rewrite.Result, bool) {
	if req.Export == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "export is required"})
		return nil, nil, rewrite.Result{}, false
	}

	st := newState(req.Export, req.Mapping)

	for oldID, newID := range req.Associations {
		var err error
		if newID == "" {
			err = st.Clear(oldID)
		} else {
			err = st.Select(oldID, newID)
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid association: " + err.Error()})
			return nil, nil, rewrite.Result{}, false
		}
	}

	if len(req.Sections) > 0 {
		if err := st.SelectOnly(req.Sections); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sections: " + err.Error()})
			return nil, nil, rewrite.Result{}, false
		}
	}

	body, res, err := st.BuildImport()
	if err != nil {
		var notReady *session.NotReadyError
		if errors.As(err, &notReady) {
			resp := gin.H{"error": "import not ready", "reasons": notReady.Reasons}
			if st.Associations != nil {
				resp["unresolved"] = nonNilDescriptors(st.Associations.Unresolved())
			}
			c.JSON(http.StatusConflict, resp)
			return nil, nil, rewrite.Result{}, false
		}
		writeRewriteError(c, err, logger)
		return nil, nil, rewrite.Result{}, false
	}
	return st, body, res, true
}

func writeRewriteError(c *gin.Context, err error, logger zerolog.Logger) {
	if errors.Is(err, rewrite.ErrPrecondition) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	logger.Error().Err(err).Msg("rewrite failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "rewrite failed"})
}

func newState(export, mapping *document.Value) *session.State {
	st := session.New()
	st.LoadExportDocument("request", export)
	if mapping != nil {
		st.SetNewMapping(mapping)
	}
	return st
}

func nonNilDescriptors(list []services.Descriptor) []services.Descriptor {
	if list == nil {
		return []services.Descriptor{}
	}
	return list
}

func nonNilStrings(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
