package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/memberhub/approval-workflow/internal/application/service"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	domainwf "github.com/memberhub/approval-workflow/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	version  string
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, version string, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		version:  version,
		logger:   logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ReviewRequest is the body of a financial or final review completion
type ReviewRequest struct {
	Decision        string                 `json:"decision"`
	Notes           string                 `json:"notes"`
	RejectionReason string                 `json:"rejection_reason"`
	Metadata        map[string]interface{} `json:"metadata"`
}

// NotesRequest is the body of actions that only carry notes
type NotesRequest struct {
	Notes string `json:"notes"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	h.respondOK(c, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
	})
}

// GetEntity handles GET /{applications|renewals}/:id
func (h *Handlers) GetEntity(t entity.EntityType) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.pathID(c)
		if !ok {
			return
		}
		view, err := h.services.Review.GetEntity(c.Request.Context(), t, id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		h.respondOK(c, view)
	}
}

// StartFinancialReview handles POST /{applications|renewals}/:id/financial-review/start
func (h *Handlers) StartFinancialReview(t entity.EntityType) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.pathID(c)
		if !ok {
			return
		}
		result, err := h.services.Review.StartFinancialReview(c.Request.Context(), t, id, actorFrom(c))
		if err != nil {
			h.respondError(c, err)
			return
		}
		h.respondTransition(c, result)
	}
}

// CompleteFinancialReview handles POST /{applications|renewals}/:id/financial-review/complete
func (h *Handlers) CompleteFinancialReview(t entity.EntityType) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.pathID(c)
		if !ok {
			return
		}
		in, ok := h.reviewInput(c)
		if !ok {
			return
		}
		result, err := h.services.Review.CompleteFinancialReview(c.Request.Context(), t, id, actorFrom(c), in)
		if err != nil {
			h.respondError(c, err)
			return
		}
		h.respondTransition(c, result)
	}
}

// StartFinalReview handles POST /applications/:id/final-review/start
func (h *Handlers) StartFinalReview(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	result, err := h.services.Review.StartFinalReview(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondTransition(c, result)
}

// CompleteFinalReview handles POST /applications/:id/final-review/complete.
// A member creation failure after approval yields 202 with a warning.
func (h *Handlers) CompleteFinalReview(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	in, ok := h.reviewInput(c)
	if !ok {
		return
	}
	result, err := h.services.Review.CompleteFinalReview(c.Request.Context(), id, actorFrom(c), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondTransition(c, result)
}

// CompleteRenewal handles POST /renewals/:id/complete
func (h *Handlers) CompleteRenewal(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req NotesRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	result, err := h.services.Review.CompleteRenewal(c.Request.Context(), id, actorFrom(c), req.Notes)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondTransition(c, result)
}

// GetAuditTrail handles GET /{applications|renewals}/:id/audit-trail?after_id=&limit=
func (h *Handlers) GetAuditTrail(t entity.EntityType) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.pathID(c)
		if !ok {
			return
		}
		afterID, ok := h.queryInt64(c, "after_id")
		if !ok {
			return
		}
		limit, ok := h.queryInt64(c, "limit")
		if !ok {
			return
		}
		page, err := h.services.Audit.GetTrail(c.Request.Context(), t, id, afterID, int(limit))
		if err != nil {
			h.respondError(c, err)
			return
		}
		h.respondOK(c, page)
	}
}

func (h *Handlers) reviewInput(c *gin.Context) (service.ReviewInput, bool) {
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondValidation(c, "invalid request body: %v", err)
		return service.ReviewInput{}, false
	}
	decision, err := service.ParseDecision(req.Decision)
	if err != nil {
		h.respondError(c, err)
		return service.ReviewInput{}, false
	}
	return service.ReviewInput{
		Decision:        decision,
		Notes:           req.Notes,
		RejectionReason: req.RejectionReason,
		Metadata:        req.Metadata,
	}, true
}

// bindOptionalJSON accepts an empty body
func (h *Handlers) bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		h.respondValidation(c, "invalid request body: %v", err)
		return false
	}
	return true
}

func (h *Handlers) pathID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.respondValidation(c, "invalid id %q", idStr)
		return 0, false
	}
	return id, true
}

// queryInt64 returns 0 when the parameter is absent
func (h *Handlers) queryInt64(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.respondValidation(c, "%s must be an integer", name)
		return 0, false
	}
	return v, true
}

func (h *Handlers) queryTime(c *gin.Context, name string, endOfDay bool) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts, true
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		h.respondValidation(c, "%s must be a date (YYYY-MM-DD) or RFC3339 timestamp", name)
		return nil, false
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day, true
}

// statisticsFilter reads entity_type, stage, date_from, date_to and reviewer_id
func (h *Handlers) statisticsFilter(c *gin.Context) (entity.StatisticsFilter, bool) {
	filter := entity.StatisticsFilter{EntityType: entity.EntityType(c.Query("entity_type"))}

	if raw := c.Query("stage"); raw != "" {
		stage, err := domainwf.ParseStage(raw)
		if err != nil {
			h.respondValidation(c, "unknown workflow stage %q", raw)
			return filter, false
		}
		filter.Stage = &stage
	}

	var ok bool
	if filter.DateFrom, ok = h.queryTime(c, "date_from", false); !ok {
		return filter, false
	}
	if filter.DateTo, ok = h.queryTime(c, "date_to", true); !ok {
		return filter, false
	}

	if c.Query("reviewer_id") != "" {
		reviewer, ok := h.queryInt64(c, "reviewer_id")
		if !ok {
			return filter, false
		}
		filter.ReviewerID = &reviewer
	}
	return filter, true
}

// GetStatistics handles GET /workflow/statistics
func (h *Handlers) GetStatistics(c *gin.Context) {
	filter, ok := h.statisticsFilter(c)
	if !ok {
		return
	}
	stats, err := h.services.Statistics.GetWorkflowStatistics(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOK(c, stats)
}

// ExportStatistics handles GET /workflow/statistics/export
func (h *Handlers) ExportStatistics(c *gin.Context) {
	filter, ok := h.statisticsFilter(c)
	if !ok {
		return
	}
	data, contentType, err := h.services.Statistics.ExportStatistics(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	name := "workflow-statistics-" + time.Now().UTC().Format("20060102") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, contentType, data)
}
