package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/middleware"
	"github.com/noah-isme/gradebook-api/internal/service"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

// InsightsHandler exposes the analytics endpoints. Analysis failures never
// surface as HTTP errors: the service logs and degrades to empty payloads.
type InsightsHandler struct {
	insights *service.InsightsService
}

// NewInsightsHandler constructs the insights handler.
func NewInsightsHandler(insights *service.InsightsService) *InsightsHandler {
	return &InsightsHandler{insights: insights}
}

// AtRisk returns students flagged by the risk analyzer.
func (h *InsightsHandler) AtRisk(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	start := time.Now()
	flagged, cacheHit := h.insights.AtRiskStudents(c.Request.Context(), claims.UserID)
	respondWithMeta(c, flagged, cacheHit, start)
}

// TopPerformers returns high-achieving students.
func (h *InsightsHandler) TopPerformers(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	start := time.Now()
	performers, cacheHit := h.insights.TopPerformers(c.Request.Context(), claims.UserID)
	respondWithMeta(c, performers, cacheHit, start)
}

// Anomalies returns detected score irregularities.
func (h *InsightsHandler) Anomalies(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	start := time.Now()
	anomalies, cacheHit := h.insights.Anomalies(c.Request.Context(), claims.UserID)
	respondWithMeta(c, anomalies, cacheHit, start)
}

// Summary returns the natural-language class performance report.
func (h *InsightsHandler) Summary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	start := time.Now()
	summary, cacheHit := h.insights.ClassSummary(c.Request.Context(), claims.UserID)
	respondWithMeta(c, summary, cacheHit, start)
}

// System returns the instrumentation snapshot.
func (h *InsightsHandler) System(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	start := time.Now()
	snapshot := h.insights.SystemMetrics()
	respondWithMeta(c, snapshot, false, start)
}

func respondWithMeta(c *gin.Context, data interface{}, cacheHit bool, start time.Time) {
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, data, nil, meta)
}
