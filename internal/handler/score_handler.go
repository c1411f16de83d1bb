package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/service"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

// ScoreHandler exposes score recording, import and leaderboard endpoints.
type ScoreHandler struct {
	scores *service.ScoreService
}

// NewScoreHandler constructs the score handler.
func NewScoreHandler(scores *service.ScoreService) *ScoreHandler {
	return &ScoreHandler{scores: scores}
}

// Upsert records or replaces one score and re-ranks the subject.
func (h *ScoreHandler) Upsert(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpsertScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid score payload"))
		return
	}
	score, err := h.scores.Upsert(c.Request.Context(), claims.UserID, claims.OrgID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, score, nil)
}

// Import ingests a legacy gradebook dump.
func (h *ScoreHandler) Import(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.ImportScoresRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import payload"))
		return
	}
	result, err := h.scores.ImportLegacy(c.Request.Context(), claims.UserID, claims.OrgID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Ranking returns the subject leaderboard.
func (h *ScoreHandler) Ranking(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	board, err := h.scores.SubjectRanking(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, board, nil)
}
