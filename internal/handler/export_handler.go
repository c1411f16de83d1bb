package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/service"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

// ExportHandler streams rendered CSV and PDF documents.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs the export handler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// SubjectRanking streams the subject leaderboard in the requested format.
func (h *ExportHandler) SubjectRanking(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	subjectID := c.Param("id")
	var (
		file *service.ExportFile
		err  error
	)
	switch c.DefaultQuery("format", "csv") {
	case "csv":
		file, err = h.exports.SubjectRankingCSV(c.Request.Context(), subjectID, claims.UserID)
	case "pdf":
		file, err = h.exports.SubjectRankingPDF(c.Request.Context(), subjectID, claims.UserID)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	streamFile(c, file)
}

// ClassSummary streams the class performance report in the requested format.
func (h *ExportHandler) ClassSummary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var (
		file *service.ExportFile
		err  error
	)
	switch c.DefaultQuery("format", "csv") {
	case "csv":
		file, err = h.exports.ClassSummaryCSV(c.Request.Context(), claims.UserID)
	case "pdf":
		file, err = h.exports.ClassSummaryPDF(c.Request.Context(), claims.UserID)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	streamFile(c, file)
}

func streamFile(c *gin.Context, file *service.ExportFile) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Payload)
}
