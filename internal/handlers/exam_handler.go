package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cbt-portal/exam-service/internal/services"
	"github.com/cbt-portal/exam-service/internal/utils"
)

type ExamHandler struct {
	BaseHandler
	examService services.ExamService
}

func NewExamHandler(examService services.ExamService, logger utils.Logger) *ExamHandler {
	return &ExamHandler{
		BaseHandler: NewBaseHandler(logger),
		examService: examService,
	}
}

// ListAvailable handles GET /exams/available
// @Summary List available exams
// @Description Returns active exams the authenticated student may take
// @Tags exams
// @Produce json
// @Success 200 {object} SuccessResponse{data=services.ExamListResponse}
// @Router /api/v1/exams/available [get]
func (h *ExamHandler) ListAvailable(c *gin.Context) {
	h.LogRequest(c, "Listing available exams")

	var studentClass *string
	if v := strings.TrimSpace(c.Query("student_class")); v != "" {
		studentClass = &v
	} else if v := c.GetString("student_class"); v != "" {
		studentClass = &v
	}

	resp, err := h.examService.ListAvailable(c.Request.Context(), studentClass)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Data: resp})
}

// GetStatistics handles GET /exams/:id/statistics
// @Summary Get exam configuration statistics
// @Description Returns question pool composition and randomization settings
// @Tags exams
// @Produce json
// @Param id path int true "Exam ID"
// @Success 200 {object} SuccessResponse{data=repositories.ExamStatistics}
// @Router /api/v1/exams/{id}/statistics [get]
func (h *ExamHandler) GetStatistics(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	h.LogRequest(c, "Getting exam statistics", "exam_id", examID)

	stats, err := h.examService.GetStatistics(c.Request.Context(), examID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Data: stats})
}

// ValidateConfiguration handles GET /exams/:id/validate
// @Summary Validate exam configuration
// @Description Reports configuration issues that would make the exam ungradable
// @Tags exams
// @Produce json
// @Param id path int true "Exam ID"
// @Success 200 {object} SuccessResponse{data=services.ExamValidationReport}
// @Router /api/v1/exams/{id}/validate [get]
func (h *ExamHandler) ValidateConfiguration(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	h.LogRequest(c, "Validating exam configuration", "exam_id", examID)

	report, err := h.examService.ValidateConfiguration(c.Request.Context(), examID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Data: report})
}

// PreviewStudentQuestions handles GET /exams/:id/preview
// @Summary Preview a student's question selection
// @Description Shows the deterministic selection a student would receive, without starting an attempt
// @Tags exams
// @Produce json
// @Param id path int true "Exam ID"
// @Param student_id query string true "Student ID to preview for"
// @Param limit query int false "Maximum questions to return"
// @Success 200 {object} SuccessResponse{data=services.ExamPreviewResponse}
// @Router /api/v1/exams/{id}/preview [get]
func (h *ExamHandler) PreviewStudentQuestions(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	studentID := strings.TrimSpace(c.Query("student_id"))
	if studentID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "student_id query parameter is required",
		})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid limit parameter",
				Details: raw,
			})
			return
		}
		limit = n
	}

	h.LogRequest(c, "Previewing student questions", "exam_id", examID, "student_id", studentID)

	preview, err := h.examService.PreviewStudentQuestions(c.Request.Context(), examID, studentID, limit)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Data: preview})
}
