package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cbt-portal/exam-service/internal/repositories"
	"github.com/cbt-portal/exam-service/internal/services"
	"github.com/cbt-portal/exam-service/internal/utils"
	"github.com/cbt-portal/exam-service/internal/validator"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
	validator      *validator.Validator
}

func NewAttemptHandler(attemptService services.AttemptService, v *validator.Validator, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
		validator:      v,
	}
}

// StartAttempt handles POST /exams/:id/start
// @Summary Start or resume an exam attempt
// @Description Begins a new attempt, or resumes the student's in-progress one. An expired in-progress attempt is finalized and the result is returned instead.
// @Tags attempts
// @Produce json
// @Param id path int true "Exam ID"
// @Success 201 {object} SuccessResponse{data=services.AttemptResponse}
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/exams/{id}/start [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	studentID := h.studentID(c)
	if studentID == "" {
		return
	}

	h.LogRequest(c, "Starting attempt", "exam_id", examID, "student_id", studentID)

	resp, err := h.attemptService.Start(c.Request.Context(), examID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Resumed || resp.IsCompleted {
		status = http.StatusOK
	}
	c.JSON(status, SuccessResponse{Data: resp})
}

// GetQuestions handles GET /exams/:id/questions
// @Summary Get the questions assigned to the student's attempt
// @Description Serves the frozen question set of the in-progress attempt, with correct answers stripped
// @Tags attempts
// @Produce json
// @Param id path int true "Exam ID"
// @Success 200 {object} SuccessResponse{data=services.AttemptQuestionsResponse}
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/exams/{id}/questions [get]
func (h *AttemptHandler) GetQuestions(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	studentID := h.studentID(c)
	if studentID == "" {
		return
	}

	resp, err := h.attemptService.GetQuestionsForAttempt(c.Request.Context(), examID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Data: resp})
}

// SubmitAnswer handles POST /attempts/:id/answers
// @Summary Submit an answer for one question
// @Description Grades and records the answer immediately. Resubmission replaces the previous answer. If the attempt's time limit has elapsed, the attempt is finalized instead and the result is returned.
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path int true "Attempt ID"
// @Param request body services.SubmitAnswerRequest true "Answer payload"
// @Success 200 {object} SuccessResponse{data=services.SubmitAnswerResponse}
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/attempts/{id}/answers [post]
func (h *AttemptHandler) SubmitAnswer(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	var req services.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request body",
			Details: err.Error(),
		})
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	studentID := h.studentID(c)
	if studentID == "" {
		return
	}

	h.LogRequest(c, "Submitting answer", "attempt_id", attemptID, "question_id", req.QuestionID)

	resp, err := h.attemptService.SubmitAnswer(c.Request.Context(), attemptID, &req, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Data: resp})
}

// SubmitAttempt handles POST /attempts/:id/submit
// @Summary Submit the attempt for final scoring
// @Description Finalizes the attempt, computes the score and pass verdict, and emits the completion event
// @Tags attempts
// @Produce json
// @Param id path int true "Attempt ID"
// @Success 200 {object} SuccessResponse{data=services.AttemptResultResponse}
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/attempts/{id}/submit [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	studentID := h.studentID(c)
	if studentID == "" {
		return
	}

	h.LogRequest(c, "Submitting attempt", "attempt_id", attemptID, "student_id", studentID)

	result, err := h.attemptService.Submit(c.Request.Context(), attemptID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Data: result})
}

// GetResult handles GET /attempts/:id/result
// @Summary Get the result of a completed attempt
// @Tags attempts
// @Produce json
// @Param id path int true "Attempt ID"
// @Success 200 {object} SuccessResponse{data=services.AttemptResultResponse}
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/attempts/{id}/result [get]
func (h *AttemptHandler) GetResult(c *gin.Context) {
	attemptID := h.parseIDParam(c, "id")
	if attemptID == 0 {
		return
	}

	studentID := h.studentID(c)
	if studentID == "" {
		return
	}

	result, err := h.attemptService.GetResult(c.Request.Context(), attemptID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Data: result})
}

// History handles GET /attempts/history
// @Summary List the student's completed attempts
// @Tags attempts
// @Produce json
// @Param exam_id query int false "Filter by exam"
// @Param date_from query string false "RFC3339 lower bound on start time"
// @Param date_to query string false "RFC3339 upper bound on start time"
// @Param limit query int false "Page size (default 20)"
// @Param offset query int false "Page offset"
// @Success 200 {object} SuccessResponse{data=[]services.AttemptResultResponse}
// @Router /api/v1/attempts/history [get]
func (h *AttemptHandler) History(c *gin.Context) {
	studentID := h.studentID(c)
	if studentID == "" {
		return
	}

	filters, ok := h.parseAttemptFilters(c)
	if !ok {
		return
	}

	results, total, err := h.attemptService.History(c.Request.Context(), studentID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Data: gin.H{
		"attempts": results,
		"total":    total,
	}})
}

// parseAttemptFilters builds history filters from query parameters. It writes
// a 400 response and returns ok=false on malformed input.
func (h *AttemptHandler) parseAttemptFilters(c *gin.Context) (repositories.AttemptFilters, bool) {
	filters := repositories.AttemptFilters{
		Limit:     20,
		SortBy:    "start_time",
		SortOrder: "desc",
	}

	if raw := c.Query("exam_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid exam_id parameter",
				Details: raw,
			})
			return filters, false
		}
		examID := uint(id)
		filters.ExamID = &examID
	}

	for _, q := range []struct {
		name string
		dst  **time.Time
	}{
		{"date_from", &filters.DateFrom},
		{"date_to", &filters.DateTo},
	} {
		if raw := c.Query(q.name); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, ErrorResponse{
					Message: "Invalid " + q.name + " parameter, expected RFC3339",
					Details: raw,
				})
				return filters, false
			}
			*q.dst = &t
		}
	}

	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			filters.Limit = n
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			filters.Offset = n
		}
	}

	return filters, true
}
