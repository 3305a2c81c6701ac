package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cbt-portal/exam-service/internal/repositories"
	"github.com/cbt-portal/exam-service/internal/services"
	"github.com/cbt-portal/exam-service/internal/utils"
	"github.com/cbt-portal/exam-service/internal/validator"
)

// ErrorResponse is the uniform error payload for all endpoints.
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse wraps successful payloads.
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data"`
}

// BaseHandler carries the shared pieces every handler needs.
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// LogRequest logs a request-scoped message with the context logger when one
// is present, falling back to the handler's own logger.
func (h BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.FromContext(c, h.logger).Info(msg, args...)
}

func (h BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	utils.FromContext(c, h.logger).Error(msg, append(args, "error", err)...)
}

// parseIDParam parses a numeric path parameter. On failure it writes a 400
// response and returns 0; callers must return immediately when it does.
func (h BaseHandler) parseIDParam(c *gin.Context, name string) uint {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + name + " parameter",
			Details: raw,
		})
		return 0
	}
	return uint(id)
}

// studentID reads the authenticated student from the context set by the auth
// middleware. On failure it writes a 401 response and returns "".
func (h BaseHandler) studentID(c *gin.Context) string {
	v, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return ""
	}
	id, ok := v.(string)
	if !ok || id == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return ""
	}
	return id
}

// handleServiceError maps service-layer errors onto HTTP statuses.
func (h BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var serviceError *services.ServiceError
	if errors.As(err, &serviceError) {
		status := statusForKind(serviceError.Kind)
		resp := ErrorResponse{Message: serviceError.Detail}
		var fieldErrors validator.ValidationErrors
		if errors.As(serviceError.Err, &fieldErrors) {
			resp.Details = fieldErrors
		}
		c.JSON(status, resp)
		return
	}

	if repositories.IsNotFoundError(err) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Resource not found",
		})
		return
	}

	h.LogError(c, err, "Unexpected service error")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Message: "Internal server error",
	})
}

func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindAlreadyCompleted:
		return http.StatusConflict
	case services.KindNotAssigned, services.KindInvalidReference,
		services.KindUngradable, services.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
