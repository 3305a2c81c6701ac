package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cbt-portal/exam-service/internal/services"
	"github.com/cbt-portal/exam-service/internal/utils"
	"github.com/cbt-portal/exam-service/internal/validator"
)

type HandlerManager struct {
	examHandler    *ExamHandler
	attemptHandler *AttemptHandler
	authMiddleware *JWTAuthMiddleware

	serviceManager services.ServiceManager
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	jwtSecret string,
) *HandlerManager {
	return &HandlerManager{
		examHandler:    NewExamHandler(serviceManager.Exam(), logger),
		attemptHandler: NewAttemptHandler(serviceManager.Attempt(), validator, logger),
		authMiddleware: NewJWTAuthMiddleware(jwtSecret),
		serviceManager: serviceManager,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// API v1 routes with authentication
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		exams := v1.Group("/exams")
		{
			exams.GET("/available", hm.examHandler.ListAvailable)
			exams.POST("/:id/start", hm.attemptHandler.StartAttempt)
			exams.GET("/:id/questions", hm.attemptHandler.GetQuestions)

			// Diagnostics - staff only
			staff := hm.authMiddleware.RequireRoleMiddleware("teacher", "admin")
			exams.GET("/:id/statistics", staff, hm.examHandler.GetStatistics)
			exams.GET("/:id/validate", staff, hm.examHandler.ValidateConfiguration)
			exams.GET("/:id/preview", staff, hm.examHandler.PreviewStudentQuestions)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.GET("/history", hm.attemptHandler.History)
			attempts.POST("/:id/answers", hm.attemptHandler.SubmitAnswer)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.GET("/:id/result", hm.attemptHandler.GetResult)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": "exam-service",
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "exam-service",
		})
	})
}
