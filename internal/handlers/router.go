package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/pkg/logger"
)

// NewRouter wires every route onto a fresh gin engine. Callers choose the
// gin mode before constructing it.
func NewRouter(workflow *WorkflowHandler, forecasts *ForecastHandler, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	router.POST("/user_input", workflow.HandleUserInput)
	router.GET("/chatbot_response/:session_id", workflow.GetChatbotResponse)
	router.GET("/chatbot_response", workflow.GetLatestChatbotResponse)
	router.GET("/workflow_status/:session_id", workflow.GetWorkflowStatus)
	router.GET("/status", workflow.HealthCheck)

	router.POST("/daily_forecast", forecasts.ReceiveDailyForecast)
	router.POST("/monthly_forecast", forecasts.ReceiveMonthlyForecast)
	router.GET("/daily_forecast/latest", forecasts.LatestDailyForecast)
	router.GET("/monthly_forecast/latest", forecasts.LatestMonthlyForecast)

	admin := router.Group("/admin")
	admin.POST("/run_weekly_forecast", workflow.RunWeeklyForecast)
	admin.POST("/run_monthly_forecast", workflow.RunMonthlyForecast)

	return router
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}
