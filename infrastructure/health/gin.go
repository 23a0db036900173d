package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const checkTimeout = 5 * time.Second

// GinHandler returns a Gin handler for the health check endpoint.
func (c *Checker) GinHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), checkTimeout)
		defer cancel()

		status, results := c.Check(checkCtx)

		statusCode := http.StatusOK
		if status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		ctx.JSON(statusCode, gin.H{
			"status":    status,
			"checks":    results,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// GinLivenessHandler always answers alive.
func GinLivenessHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "alive"})
	}
}

// RegisterRoutes registers health check routes on a Gin router.
func RegisterRoutes(router gin.IRoutes, checker *Checker) {
	router.GET("/health", checker.GinHandler())
	router.GET("/health/live", GinLivenessHandler())
	router.GET("/health/ready", checker.GinHandler())
}
