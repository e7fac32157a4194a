package handlers

import (
	"errors"
	"net/http"

	"task-gateway/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps service errors to status codes. Unexpected errors are logged
// and answered with a generic message.
func writeError(c *gin.Context, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"message": ve.Error(), "field": ve.Field})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Task not found"})
	case errors.Is(err, services.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, gin.H{"message": "A user with this email already exists"})
	case errors.Is(err, services.ErrInvalidCredentials):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Incorrect email or password"})
	case errors.Is(err, services.ErrInvalidToken):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Could not validate credentials"})
	default:
		zap.L().Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": message})
}
