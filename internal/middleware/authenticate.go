package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"task-gateway/internal/gateway"
	"task-gateway/internal/services"
)

const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
)

type TokenVerifier interface {
	Verify(token string) (*services.Claims, error)
}

// Authenticate verifies the bearer token of task API requests. The gateway
// already swapped a session cookie into the Authorization header.
func Authenticate(verifier TokenVerifier) gin.HandlerFunc {
	extractor := gateway.NewCredentialExtractor(nil)

	return func(c *gin.Context) {
		cred, ok := extractor.FromHeader(c.Request)
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "Authorization header is required",
			})
			return
		}

		claims, err := verifier.Verify(cred.Token)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "Could not validate credentials",
			})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Subject)
		c.Next()
	}
}

// UserID returns the identity set by Authenticate.
func UserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextUserID)
	return id, id != ""
}
