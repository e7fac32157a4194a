package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"task-gateway/internal/gateway"
	"task-gateway/internal/monitoring"
)

// Gate binds the auth gate to gin. Requests under apiPrefix are rejected with
// 401 when the credential is missing; all other protected paths redirect to
// the login page.
func Gate(gate *gateway.AuthGate, apiPrefix string) gin.HandlerFunc {
	apiPrefix = strings.TrimRight(apiPrefix, "/")

	return func(c *gin.Context) {
		policy := gateway.PolicyRedirect
		if apiPrefix != "" && strings.HasPrefix(c.Request.URL.Path, apiPrefix) {
			policy = gateway.PolicyReject
		}

		decision := gate.Decide(c.Request, policy)
		monitoring.ObserveGateDecision(decision.Outcome.String())

		switch decision.Outcome {
		case gateway.Reject:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "Authentication required",
			})
		case gateway.Redirect:
			status := http.StatusFound
			if m := c.Request.Method; m != http.MethodGet && m != http.MethodHead {
				status = http.StatusSeeOther
			}
			c.Redirect(status, decision.Location)
			c.Abort()
		default:
			c.Next()
		}
	}
}
