package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

const (
	RequestIDHeader  = "X-Request-ID"
	ContextRequestID = "request_id"
)

// RequestID keeps an incoming X-Request-ID or generates one, and writes it to
// both the request (so the proxy forwards it) and the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" || len(reqID) > 128 {
			id, err := uuid.NewV4()
			if err == nil {
				reqID = id.String()
			}
		}

		c.Request.Header.Set(RequestIDHeader, reqID)
		c.Header(RequestIDHeader, reqID)
		c.Set(ContextRequestID, reqID)
		c.Next()
	}
}
