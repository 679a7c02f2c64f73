package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDKey = "request_id"

// RequestIDHeader is the header that carries the request id in both
// directions. An incoming value is honored so proxies can correlate.
const RequestIDHeader = "X-Request-ID"

// RequestID returns a gin middleware that tags every request with an id
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// RequestIDFromContext returns the request id set by RequestID, or ""
func RequestIDFromContext(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
