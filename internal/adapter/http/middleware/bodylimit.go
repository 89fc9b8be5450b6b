package middleware

import (
	"net/http"

	"metacoin-ledger/pkg/apperror"
	"metacoin-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// MaxBodySize returns middleware that limits the request body size.
// Requests declaring a larger Content-Length are rejected up front; otherwise
// the reader fails once the limit is exceeded and binding reports 413.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			response.Abort(c, apperror.ErrPayloadTooLarge())
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
