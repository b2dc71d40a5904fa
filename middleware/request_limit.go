package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tgautier-sma/ai-llama/utils"
)

// RequestSizeLimit rejects bodies larger than maxSize, whether announced by
// Content-Length or discovered while reading.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge,
				"request_too_large",
				"Request body exceeds maximum size",
				gin.H{
					"max_size":    maxSize,
					"received":    c.Request.ContentLength,
					"max_size_mb": maxSize / (1024 * 1024),
				})
			return
		}

		// Multipart overhead on top of the file itself.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+1<<20)
		c.Next()
	}
}
