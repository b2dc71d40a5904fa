package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Detail    string      `json:"detail"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response and aborts the chain.
func RespondWithError(c *gin.Context, statusCode int, errorCode, detail string, details interface{}) {
	c.AbortWithStatusJSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Detail:    detail,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, errorCode, detail string) {
	RespondWithError(c, http.StatusBadRequest, errorCode, detail, nil)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, detail string) {
	RespondWithError(c, http.StatusNotFound, "not_found", detail, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, errorCode, detail string) {
	RespondWithError(c, http.StatusInternalServerError, errorCode, detail, nil)
}
