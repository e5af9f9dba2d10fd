package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/workboard/workboard/internal/auth"
)

// RespondError aborts the request with the status and body for err.
// Domain errors keep their message; anything else is logged and reported as
// a generic 500 so store details never reach the client.
func RespondError(c *gin.Context, err error) {
	var domainErr *auth.Error
	if !errors.As(err, &domainErr) {
		domainErr = auth.InternalError("unhandled", err)
	}

	status := domainErr.StatusCode()
	if status >= http.StatusInternalServerError {
		requestID, _ := c.Get(RequestIDKey)
		slog.ErrorContext(c.Request.Context(), "request failed",
			"error", err,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", requestID,
		)
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error": domainErr.Message,
		"kind":  domainErr.Kind,
	})
}
