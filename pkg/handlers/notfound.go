package handlers

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// NotFound answers every request no other route matched.
func NotFound(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		message := fmt.Sprintf("Route %s %s not found", r.Method, r.URL.Path)
		if err := ErrorResponse(w, http.StatusNotFound, message); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
	}
}
