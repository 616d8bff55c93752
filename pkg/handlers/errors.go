package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-flux/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-flux/pkg/logging"
)

const internalErrorMessage = "Internal server error"

// errorWriter translates service errors into HTTP envelopes.
type errorWriter struct {
	production bool
	logger     *zap.Logger
}

// write maps err onto the response: validation failures are 400, classified
// upstream failures use upstreamStatus, everything else is a 500 whose detail
// is hidden in production.
func (e errorWriter) write(w http.ResponseWriter, err error, upstreamStatus int) {
	status, message := e.classify(err, upstreamStatus)
	if status == http.StatusInternalServerError {
		if _, ok := apperrors.AsUpstream(err); !ok {
			e.logger.Error("Unexpected error", zap.String("error", logging.SanitizeError(err)))
		}
	}
	e.respond(w, status, message)
}

func (e errorWriter) classify(err error, upstreamStatus int) (int, string) {
	if apperrors.IsValidation(err) {
		return http.StatusBadRequest, err.Error()
	}
	if u, ok := apperrors.AsUpstream(err); ok {
		return upstreamStatus, u.Message
	}
	if e.production {
		return http.StatusInternalServerError, internalErrorMessage
	}
	return http.StatusInternalServerError, logging.SanitizeError(err)
}

func (e errorWriter) respond(w http.ResponseWriter, status int, message string) {
	if err := ErrorResponse(w, status, message); err != nil {
		e.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (e errorWriter) ok(w http.ResponseWriter, resp any) {
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		e.logger.Error("Failed to write response", zap.Error(err))
	}
}
