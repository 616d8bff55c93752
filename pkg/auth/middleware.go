package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-flux/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-flux/pkg/models"
)

// Authenticator resolves a session token to its live session.
type Authenticator interface {
	Authenticate(token string) (*models.SessionRecord, error)
}

// Middleware provides HTTP session authentication.
// It is thin and delegates session lookup to an Authenticator.
type Middleware struct {
	authenticator Authenticator
	logger        *zap.Logger
}

// NewMiddleware creates a new auth middleware backed by authenticator.
func NewMiddleware(authenticator Authenticator, logger *zap.Logger) *Middleware {
	return &Middleware{
		authenticator: authenticator,
		logger:        logger,
	}
}

// ExtractBearerToken returns the token of an "Authorization: Bearer <token>" header.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apperrors.ErrMissingAuthorization
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", apperrors.ErrMissingAuthorization
	}
	return parts[1], nil
}

// RequireSession authenticates the bearer token and stores the session in the
// request context. Authenticating slides the session's expiry.
func (m *Middleware) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := ExtractBearerToken(r)
		if err != nil {
			m.unauthorized(w, "Missing or invalid authorization header")
			return
		}

		rec, err := m.authenticator.Authenticate(token)
		if err != nil {
			m.logger.Debug("Rejected session token", zap.String("path", r.URL.Path))
			m.unauthorized(w, "Invalid or expired session")
			return
		}

		next(w, r.WithContext(WithSession(r.Context(), rec)))
	}
}

// unauthorized returns a 401 response in the standard envelope.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}
