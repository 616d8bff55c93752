package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-flux/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-flux/pkg/auth"
	"github.com/ekaya-inc/ekaya-flux/pkg/models"
	"github.com/ekaya-inc/ekaya-flux/pkg/services"
)

// ConnectRequest is the POST /api/auth/connect body. Org is accepted as an
// alias of Organization.
type ConnectRequest struct {
	URL          string `json:"url"`
	Token        string `json:"token"`
	Organization string `json:"organization"`
	Org          string `json:"org,omitempty"`
}

// ConnectResponse is returned on a successful connect.
type ConnectResponse struct {
	Success      bool            `json:"success"`
	SessionToken string          `json:"sessionToken"`
	User         models.UserInfo `json:"user"`
}

// SessionStatusResponse describes the caller's session.
type SessionStatusResponse struct {
	SessionID      string    `json:"sessionId"`
	Org            string    `json:"org"`
	URL            string    `json:"url"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
}

// RefreshResponse carries the refreshed access time.
type RefreshResponse struct {
	LastAccessedAt time.Time `json:"lastAccessedAt"`
}

// ConnectionInfoResponse is returned by GET /api/auth/info.
type ConnectionInfoResponse struct {
	Org       string `json:"org"`
	URL       string `json:"url"`
	Connected bool   `json:"connected"`
	// SessionAge is milliseconds since the session was created.
	SessionAge int64 `json:"sessionAge"`
}

// AuthHandler handles session lifecycle HTTP requests.
type AuthHandler struct {
	gateway services.AuthGateway
	errors  errorWriter
	now     func() time.Time
	logger  *zap.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(gateway services.AuthGateway, production bool, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		gateway: gateway,
		errors:  errorWriter{production: production, logger: logger},
		now:     time.Now,
		logger:  logger,
	}
}

// RegisterRoutes registers the auth handler's routes on the given mux.
// connectGuard, when non-nil, wraps the unauthenticated connect route.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, connectGuard func(http.HandlerFunc) http.HandlerFunc) {
	connect := http.HandlerFunc(h.Connect)
	if connectGuard != nil {
		connect = connectGuard(connect)
	}

	mux.HandleFunc("POST /api/auth/connect", connect)
	mux.HandleFunc("GET /api/auth/status", authMiddleware.RequireSession(h.Status))
	mux.HandleFunc("POST /api/auth/refresh", authMiddleware.RequireSession(h.Refresh))
	mux.HandleFunc("POST /api/auth/logout", authMiddleware.RequireSession(h.Logout))
	mux.HandleFunc("GET /api/auth/info", authMiddleware.RequireSession(h.Info))
}

// Connect handles POST /api/auth/connect
func (h *AuthHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errors.respond(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Organization == "" {
		req.Organization = req.Org
	}

	result, err := h.gateway.Connect(r.Context(), services.ConnectRequest{
		URL:          req.URL,
		Token:        req.Token,
		Organization: req.Organization,
	})
	if err != nil {
		if apperrors.IsValidation(err) || isUpstream(err) {
			h.errors.write(w, err, http.StatusUnauthorized)
			return
		}
		h.logger.Error("Connect failed unexpectedly", zap.Error(err))
		h.errors.respond(w, http.StatusInternalServerError, services.MsgConnectFailure)
		return
	}

	h.errors.ok(w, ConnectResponse{
		Success:      true,
		SessionToken: result.SessionToken,
		User:         result.User,
	})
}

// Status handles GET /api/auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.session(w, r)
	if !ok {
		return
	}

	h.errors.ok(w, ApiResponse{Success: true, Data: SessionStatusResponse{
		SessionID:      rec.ID,
		Org:            rec.Credentials.Organization,
		URL:            rec.Credentials.URL,
		CreatedAt:      rec.CreatedAt,
		LastAccessedAt: rec.LastAccessedAt,
	}})
}

// Refresh handles POST /api/auth/refresh. Authentication already slid the
// session's expiry, so this only reports the new access time.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.session(w, r)
	if !ok {
		return
	}

	h.errors.ok(w, ApiResponse{
		Success: true,
		Message: "Session refreshed successfully",
		Data:    RefreshResponse{LastAccessedAt: rec.LastAccessedAt},
	})
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.ExtractBearerToken(r)

	message := "Session not found"
	if h.gateway.Logout(token) {
		message = "Logged out successfully"
	}
	h.errors.ok(w, ApiResponse{Success: true, Message: message})
}

// Info handles GET /api/auth/info
func (h *AuthHandler) Info(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.session(w, r)
	if !ok {
		return
	}

	h.errors.ok(w, ApiResponse{Success: true, Data: ConnectionInfoResponse{
		Org:        rec.Credentials.Organization,
		URL:        rec.Credentials.URL,
		Connected:  true,
		SessionAge: h.now().Sub(rec.CreatedAt).Milliseconds(),
	}})
}

func (h *AuthHandler) session(w http.ResponseWriter, r *http.Request) (*models.SessionRecord, bool) {
	rec, ok := auth.GetSession(r.Context())
	if !ok {
		h.errors.respond(w, http.StatusUnauthorized, "Invalid or expired session")
		return nil, false
	}
	return rec, true
}

func isUpstream(err error) bool {
	_, ok := apperrors.AsUpstream(err)
	return ok
}
