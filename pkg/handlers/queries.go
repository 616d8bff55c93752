package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-flux/pkg/auth"
	"github.com/ekaya-inc/ekaya-flux/pkg/services"
)

// ExecuteQueryRequest for POST execute body.
type ExecuteQueryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// ValidateQueryRequest for POST validate body.
type ValidateQueryRequest struct {
	Query string `json:"query"`
}

// QueriesHandler handles Flux query HTTP requests.
type QueriesHandler struct {
	proxy  services.QueryProxy
	errors errorWriter
	logger *zap.Logger
}

// NewQueriesHandler creates a new queries handler.
func NewQueriesHandler(proxy services.QueryProxy, production bool, logger *zap.Logger) *QueriesHandler {
	return &QueriesHandler{
		proxy:  proxy,
		errors: errorWriter{production: production, logger: logger},
		logger: logger,
	}
}

// RegisterRoutes registers the queries handler's routes on the given mux.
func (h *QueriesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/query"

	mux.HandleFunc("POST "+base+"/execute", authMiddleware.RequireSession(h.Execute))
	mux.HandleFunc("POST "+base+"/validate", authMiddleware.RequireSession(h.Validate))
	mux.HandleFunc("GET "+base+"/templates", authMiddleware.RequireSession(h.Templates))
}

// Execute handles POST /api/query/execute
func (h *QueriesHandler) Execute(w http.ResponseWriter, r *http.Request) {
	creds, ok := auth.GetCredentials(r.Context())
	if !ok {
		h.errors.respond(w, http.StatusUnauthorized, "Invalid or expired session")
		return
	}

	var req ExecuteQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errors.respond(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.proxy.Execute(r.Context(), creds, req.Query, req.Limit)
	if err != nil {
		h.errors.write(w, err, http.StatusInternalServerError)
		return
	}

	h.logger.Debug("Query executed",
		zap.String("org", creds.Organization),
		zap.Int("rows", result.TotalRows))
	h.errors.ok(w, ApiResponse{Success: true, Data: result})
}

// Validate handles POST /api/query/validate. The envelope's success flag
// mirrors the validation verdict.
func (h *QueriesHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errors.respond(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.errors.respond(w, http.StatusBadRequest, "Query is required")
		return
	}

	result := services.ValidateQuery(req.Query)
	h.errors.ok(w, ApiResponse{Success: result.Valid, Data: result})
}

// Templates handles GET /api/query/templates
func (h *QueriesHandler) Templates(w http.ResponseWriter, r *http.Request) {
	templates, err := services.QueryTemplates()
	if err != nil {
		h.logger.Error("Failed to load query templates", zap.Error(err))
		h.errors.respond(w, http.StatusInternalServerError, "Failed to get query templates")
		return
	}
	h.errors.ok(w, ApiResponse{Success: true, Data: templates})
}
