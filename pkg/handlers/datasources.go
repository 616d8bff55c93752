package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-flux/pkg/auth"
	"github.com/ekaya-inc/ekaya-flux/pkg/models"
	"github.com/ekaya-inc/ekaya-flux/pkg/services"
)

// DatasourceHandler exposes schema browsing of the session's InfluxDB.
type DatasourceHandler struct {
	proxy  services.QueryProxy
	errors errorWriter
	logger *zap.Logger
}

// NewDatasourceHandler creates a new datasource handler.
func NewDatasourceHandler(proxy services.QueryProxy, production bool, logger *zap.Logger) *DatasourceHandler {
	return &DatasourceHandler{
		proxy:  proxy,
		errors: errorWriter{production: production, logger: logger},
		logger: logger,
	}
}

// RegisterRoutes registers the datasource handler's routes on the given mux.
func (h *DatasourceHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/datasource/buckets"

	mux.HandleFunc("GET "+base, authMiddleware.RequireSession(h.ListBuckets))
	mux.HandleFunc("GET "+base+"/{bucket}/measurements", authMiddleware.RequireSession(h.ListMeasurements))
	mux.HandleFunc("GET "+base+"/{bucket}/measurements/{measurement}/fields", authMiddleware.RequireSession(h.ListFields))
	mux.HandleFunc("GET "+base+"/{bucket}/measurements/{measurement}/tags", authMiddleware.RequireSession(h.ListTags))
}

// ListBuckets handles GET /api/datasource/buckets
func (h *DatasourceHandler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.credentials(w, r)
	if !ok {
		return
	}

	buckets, err := h.proxy.ListBuckets(r.Context(), creds)
	if err != nil {
		h.errors.write(w, err, http.StatusInternalServerError)
		return
	}
	if buckets == nil {
		buckets = []models.Bucket{}
	}
	h.errors.ok(w, ApiResponse{Success: true, Data: buckets})
}

// ListMeasurements handles GET /api/datasource/buckets/{bucket}/measurements
func (h *DatasourceHandler) ListMeasurements(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.credentials(w, r)
	if !ok {
		return
	}

	names, err := h.proxy.ListMeasurements(r.Context(), creds, r.PathValue("bucket"))
	h.writeNames(w, names, err)
}

// ListFields handles GET /api/datasource/buckets/{bucket}/measurements/{measurement}/fields
func (h *DatasourceHandler) ListFields(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.credentials(w, r)
	if !ok {
		return
	}

	names, err := h.proxy.ListFieldKeys(r.Context(), creds, r.PathValue("bucket"), r.PathValue("measurement"))
	h.writeNames(w, names, err)
}

// ListTags handles GET /api/datasource/buckets/{bucket}/measurements/{measurement}/tags
func (h *DatasourceHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.credentials(w, r)
	if !ok {
		return
	}

	names, err := h.proxy.ListTagKeys(r.Context(), creds, r.PathValue("bucket"), r.PathValue("measurement"))
	h.writeNames(w, names, err)
}

func (h *DatasourceHandler) writeNames(w http.ResponseWriter, names []string, err error) {
	if err != nil {
		h.errors.write(w, err, http.StatusInternalServerError)
		return
	}
	if names == nil {
		names = []string{}
	}
	h.errors.ok(w, ApiResponse{Success: true, Data: names})
}

func (h *DatasourceHandler) credentials(w http.ResponseWriter, r *http.Request) (models.Credentials, bool) {
	creds, ok := auth.GetCredentials(r.Context())
	if !ok {
		h.errors.respond(w, http.StatusUnauthorized, "Invalid or expired session")
	}
	return creds, ok
}
