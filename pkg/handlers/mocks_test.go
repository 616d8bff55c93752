package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-flux/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-flux/pkg/auth"
	"github.com/ekaya-inc/ekaya-flux/pkg/models"
	"github.com/ekaya-inc/ekaya-flux/pkg/services"
)

const testSessionToken = "4f1c2f0e-8a1e-4c54-9a55-2f4b8f7b4d11"

var testCreatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testSession() *models.SessionRecord {
	return &models.SessionRecord{
		ID: testSessionToken,
		Credentials: models.Credentials{
			URL:          "http://influx:8086",
			Token:        "influx-api-token-value",
			Organization: "acme",
		},
		CreatedAt:      testCreatedAt,
		LastAccessedAt: testCreatedAt.Add(5 * time.Minute),
	}
}

// mockGateway is a mock implementation of services.AuthGateway.
type mockGateway struct {
	connectErr  error
	connectReqs []services.ConnectRequest
	sessions    map[string]*models.SessionRecord
	loggedOut   []string
}

var _ services.AuthGateway = (*mockGateway)(nil)

func newMockGateway() *mockGateway {
	return &mockGateway{sessions: map[string]*models.SessionRecord{testSessionToken: testSession()}}
}

func (m *mockGateway) Connect(ctx context.Context, req services.ConnectRequest) (*services.ConnectResult, error) {
	m.connectReqs = append(m.connectReqs, req)
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	return &services.ConnectResult{
		SessionToken: testSessionToken,
		User: models.UserInfo{
			Org:         req.Organization,
			URL:         req.URL,
			Permissions: models.DefaultPermissions,
		},
	}, nil
}

func (m *mockGateway) Authenticate(token string) (*models.SessionRecord, error) {
	rec, ok := m.sessions[token]
	if !ok {
		return nil, apperrors.ErrInvalidSession
	}
	return rec, nil
}

func (m *mockGateway) Logout(token string) bool {
	m.loggedOut = append(m.loggedOut, token)
	_, ok := m.sessions[token]
	delete(m.sessions, token)
	return ok
}

// mockProxy is a mock implementation of services.QueryProxy.
type mockProxy struct {
	buckets []models.Bucket
	names   []string
	result  *models.QueryResult
	err     error

	lastCreds  models.Credentials
	lastArgs   []string
	lastLimit  int
	lastMethod string
}

var _ services.QueryProxy = (*mockProxy)(nil)

func (m *mockProxy) record(method string, creds models.Credentials, args ...string) {
	m.lastMethod = method
	m.lastCreds = creds
	m.lastArgs = args
}

func (m *mockProxy) TestConnection(ctx context.Context, creds models.Credentials) error {
	m.record("TestConnection", creds)
	return m.err
}

func (m *mockProxy) Execute(ctx context.Context, creds models.Credentials, query string, limit int) (*models.QueryResult, error) {
	m.record("Execute", creds, query)
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockProxy) ListBuckets(ctx context.Context, creds models.Credentials) ([]models.Bucket, error) {
	m.record("ListBuckets", creds)
	return m.buckets, m.err
}

func (m *mockProxy) ListMeasurements(ctx context.Context, creds models.Credentials, bucket string) ([]string, error) {
	m.record("ListMeasurements", creds, bucket)
	return m.names, m.err
}

func (m *mockProxy) ListFieldKeys(ctx context.Context, creds models.Credentials, bucket, measurement string) ([]string, error) {
	m.record("ListFieldKeys", creds, bucket, measurement)
	return m.names, m.err
}

func (m *mockProxy) ListTagKeys(ctx context.Context, creds models.Credentials, bucket, measurement string) ([]string, error) {
	m.record("ListTagKeys", creds, bucket, measurement)
	return m.names, m.err
}

// testRouter wires every API handler onto one mux the way the server does.
type testRouter struct {
	mux     *http.ServeMux
	gateway *mockGateway
	proxy   *mockProxy
}

func newTestRouter(t *testing.T, production bool) *testRouter {
	t.Helper()
	logger := zap.NewNop()
	gateway := newMockGateway()
	proxy := &mockProxy{}
	authMiddleware := auth.NewMiddleware(gateway, logger)

	mux := http.NewServeMux()
	NewAuthHandler(gateway, production, logger).RegisterRoutes(mux, authMiddleware, nil)
	NewDatasourceHandler(proxy, production, logger).RegisterRoutes(mux, authMiddleware)
	NewQueriesHandler(proxy, production, logger).RegisterRoutes(mux, authMiddleware)
	mux.HandleFunc("/", NotFound(logger))

	return &testRouter{mux: mux, gateway: gateway, proxy: proxy}
}

func (tr *testRouter) do(method, path, body string, authed bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testSessionToken)
	}
	rec := httptest.NewRecorder()
	tr.mux.ServeHTTP(rec, req)
	return rec
}

// envelope decodes the standard response with Data left raw.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func decodeData(t *testing.T, env envelope, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func nopLogger() *zap.Logger { return zap.NewNop() }

func withTestSession(r *http.Request) context.Context {
	return auth.WithSession(r.Context(), testSession())
}
