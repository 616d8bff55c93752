package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-flux/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-flux/pkg/models"
)

func TestQueriesHandler_Execute(t *testing.T) {
	tr := newTestRouter(t, false)
	tr.proxy.result = &models.QueryResult{
		Columns:       []string{"_time", "_value"},
		Rows:          []map[string]any{{"_time": "2026-01-01T00:00:00Z", "_value": 1.5}},
		TotalRows:     1,
		Query:         `from(bucket: "metrics") |> range(start: -1h) |> limit(n: 5)`,
		ExecutionTime: 1767225600000,
	}

	rec := tr.do(http.MethodPost, "/api/query/execute",
		`{"query":"from(bucket: \"metrics\") |> range(start: -1h)","limit":5}`, true)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decode(t, rec)
	assert.True(t, env.Success)

	var result models.QueryResult
	decodeData(t, env, &result)
	assert.Equal(t, []string{"_time", "_value"}, result.Columns)
	assert.Equal(t, 1, result.TotalRows)
	assert.Equal(t, int64(1767225600000), result.ExecutionTime)

	assert.Equal(t, 5, tr.proxy.lastLimit)
	assert.Equal(t, []string{`from(bucket: "metrics") |> range(start: -1h)`}, tr.proxy.lastArgs)
}

func TestQueriesHandler_Execute_Errors(t *testing.T) {
	t.Run("missing query", func(t *testing.T) {
		tr := newTestRouter(t, false)
		tr.proxy.err = apperrors.NewValidationError("Query is required")

		rec := tr.do(http.MethodPost, "/api/query/execute", `{}`, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Query is required", decode(t, rec).Error)
	})

	t.Run("upstream failure is 500 with classified text", func(t *testing.T) {
		tr := newTestRouter(t, false)
		tr.proxy.err = &apperrors.UpstreamError{
			Category: "bad-request",
			Message:  "Bad request. Please check your connection parameters.",
			Err:      errors.New(`400 Bad Request: compilation failed: error at @1:1-1:4: undefined identifier "frm"`),
		}

		rec := tr.do(http.MethodPost, "/api/query/execute", `{"query":"frm()"}`, true)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		env := decode(t, rec)
		assert.False(t, env.Success)
		assert.Equal(t, "Bad request. Please check your connection parameters.", env.Error)
	})

	t.Run("invalid body", func(t *testing.T) {
		tr := newTestRouter(t, false)

		rec := tr.do(http.MethodPost, "/api/query/execute", `[1,2`, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, tr.proxy.lastMethod)
	})

	t.Run("requires session", func(t *testing.T) {
		tr := newTestRouter(t, false)

		rec := tr.do(http.MethodPost, "/api/query/execute", `{"query":"buckets()"}`, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, tr.proxy.lastMethod)
	})
}

func TestQueriesHandler_Validate(t *testing.T) {
	tr := newTestRouter(t, false)

	rec := tr.do(http.MethodPost, "/api/query/validate",
		`{"query":"from(bucket: \"metrics\") |> range(start: -1h)"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.True(t, env.Success)

	var v models.QueryValidation
	decodeData(t, env, &v)
	assert.True(t, v.Valid)
	assert.Empty(t, v.Issues)

	rec = tr.do(http.MethodPost, "/api/query/validate", `{"query":"buckets()"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	env = decode(t, rec)
	assert.False(t, env.Success, "envelope mirrors the verdict")
	decodeData(t, env, &v)
	assert.False(t, v.Valid)
	assert.NotEmpty(t, v.Issues)
	assert.NotEmpty(t, v.Suggestions)
}

func TestQueriesHandler_Validate_MissingQuery(t *testing.T) {
	tr := newTestRouter(t, false)

	rec := tr.do(http.MethodPost, "/api/query/validate", `{"query":"  "}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Query is required", decode(t, rec).Error)
}

func TestQueriesHandler_Templates(t *testing.T) {
	tr := newTestRouter(t, false)

	rec := tr.do(http.MethodGet, "/api/query/templates", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var templates []models.QueryTemplate
	decodeData(t, decode(t, rec), &templates)
	require.NotEmpty(t, templates)
	for _, tpl := range templates {
		assert.NotEmpty(t, tpl.Name)
		assert.NotEmpty(t, tpl.Query)
	}

	rec = tr.do(http.MethodGet, "/api/query/templates", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
