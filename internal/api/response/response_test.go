package response_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/tenantcore/internal/api/response"
	"github.com/kiranshivaraju/tenantcore/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, map[string]string{"name": "test"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "test", data["name"])
}

func TestCreated(t *testing.T) {
	w := httptest.NewRecorder()
	response.Created(w, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "abc", data["id"])
}

func TestNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	response.NoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestCollection(t *testing.T) {
	w := httptest.NewRecorder()
	items := []map[string]string{{"id": "1"}, {"id": "2"}}
	meta := response.PaginationMeta{Page: 1, Limit: 20, Total: 50, HasNext: true}

	response.Collection(w, items, meta)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	data := body["data"].([]any)
	assert.Len(t, data, 2)

	m := body["meta"].(map[string]any)
	assert.Equal(t, float64(1), m["page"])
	assert.Equal(t, float64(20), m["limit"])
	assert.Equal(t, float64(50), m["total"])
	assert.Equal(t, true, m["has_next"])
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid params", map[string][]string{
		"service": {"service is required"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	errObj := body["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
	assert.Equal(t, "Invalid params", errObj["message"])
	assert.NotNil(t, errObj["details"])
}

func TestError_NoDetails(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Not found", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	errObj := body["error"].(map[string]any)
	assert.Equal(t, "RESOURCE_NOT_FOUND", errObj["code"])
	_, hasDetails := errObj["details"]
	assert.False(t, hasDetails)
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &service.ValidationError{Fields: map[string]string{"name": "is required"}}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"wrapped validation", fmt.Errorf("register: %w", &service.ValidationError{Fields: map[string]string{"domain": "is taken"}}), http.StatusBadRequest, "VALIDATION_FAILED"},
		{"invalid credential", service.ErrInvalidCredential, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"not found", fmt.Errorf("tenant: %w", service.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"forbidden", fmt.Errorf("regenerate: %w", service.ErrForbidden), http.StatusForbidden, "FORBIDDEN"},
		{"conflict", fmt.Errorf("tenant is still referenced: %w", service.ErrConflict), http.StatusConflict, "CONFLICT"},
		{"field conflict", &service.ConflictError{Field: "domain", Reason: "is already taken"}, http.StatusConflict, "CONFLICT"},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			response.FromError(w, httptest.NewRequest("GET", "/api/v1/tenants", nil), tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, tt.wantCode, errObj["code"])
		})
	}
}

func TestFromError_ValidationDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := &service.ValidationError{Fields: map[string]string{"email": "must be a valid email"}}
	response.FromError(w, httptest.NewRequest("POST", "/api/v1/users", nil), err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "must be a valid email", details["email"])
}

func TestFromError_HidesInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	response.FromError(w, httptest.NewRequest("GET", "/", nil), errors.New("pq: password authentication failed"))

	assert.NotContains(t, w.Body.String(), "password authentication")
}

func TestFromError_ConflictDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := fmt.Errorf("provision: %w", &service.ConflictError{Field: "domain", Reason: "is already taken"})
	response.FromError(w, httptest.NewRequest("POST", "/api/v1/tenants", nil), err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "provision: domain is already taken", errObj["message"])
	assert.Equal(t, "is already taken", errObj["details"].(map[string]any)["domain"])
}
