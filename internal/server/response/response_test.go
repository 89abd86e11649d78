package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/seatwatch/pkg/errors"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestOK(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]int{"count": 2})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	resp := decode(t, rec)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"count": float64(2)}, resp.Data)
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"not found", errors.NewNotFoundError("profile", "alice"), http.StatusNotFound, CodeNotFound},
		{"validation", &errors.ValidationError{Field: "scope", Message: "unknown scope"}, http.StatusBadRequest, CodeBadRequest},
		{"wrapped not found", errors.WrapStore("read", "profile", "alice", errors.NewNotFoundError("profile", "alice")), http.StatusNotFound, CodeNotFound},
		{"upstream down", errors.NewFetchError("202508", "CMSC", 503, "down"), http.StatusServiceUnavailable, CodeUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			FromError(rec, tt.err)
			assert.Equal(t, tt.code, rec.Code)
			resp := decode(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.kind, resp.Error.Code)
		})
	}
}

func TestInternalErrorHidesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	InternalError(rec, errors.New("database password is hunter2"))
	assert.NotContains(t, rec.Body.String(), "hunter2")
}
