package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readyStatus(t *testing.T, r chi.Router) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	return rec
}

func TestReadinessReflectsRegisteredChecks(t *testing.T) {
	h := New("test")
	r := chi.NewRouter()
	h.Register(r)

	// No checks registered: ready by default.
	require.Equal(t, http.StatusOK, readyStatus(t, r).Code)

	h.RegisterCheck("trust_topic", func() error { return nil })
	rec := readyStatus(t, r)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"trust_topic":"up"`)

	h.RegisterCheck("trust_topic", func() error { return errors.New("collect stalled") })
	rec = readyStatus(t, r)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_ready")
	assert.Contains(t, rec.Body.String(), "collect stalled")
}
