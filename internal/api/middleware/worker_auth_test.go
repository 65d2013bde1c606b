package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func callWorkerAuth(token, header string) *httptest.ResponseRecorder {
	handler := WorkerAuth(token)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest("POST", "/internal/v1/events", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	return rec
}

func TestWorkerAuth_ValidToken(t *testing.T) {
	rec := callWorkerAuth("secret", "Bearer secret")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWorkerAuth_WrongToken(t *testing.T) {
	rec := callWorkerAuth("secret", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWorkerAuth_MissingHeader(t *testing.T) {
	rec := callWorkerAuth("secret", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWorkerAuth_NotBearerScheme(t *testing.T) {
	rec := callWorkerAuth("secret", "Basic c2VjcmV0")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWorkerAuth_EmptyConfiguredTokenDisablesCheck(t *testing.T) {
	rec := callWorkerAuth("", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
