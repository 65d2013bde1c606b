package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Dispatch(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody dispatchRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret")
	err := c.Dispatch(context.Background(), "nightly-extract", map[string]any{"batch_size": float64(500)}, "trig-1")
	require.NoError(t, err)

	assert.Equal(t, "/v1/jobs/nightly-extract/trig-1", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, float64(500), gotBody.Parameters["batch_size"])
}

func TestHTTPClient_Dispatch_NonSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	err := c.Dispatch(context.Background(), "nightly-extract", nil, "trig-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPClient_QueryStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/executions/trig-2/status", r.URL.Path)
		json.NewEncoder(w).Encode(Status{Status: "RUNNING", ProgressPercentage: 40})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	st, err := c.QueryStatus(context.Background(), "trig-2")
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", st.Status)
	assert.Equal(t, 40, st.ProgressPercentage)
}

func TestHTTPClient_QueryStatus_Unknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, err := c.QueryStatus(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown to worker")
}

func TestHTTPClient_Stop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/executions/trig-3/stop", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	require.NoError(t, c.Stop(context.Background(), "trig-3"))
}

func TestHTTPClient_Health_Unreachable(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", "")
	err := c.Health(context.Background())
	require.Error(t, err)
}
