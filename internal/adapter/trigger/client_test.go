package trigger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimeStatusForwardsCredential(t *testing.T) {
	sa := json.RawMessage(`{"project_id":"acme-prod","client_email":"a@b"}`)
	var gotCredential, gotProject string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/prime-status", r.URL.Path)
		gotCredential = r.URL.Query().Get("credential")
		gotProject = r.URL.Query().Get("project_id")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"completed"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "5s")
	result, err := client.PrimeStatus(context.Background(), sa, "acme-prod")
	require.NoError(t, err)
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, "acme-prod", gotProject)

	decoded, err := base64.StdEncoding.DecodeString(gotCredential)
	require.NoError(t, err)
	assert.JSONEq(t, string(sa), string(decoded))
}

func TestPrimeStatusUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "5s")
	_, err := client.PrimeStatus(context.Background(), json.RawMessage(`{}`), "p")
	assert.Error(t, err)
}
