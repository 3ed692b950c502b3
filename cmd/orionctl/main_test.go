package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide_PostsToCorrectVerbAndPath(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"decision":"approve"}`))
	}))
	defer srv.Close()

	flags := &rootFlags{addr: srv.URL, identity: "orion-admin"}
	err := decide(flags, "approve", "req-123", "confirmed with on-call", false, false)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/approvals/approve/req-123", gotPath)
	assert.Equal(t, "orion-admin", gotBody["admin_identity"])
	assert.Equal(t, "confirmed with on-call", gotBody["reason"])
}

func TestDoRequest_NonOKStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "request not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := doRequest(http.MethodGet, srv.URL+"/approvals/pending", nil)
	assert.Error(t, err)
}

func TestDoRequest_SuccessReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	body, err := doRequest(http.MethodGet, srv.URL+"/approvals/pending", nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
}

func TestNewRootCommand_DefaultsIdentityFromEnv(t *testing.T) {
	t.Setenv("ORIONCTL_IDENTITY", "env-admin")
	cmd := newRootCommand()
	identityFlag := cmd.PersistentFlags().Lookup("identity")
	require.NotNil(t, identityFlag)
	assert.Equal(t, "env-admin", identityFlag.DefValue)
}
