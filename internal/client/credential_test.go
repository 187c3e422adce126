package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/amoylab/liveadmin/internal/common/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	creds := NewFileCredentials(path)
	assert.Equal(t, path, creds.Path())

	_, err := creds.Load()
	assert.ErrorIs(t, err, ErrNoCredential)

	require.NoError(t, creds.Save("  abc.def.ghi \n"))
	tok, err := creds.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", tok)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o600))
	_, err = creds.Load()
	assert.ErrorIs(t, err, ErrNoCredential)

	require.NoError(t, creds.Clear())
	require.NoError(t, creds.Clear())
	_, err = creds.Load()
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/base/api/auth/login", r.URL.Path)
		var req dto.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		if req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Invalid username or password"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(dto.LoginResponse{Token: "tok", User: &dto.UserInfo{ID: 1, Username: req.Username, Role: "admin"}})
	}))
	defer srv.Close()

	resp, err := Login(context.Background(), srv.Client(), srv.URL+"/base", "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok", resp.Token)
	assert.Equal(t, "alice", resp.User.Username)

	_, err = Login(context.Background(), srv.Client(), srv.URL+"/base", "alice", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid username or password")
}
