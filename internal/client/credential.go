package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/amoylab/liveadmin/internal/common/dto"
)

// ErrNoCredential is returned when no token has been stored yet
var ErrNoCredential = errors.New("no stored credential, run login first")

// FileCredentials stores the bearer token in a file readable only by the owner.
// Load re-reads the file, so a fresh login is picked up by the next reconnect.
type FileCredentials struct {
	path string
}

var _ CredentialSource = (*FileCredentials)(nil)

func NewFileCredentials(path string) *FileCredentials {
	return &FileCredentials{path: path}
}

func (f *FileCredentials) Path() string { return f.path }

// Load implements CredentialSource.Load
func (f *FileCredentials) Load() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoCredential
		}
		return "", fmt.Errorf("read credential: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

func (f *FileCredentials) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(strings.TrimSpace(token)+"\n"), 0o600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	return nil
}

// Clear removes the stored token; a missing file is not an error
func (f *FileCredentials) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Login exchanges a username and password for a bearer token via the REST API
func Login(ctx context.Context, httpClient *http.Client, serverURL, username, password string) (*dto.LoginResponse, error) {
	endpoint, err := url.JoinPath(strings.TrimSpace(serverURL), "/api/auth/login")
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	body, err := json.Marshal(dto.LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return nil, fmt.Errorf("login failed: %s", apiErr.Error)
	}

	var out dto.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	if out.Token == "" {
		return nil, errors.New("login failed: empty token")
	}
	return &out, nil
}
