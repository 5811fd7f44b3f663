package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
)

// TokenFile is a JSON-file backed TokenStore.
type TokenFile struct {
	path string
}

// NewTokenFile creates a TokenFile at path, creating parent directories as
// needed.
func NewTokenFile(path string) (*TokenFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return &TokenFile{path: path}, nil
}

// Load re-reads the token file on every call. A missing file, corrupt JSON,
// or a record without both tokens returns (nil, nil).
func (s *TokenFile) Load(_ context.Context) (*OAuth2Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, nil
	}
	var token OAuth2Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, nil
	}
	if token.AccessToken == "" || token.RefreshToken == "" {
		return nil, nil
	}
	return &token, nil
}

// Save overwrites the token file with the full record.
func (s *TokenFile) Save(_ context.Context, token *OAuth2Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
