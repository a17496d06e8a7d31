package smarthq

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Token is the identity provider's token response, persisted verbatim
// plus the acquisition timestamp. Expiry is always computed from
// AcquiredAt, so a process restart does not extend the token's
// lifetime.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresIn    int       `json:"expires_in"`
	AcquiredAt   time.Time `json:"acquired_at"`
}

// ExpiresAt returns the absolute expiry time.
func (t *Token) ExpiresAt() time.Time {
	return t.AcquiredAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// ExpiresWithin reports whether the token expires within d of now.
func (t *Token) ExpiresWithin(d time.Duration) bool {
	return time.Now().After(t.ExpiresAt().Add(-d))
}

// FileTokenStore persists the token pair as a single JSON file. The
// file's existence is the signal that authorization has completed at
// least once.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore creates a store backed by the file at path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Path returns the backing file path.
func (s *FileTokenStore) Path() string { return s.path }

// Exists reports whether a token file is present.
func (s *FileTokenStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the persisted token. A missing file is the normal
// never-authorized state and returns (nil, nil).
func (s *FileTokenStore) Load() (*Token, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	if tok.AcquiredAt.IsZero() {
		// File written by an older version without the acquisition
		// timestamp. Treat it as acquired now; the first AuthHeader
		// call past the margin refreshes anyway.
		tok.AcquiredAt = time.Now()
	}
	return &tok, nil
}

// Save overwrites the token file with the full record. Single-process
// workload, no concurrent writers assumed.
func (s *FileTokenStore) Save(tok *Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}
