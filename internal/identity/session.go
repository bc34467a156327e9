package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SessionFile persists the signed-in user between processes.
// An empty path disables persistence.
type SessionFile struct {
	path string
}

type sessionData struct {
	User *User `json:"user"`
}

// NewSessionFile returns a session stored at path.
func NewSessionFile(path string) *SessionFile {
	return &SessionFile{path: path}
}

// Load returns the persisted user, or nil when there is no session.
func (s *SessionFile) Load() (*User, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var sd sessionData
	if err := json.Unmarshal(data, &sd); err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sd.User, nil
}

// Save persists u, replacing any previous session.
func (s *SessionFile) Save(u *User) error {
	if s == nil || s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(sessionData{User: u}, "", "  ")
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear removes the persisted session.
func (s *SessionFile) Clear() error {
	if s == nil || s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
