package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Session is the persisted sign-in state, so CLI invocations and daemon
// restarts keep acting as the same user until an explicit sign-out.
type Session struct {
	UserID   string    `yaml:"user_id"`
	SignedIn time.Time `yaml:"signed_in"`
}

// LoadSession reads the persisted session. A missing file means signed out
// and returns (nil, nil).
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	if s.UserID == "" {
		return nil, nil
	}
	return &s, nil
}

// SaveSession persists the session.
func SaveSession(path string, s *Session) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// ClearSession removes the persisted session. Idempotent.
func ClearSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
