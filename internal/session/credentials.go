package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileCredentialStore keeps the opaque credential blob in a single file.
type FileCredentialStore struct {
	path string
}

// NewFileCredentialStore stores credentials at path, creating parent
// directories on first save.
func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

func (f *FileCredentialStore) Save(creds []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, creds, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace credentials: %w", err)
	}
	return nil
}

func (f *FileCredentialStore) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

// Load returns the stored blob, or ok=false when no credentials exist.
func (f *FileCredentialStore) Load() ([]byte, bool, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read credentials: %w", err)
	}
	return b, true, nil
}
