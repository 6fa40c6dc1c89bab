package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFileName is the file FileStore keeps its values in.
const DefaultFileName = "session.json"

// FileStore implements Store on top of a single JSON file
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a file-based store rooted at dir
func NewFileStore(dir string) (*FileStore, error) {
	// Create the directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	return &FileStore{
		path: filepath.Join(dir, DefaultFileName),
	}, nil
}

// Path returns the location of the backing file
func (fs *FileStore) Path() string {
	return fs.path
}

// Get reads key from the file
func (fs *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	values, err := fs.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Set writes key to the file
func (fs *FileStore) Set(_ context.Context, key, value string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	values, err := fs.read()
	if err != nil {
		return err
	}
	values[key] = value
	return fs.write(values)
}

// Clear removes the backing file
func (fs *FileStore) Clear(_ context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

func (fs *FileStore) read() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session file: %w", err)
	}
	return values, nil
}

// write replaces the file atomically so a crash never leaves half a record
func (fs *FileStore) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}

	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}
