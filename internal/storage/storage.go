// Package storage provides object storage for uploaded evidence files and
// raw market ingestion payloads.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectStore persists opaque blobs under generated keys.
type ObjectStore interface {
	// Put stores the reader's contents and returns the storage key.
	Put(prefix, filename string, r io.Reader) (string, error)
	// Get opens a stored object. The caller closes it.
	Get(key string) (io.ReadCloser, error)
}

// LocalStore implements ObjectStore on the local filesystem.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Put writes the blob under prefix/date/uuid-filename.
func (s *LocalStore) Put(prefix, filename string, r io.Reader) (string, error) {
	safe := sanitizeFilename(filename)
	key := filepath.ToSlash(filepath.Join(
		prefix,
		time.Now().UTC().Format("2006-01-02"),
		uuid.NewString()+"-"+safe,
	))

	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create object file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	return key, nil
}

// Get opens a stored object by key.
func (s *LocalStore) Get(key string) (io.ReadCloser, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("invalid storage key %q", key)
	}
	f, err := os.Open(filepath.Join(s.root, clean))
	if err != nil {
		return nil, fmt.Errorf("failed to open object %s: %w", key, err)
	}
	return f, nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." {
		name = "upload"
	}
	return name
}
