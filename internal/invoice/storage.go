package invoice

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage holds uploaded bill documents and the PDFs rendered from
// them, keyed by filename
type Storage interface {
	// Save stores a document and returns the path/filename under
	// which it can be fetched back
	Save(filename string, data []byte) (string, error)

	// Get retrieves a stored document by path
	Get(path string) ([]byte, error)

	// Delete removes a stored document
	Delete(path string) error
}

// LocalStorage keeps documents as files under a base directory, the
// default for single-host deployments
type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Save writes a document under the base directory
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return filename, nil
}

// Get reads a stored document back
func (l *LocalStorage) Get(path string) ([]byte, error) {
	fullPath := filepath.Join(l.basePath, path)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a stored document, used when a scan fails or an
// invoice is deleted
func (l *LocalStorage) Delete(path string) error {
	fullPath := filepath.Join(l.basePath, path)
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
