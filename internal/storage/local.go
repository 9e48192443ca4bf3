package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local implements Store using a directory on local disk. Mirrored artifacts
// are served by the API itself under baseURL.
type Local struct {
	dir     string
	baseURL string
}

// NewLocal creates a Local store rooted at dir. If dir is empty a directory
// under os.TempDir() is used. The directory is created if it doesn't exist.
// baseURL is the public prefix mirrored files are served from.
func NewLocal(dir, baseURL string) (*Local, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "clipmaster")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	return &Local{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Dir returns the storage directory path.
func (s *Local) Dir() string {
	return s.dir
}

// Save writes data to dir/key and returns the serving URL.
func (s *Local) Save(ctx context.Context, key string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	dest := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create artifact file: %w", err)
	}

	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return "", fmt.Errorf("write artifact file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("close artifact file: %w", err)
	}

	return s.baseURL + "/" + key, nil
}
