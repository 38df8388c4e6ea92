package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/taxgen/internal/schema"
)

// FileStore keeps each case at <dir>/<domain>/<domain>.json.
type FileStore struct {
	dir string
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns the file a domain's case is stored in.
func (s *FileStore) Path(domain string) string {
	return filepath.Join(s.dir, domain, domain+".json")
}

func (s *FileStore) Exists(_ context.Context, domain string) (bool, error) {
	if err := validateDomain(domain); err != nil {
		return false, err
	}
	_, err := os.Stat(s.Path(domain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("store: stat %s: %w", s.Path(domain), err)
	}
}

func (s *FileStore) Load(_ context.Context, domain string) (*schema.Case, error) {
	if err := validateDomain(domain); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.Path(domain))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, domain)
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", s.Path(domain), err)
	}
	c, err := schema.UnmarshalCase(b)
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", s.Path(domain), err)
	}
	return c, nil
}

// Save writes through a temp file and rename so a crash never leaves a
// truncated case behind.
func (s *FileStore) Save(_ context.Context, c *schema.Case) (string, error) {
	if c == nil {
		return "", fmt.Errorf("store: nil case")
	}
	if err := validateDomain(c.Domain); err != nil {
		return "", err
	}
	b, err := schema.MarshalCase(c)
	if err != nil {
		return "", err
	}
	path := s.Path(c.Domain)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+c.Domain+"-*.json")
	if err != nil {
		return "", fmt.Errorf("store: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return "", fmt.Errorf("store: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("store: close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("store: rename to %s: %w", path, err)
	}
	return path, nil
}
