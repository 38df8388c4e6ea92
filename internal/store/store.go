// Package store persists accepted cases, one per domain. The store is the
// authority on whether a domain has already been generated.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/taxgen/internal/schema"
)

// ErrNotFound is returned by Load when no case exists for a domain.
var ErrNotFound = errors.New("store: case not found")

// Store is the persisted case store.
type Store interface {
	Exists(ctx context.Context, domain string) (bool, error)
	Load(ctx context.Context, domain string) (*schema.Case, error)
	// Save writes c under c.Domain, replacing any existing case, and returns
	// where it was written.
	Save(ctx context.Context, c *schema.Case) (string, error)
}

// Config selects and configures a Store implementation.
type Config struct {
	Type       string // file, sqlite, s3, memory
	Dir        string
	SQLitePath string
	S3Bucket   string
	S3Region   string
	S3Prefix   string
	// AWSAccessKey and AWSSecretKey are optional; the default AWS credential
	// chain is used when they are empty.
	AWSAccessKey string
	AWSSecretKey string
}

// DefaultDir is the file store root used when Config.Dir is empty.
const DefaultDir = "data/generated"

// New builds the Store described by cfg. Persistent stores are fronted by an
// in-memory layer.
func New(ctx context.Context, cfg Config) (Store, error) {
	var (
		persistent Store
		err        error
	)
	switch strings.ToLower(cfg.Type) {
	case "", "file":
		dir := cfg.Dir
		if dir == "" {
			dir = DefaultDir
		}
		persistent = NewFileStore(dir)
	case "sqlite":
		persistent, err = OpenSQLite(ctx, cfg.SQLitePath)
	case "s3":
		persistent, err = NewS3Store(ctx, cfg)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("store: unknown store type %q (available: file, sqlite, s3, memory)", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return NewLayered(NewMemoryStore(), persistent), nil
}

// Close releases resources held by s, if it holds any.
func Close(s Store) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func validateDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("store: empty domain")
	}
	if strings.ContainsAny(domain, `/\`) || strings.Contains(domain, "..") {
		return fmt.Errorf("store: invalid domain %q", domain)
	}
	return nil
}
