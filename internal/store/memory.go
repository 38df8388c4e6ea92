package store

import (
	"context"
	"fmt"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dshills/taxgen/internal/schema"
)

// MemoryStore holds cases in process memory. Entries never expire.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	// A zero cleanup interval starts no janitor goroutine.
	return &MemoryStore{cache: gocache.New(gocache.NoExpiration, 0)}
}

func (s *MemoryStore) Exists(_ context.Context, domain string) (bool, error) {
	_, found := s.cache.Get(domain)
	return found, nil
}

// Load returns a copy so callers cannot alter the stored case.
func (s *MemoryStore) Load(_ context.Context, domain string) (*schema.Case, error) {
	v, found := s.cache.Get(domain)
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, domain)
	}
	return schema.UnmarshalCase(v.([]byte))
}

func (s *MemoryStore) Save(_ context.Context, c *schema.Case) (string, error) {
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
	s.cache.Set(c.Domain, b, gocache.NoExpiration)
	return "memory://" + c.Domain, nil
}

// Len reports how many cases are held.
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}

// Layered reads through a memory layer to a persistent store and writes to
// both. The persistent store stays authoritative: a case only enters the
// memory layer once it has been saved or loaded there.
type Layered struct {
	mem  *MemoryStore
	back Store
}

// NewLayered fronts back with mem.
func NewLayered(mem *MemoryStore, back Store) *Layered {
	return &Layered{mem: mem, back: back}
}

func (l *Layered) Exists(ctx context.Context, domain string) (bool, error) {
	if ok, _ := l.mem.Exists(ctx, domain); ok {
		return true, nil
	}
	return l.back.Exists(ctx, domain)
}

func (l *Layered) Load(ctx context.Context, domain string) (*schema.Case, error) {
	if c, err := l.mem.Load(ctx, domain); err == nil {
		return c, nil
	}
	c, err := l.back.Load(ctx, domain)
	if err != nil {
		return nil, err
	}
	_, _ = l.mem.Save(ctx, c)
	return c, nil
}

func (l *Layered) Save(ctx context.Context, c *schema.Case) (string, error) {
	loc, err := l.back.Save(ctx, c)
	if err != nil {
		return "", err
	}
	_, _ = l.mem.Save(ctx, c)
	return loc, nil
}

// Close closes the persistent store.
func (l *Layered) Close() error {
	return Close(l.back)
}
