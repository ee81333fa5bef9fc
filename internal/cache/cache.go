package cache

import (
	"context"
	"sync"

	"github.com/TemirB/save-cart-for-later/internal/domain"

	lru "github.com/hashicorp/golang-lru/v2"
)

//go:generate mockgen -source internal/cache/cache.go -destination=internal/cache/cache_mock_test.go -package=cache

type repo interface {
	Recent(ctx context.Context, limit int) ([]*domain.SavedCartSnapshot, error)
}

// Cache holds the latest known snapshot per key. Set never replaces a
// snapshot with an older version, so a slow read racing a save cannot
// resurrect the previous item list.
type Cache struct {
	size int
	mu   sync.Mutex
	lru  *lru.Cache[domain.Key, domain.SavedCartSnapshot]
}

func New(size int) (*Cache, error) {
	c, err := lru.New[domain.Key, domain.SavedCartSnapshot](size)
	if err != nil {
		return nil, err
	}
	return &Cache{
		size: size,
		lru:  c,
	}, nil
}

func (c *Cache) Warm(ctx context.Context, repo repo) int {
	snapshots, err := repo.Recent(ctx, c.size)
	if err != nil {
		return 0
	}
	for _, s := range snapshots {
		c.Set(s)
	}
	return len(snapshots)
}

func (c *Cache) Get(key domain.Key) (*domain.SavedCartSnapshot, bool) {
	s, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return &s, true
}

func (c *Cache) Set(s *domain.SavedCartSnapshot) {
	if s == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.lru.Peek(s.Key()); ok && cur.Version > s.Version {
		return
	}
	c.lru.Add(s.Key(), *s)
}

// Invalidate drops key when the cached copy is older than version. It reports
// whether an entry was removed.
func (c *Cache) Invalidate(key domain.Key, version int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.lru.Peek(key)
	if !ok || cur.Version >= version {
		return false
	}
	return c.lru.Remove(key)
}
