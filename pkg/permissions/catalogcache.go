package permissions

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const catalogListKey = "__all__"

// CatalogCache decorates a Store with an in-process LRU for the
// permission catalog. Definitions change rarely but are read on every
// effective-permission enumeration and every direct grant, so they are
// kept close. All other Store methods pass through untouched.
type CatalogCache struct {
	Store
	defs *lru.LRU[string, *Definition]
	list *lru.LRU[string, []Definition]
}

// NewCatalogCache wraps store. maxEntries bounds the per-key cache;
// ttl bounds how stale a definition may get on a multi-instance
// deployment where another instance extends the catalog.
func NewCatalogCache(store Store, maxEntries int, ttl time.Duration) *CatalogCache {
	if maxEntries < 16 {
		maxEntries = 16
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CatalogCache{
		Store: store,
		defs:  lru.NewLRU[string, *Definition](maxEntries, nil, ttl),
		list:  lru.NewLRU[string, []Definition](1, nil, ttl),
	}
}

func (c *CatalogCache) GetDefinition(ctx context.Context, key string) (*Definition, error) {
	if def, ok := c.defs.Get(key); ok {
		return def, nil
	}

	def, err := c.Store.GetDefinition(ctx, key)
	if err != nil {
		return nil, err
	}
	c.defs.Add(key, def)
	return def, nil
}

func (c *CatalogCache) ListDefinitions(ctx context.Context) ([]Definition, error) {
	if defs, ok := c.list.Get(catalogListKey); ok {
		return defs, nil
	}

	defs, err := c.Store.ListDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	c.list.Add(catalogListKey, defs)
	return defs, nil
}

// CreateDefinition writes through and drops the cached catalog so the
// next read sees the new entry.
func (c *CatalogCache) CreateDefinition(ctx context.Context, def *Definition) error {
	if err := c.Store.CreateDefinition(ctx, def); err != nil {
		return err
	}
	c.defs.Purge()
	c.list.Purge()
	return nil
}
