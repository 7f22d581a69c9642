package store

import (
	"context"
	"sync"

	"github.com/minios-linux/contentkit/content"
)

// Event is a change that invalidates cached documents.
type Event int

const (
	// DocumentChanged drops the entry of one language.
	DocumentChanged Event = iota
	// TitleChanged drops the entry of one language.
	TitleChanged
	// SlugChanged drops every language of the document.
	SlugChanged
)

func (e Event) String() string {
	switch e {
	case DocumentChanged:
		return "document-changed"
	case TitleChanged:
		return "title-changed"
	case SlugChanged:
		return "slug-changed"
	}
	return "unknown"
}

type cacheKey struct {
	path string
	lang string
}

// Cache holds fetched documents until an event invalidates them. Entries
// are copies; callers may mutate what they get.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]*Document
	hits    int
	misses  int
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]*Document)}
}

func copyDocument(d *Document) *Document {
	c := *d
	c.Content = content.Clone(d.Content)
	return &c
}

// Get returns a copy of the cached document.
func (c *Cache) Get(path, lang string) (*Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.entries[cacheKey{path, lang}]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return copyDocument(d), true
}

// Put stores a copy of d.
func (c *Cache) Put(d *Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{d.Path, d.Language}] = copyDocument(d)
}

// Invalidate applies ev to the entries of path.
func (c *Cache) Invalidate(ev Event, path, lang string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev {
	case DocumentChanged, TitleChanged:
		delete(c.entries, cacheKey{path, lang})
	case SlugChanged:
		for k := range c.entries {
			if k.path == path {
				delete(c.entries, k)
			}
		}
	}
}

// Len returns the number of cached documents.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// CachedAccessor serves reads from a Cache and invalidates it on writes.
type CachedAccessor struct {
	inner Accessor
	cache *Cache
}

// NewCachedAccessor wraps inner.
func NewCachedAccessor(inner Accessor, cache *Cache) *CachedAccessor {
	return &CachedAccessor{inner: inner, cache: cache}
}

// Get reads through the cache.
func (a *CachedAccessor) Get(ctx context.Context, path, lang string) (*Document, error) {
	if d, ok := a.cache.Get(path, lang); ok {
		return d, nil
	}
	d, err := a.inner.Get(ctx, path, lang)
	if err != nil {
		return nil, err
	}
	a.cache.Put(d)
	return d, nil
}

// Patch writes through and invalidates the touched entries.
func (a *CachedAccessor) Patch(ctx context.Context, path, lang string, p Patch) error {
	if err := a.inner.Patch(ctx, path, lang, p); err != nil {
		return err
	}
	if p.Content != nil {
		a.cache.Invalidate(DocumentChanged, path, lang)
	}
	if p.Title != nil {
		a.cache.Invalidate(TitleChanged, path, lang)
	}
	if p.Slug != nil {
		a.cache.Invalidate(SlugChanged, path, lang)
	}
	return nil
}

var _ Accessor = (*CachedAccessor)(nil)
