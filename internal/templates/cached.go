package templates

import (
	"context"
	"time"

	"github.com/zjrosen/playbook/internal/cachemanager"
	"github.com/zjrosen/playbook/internal/playbook"
)

type cacheKey string

const listKey cacheKey = "\x00list"

// Cached fronts a slower template store with in-memory read-through caches.
// Lookup errors, including not found, are not cached.
type Cached struct {
	ttl   time.Duration
	one   *cachemanager.InMemoryCacheManager[cacheKey, *playbook.Template]
	all   *cachemanager.InMemoryCacheManager[cacheKey, []*playbook.Template]
	get   *cachemanager.ReadThroughCache[cacheKey, *playbook.Template, string]
	list  *cachemanager.ReadThroughCache[cacheKey, []*playbook.Template, struct{}]
	inner playbook.TemplateStore
}

var _ playbook.TemplateStore = (*Cached)(nil)

// NewCached wraps inner. A ttl of zero disables caching.
func NewCached(inner playbook.TemplateStore, ttl time.Duration) *Cached {
	c := &Cached{
		ttl:   ttl,
		inner: inner,
		one:   cachemanager.NewInMemoryCacheManager[cacheKey, *playbook.Template]("templates", ttl, cachemanager.DefaultCleanupInterval),
		all:   cachemanager.NewInMemoryCacheManager[cacheKey, []*playbook.Template]("template-list", ttl, cachemanager.DefaultCleanupInterval),
	}
	skip := ttl <= 0
	c.get = cachemanager.NewReadThroughCache[cacheKey, *playbook.Template, string](c.one, inner.Get, skip)
	c.list = cachemanager.NewReadThroughCache[cacheKey, []*playbook.Template, struct{}](c.all, func(ctx context.Context, _ struct{}) ([]*playbook.Template, error) {
		return inner.List(ctx)
	}, skip)
	return c
}

// Get implements playbook.TemplateStore.
func (c *Cached) Get(ctx context.Context, id string) (*playbook.Template, error) {
	return c.get.GetWithRefresh(ctx, cacheKey(id), id, c.ttl)
}

// List implements playbook.TemplateStore.
func (c *Cached) List(ctx context.Context) ([]*playbook.Template, error) {
	return c.list.Get(ctx, listKey, struct{}{}, c.ttl)
}

// Invalidate drops every cached template.
func (c *Cached) Invalidate(ctx context.Context) error {
	if err := c.get.Invalidate(ctx); err != nil {
		return err
	}
	return c.list.Invalidate(ctx)
}

// Stats sums hits and misses over both caches.
func (c *Cached) Stats() cachemanager.Stats {
	a, b := c.one.Stats(), c.all.Stats()
	return cachemanager.Stats{Hits: a.Hits + b.Hits, Misses: a.Misses + b.Misses}
}
