// Package templates provides the template store: built-in YAML templates, an
// optional user overlay directory, a record store source and a read-through
// cache in front of either.
package templates

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"sync"

	"github.com/zjrosen/playbook/internal/log"
	"github.com/zjrosen/playbook/internal/playbook"
)

// Origin records where a catalog template was loaded from.
type Origin string

const (
	OriginEmbedded Origin = "embedded"
	OriginUser     Origin = "user"
)

// Catalog is an in-memory template store. User templates replace embedded
// templates with the same id. Returned templates are shared and must not be
// modified.
type Catalog struct {
	mu        sync.RWMutex
	embedded  fs.FS
	userDir   string
	templates map[string]*playbook.Template
	origins   map[string]Origin
}

var _ playbook.TemplateStore = (*Catalog)(nil)

// NewCatalog loads the templates under CatalogDir in embedded and then the
// user overlay directory, which may be empty.
func NewCatalog(embedded fs.FS, userDir string) (*Catalog, error) {
	c := &Catalog{embedded: embedded, userDir: userDir}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewCatalogFromTemplates builds a catalog from already constructed templates.
// Each template is normalized.
func NewCatalogFromTemplates(templates ...*playbook.Template) (*Catalog, error) {
	c := &Catalog{
		templates: make(map[string]*playbook.Template, len(templates)),
		origins:   make(map[string]Origin, len(templates)),
	}
	for _, t := range templates {
		if err := t.Normalize(); err != nil {
			return nil, err
		}
		if _, ok := c.templates[t.ID]; ok {
			return nil, fmt.Errorf("duplicate template id %s", t.ID)
		}
		c.templates[t.ID] = t
		c.origins[t.ID] = OriginEmbedded
	}
	return c, nil
}

// Reload re-reads the embedded and user templates. On error the previous
// contents are kept.
func (c *Catalog) Reload() error {
	return c.ReloadValidated(nil)
}

// ReloadValidated re-reads the templates and passes them, sorted by id, to
// validate before swapping them in. A load or validation error keeps the
// previous contents.
func (c *Catalog) ReloadValidated(validate func([]*playbook.Template) error) error {
	templates := make(map[string]*playbook.Template)
	origins := make(map[string]Origin)

	if c.embedded != nil {
		builtin, err := LoadFromFS(c.embedded, CatalogDir)
		if err != nil {
			return fmt.Errorf("failed to load built-in templates: %w", err)
		}
		for _, t := range builtin {
			templates[t.ID] = t
			origins[t.ID] = OriginEmbedded
		}
	}

	user, err := LoadUserDir(c.userDir)
	if err != nil {
		return fmt.Errorf("failed to load user templates: %w", err)
	}
	for _, t := range user {
		if _, ok := templates[t.ID]; ok {
			log.Info(log.CatTemplates, "user template overrides built-in", "id", t.ID)
		}
		templates[t.ID] = t
		origins[t.ID] = OriginUser
	}

	if validate != nil {
		if err := validate(sortedTemplates(templates)); err != nil {
			log.ErrorErr(log.CatTemplates, "reloaded templates rejected, keeping previous catalog", err)
			return err
		}
	}

	c.mu.Lock()
	c.templates = templates
	c.origins = origins
	c.mu.Unlock()

	log.Debug(log.CatTemplates, "catalog loaded", "templates", len(templates), "user", len(user))
	return nil
}

// UserDir returns the overlay directory, or "" when there is none.
func (c *Catalog) UserDir() string {
	return c.userDir
}

// Get implements playbook.TemplateStore.
func (c *Catalog) Get(_ context.Context, id string) (*playbook.Template, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[id]
	if !ok {
		return nil, &playbook.TemplateNotFoundError{PlaybookID: id}
	}
	return t, nil
}

// List implements playbook.TemplateStore.
func (c *Catalog) List(_ context.Context) ([]*playbook.Template, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedTemplates(c.templates), nil
}

func sortedTemplates(templates map[string]*playbook.Template) []*playbook.Template {
	out := make([]*playbook.Template, 0, len(templates))
	for _, t := range templates {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *playbook.Template) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Origin reports where the template with id came from.
func (c *Catalog) Origin(id string) (Origin, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.origins[id]
	return o, ok
}
