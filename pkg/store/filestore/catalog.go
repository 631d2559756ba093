package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bisegni/docsql/pkg/parser"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// collection holds the documents of one collection. File backed collections
// are read on first use.
type collection struct {
	path   string
	docs   []bson.D
	loaded bool
}

func (c *collection) load() error {
	if c.loaded {
		return nil
	}
	p, err := parser.NewParser(c.path)
	if err != nil {
		return err
	}
	defer p.Close()

	docs, err := p.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", c.path, err)
	}
	c.docs = docs
	c.loaded = true
	return nil
}

// Catalog manages the named collections of a store.
type Catalog struct {
	collections map[string]*collection
	mu          sync.RWMutex
}

// NewCatalog creates a new empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		collections: make(map[string]*collection),
	}
}

// LoadDir registers every .json and .jsonl file of dir as a collection named
// after the file.
func (c *Catalog) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".json" && ext != ".jsonl" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		if _, dup := c.collections[name]; dup {
			return fmt.Errorf("collection '%s' is defined by more than one file", name)
		}
		c.collections[name] = &collection{path: filepath.Join(dir, e.Name())}
	}
	return nil
}

// Register adds a collection held in memory, replacing any previous one.
func (c *Catalog) Register(name string, docs []bson.D) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collections[name] = &collection{docs: docs, loaded: true}
}

// Names lists the collections in lexical order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.collections))
	for name := range c.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a deep copy of the documents of name. An unknown
// collection is empty, as on the server.
func (c *Catalog) Snapshot(name string) ([]bson.D, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	coll, ok := c.collections[name]
	if !ok {
		return nil, nil
	}
	if err := coll.load(); err != nil {
		return nil, err
	}
	out := make([]bson.D, len(coll.docs))
	for i, d := range coll.docs {
		out[i] = cloneDoc(d)
	}
	return out, nil
}

// Mutate runs fn over the documents of name under the write lock and stores
// what it returns. A missing collection is created once it has documents.
func (c *Catalog) Mutate(name string, fn func(docs []bson.D) ([]bson.D, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	coll, ok := c.collections[name]
	if !ok {
		coll = &collection{loaded: true}
	}
	if err := coll.load(); err != nil {
		return err
	}
	docs, err := fn(coll.docs)
	if err != nil {
		return err
	}
	coll.docs = docs
	if !ok && len(docs) > 0 {
		c.collections[name] = coll
	}
	return nil
}
