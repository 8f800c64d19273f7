package pipeline

import (
	"context"
	"sync"
	"time"
)

// SchemaSource produces the schema document given to the model.
type SchemaSource interface {
	Document(ctx context.Context) (string, error)
}

// SchemaCache serves a schema document for up to ttl before introspecting
// again. A zero ttl introspects on every call.
type SchemaCache struct {
	source SchemaSource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	doc     string
	fetched time.Time
}

// NewSchemaCache wraps source with a ttl cache.
func NewSchemaCache(source SchemaSource, ttl time.Duration) *SchemaCache {
	return &SchemaCache{source: source, ttl: ttl, now: time.Now}
}

// Document returns the cached document, refreshing it once stale. Concurrent
// callers wait for a single refresh. After a failed refresh the next call
// retries.
func (c *SchemaCache) Document(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl > 0 && !c.fetched.IsZero() && c.now().Sub(c.fetched) < c.ttl {
		return c.doc, nil
	}

	doc, err := c.source.Document(ctx)
	if err != nil {
		c.fetched = time.Time{}
		return "", err
	}
	c.doc = doc
	c.fetched = c.now()
	return doc, nil
}

// Warm fetches the document once so startup fails fast on a bad database.
func (c *SchemaCache) Warm(ctx context.Context) error {
	_, err := c.Document(ctx)
	return err
}

// Invalidate forces the next Document call to introspect.
func (c *SchemaCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetched = time.Time{}
}
