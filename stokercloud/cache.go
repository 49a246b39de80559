package stokercloud

import (
	"context"
	"time"
)

type cacheEntry struct {
	doc       Document
	fetchedAt time.Time
}

// Document returns the controller status document, fetching a new one when
// nothing is cached or the cached one is older than the TTL.
func (c *Client) Document(ctx context.Context) (Document, error) {
	if c.fresh() {
		return c.cached.doc, nil
	}
	return c.Refresh(ctx)
}

// Refresh fetches the controller status document unconditionally and
// replaces the cache entry with it. A failed fetch leaves the previous entry
// in place.
func (c *Client) Refresh(ctx context.Context) (Document, error) {
	doc, err := c.Request(ctx, controllerDataPath, nil)
	if err != nil {
		return Document{}, err
	}
	c.cached = &cacheEntry{doc: doc, fetchedAt: c.now()}
	return doc, nil
}

// Status returns a typed view over the controller status document. It fails
// with ErrNotConnected when the boiler is offline; the document stays cached
// either way.
func (c *Client) Status(ctx context.Context) (*Controller, error) {
	doc, err := c.Document(ctx)
	if err != nil {
		return nil, err
	}
	return NewController(doc)
}

// StatusFlat returns the flattened controller status document.
func (c *Client) StatusFlat(ctx context.Context) (Flat, error) {
	doc, err := c.Document(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Flatten(), nil
}

// LastFetch returns when the cached document was fetched, or the zero time.
func (c *Client) LastFetch() time.Time {
	if c.cached == nil {
		return time.Time{}
	}
	return c.cached.fetchedAt
}

func (c *Client) fresh() bool {
	return c.cached != nil && c.now().Sub(c.cached.fetchedAt) <= c.cacheTTL
}
