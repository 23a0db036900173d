package fetcher

import "sync"

type cachedBody struct {
	body        []byte
	contentType string
}

// DownloadCache de-duplicates downloads of the same URL. It belongs to one
// fetcher instance, which lives for one pipeline step.
type DownloadCache struct {
	mu      sync.Mutex
	entries map[string]cachedBody
}

// NewDownloadCache returns an empty cache.
func NewDownloadCache() *DownloadCache {
	return &DownloadCache{entries: make(map[string]cachedBody)}
}

// Get returns the cached body and content type for url.
func (c *DownloadCache) Get(url string) ([]byte, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	return e.body, e.contentType, ok
}

// Put stores a downloaded body.
func (c *DownloadCache) Put(url string, body []byte, contentType string) {
	c.mu.Lock()
	c.entries[url] = cachedBody{body: body, contentType: contentType}
	c.mu.Unlock()
}

// Len reports the number of cached URLs.
func (c *DownloadCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
