package urlcheck

import (
	"errors"
	"os"
	"sort"
	"strings"

	"calagg/internal/apperr"
	"calagg/internal/config"
	appLog "calagg/internal/log"
)

// Cache is the persisted set of URLs already cleared by the scanner. It is
// loaded once by Open and written back once by Close; callers defer Close
// right after Open so the set is saved however the run ends.
type Cache struct {
	path  string
	urls  map[string]struct{}
	dirty bool
}

// Open loads the newline-delimited cache at path. A missing file is an
// empty cache.
func Open(path string) (*Cache, error) {
	c := &Cache{path: path, urls: make(map[string]struct{})}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, apperr.Config("open url cache", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			c.urls[line] = struct{}{}
		}
	}
	appLog.Debug("url cache loaded", "path", path, "urls", len(c.urls))
	return c, nil
}

// Has reports whether url was cleared before.
func (c *Cache) Has(url string) bool {
	_, ok := c.urls[url]
	return ok
}

// Add marks url as cleared.
func (c *Cache) Add(url string) {
	if c.Has(url) {
		return
	}
	c.urls[url] = struct{}{}
	c.dirty = true
}

func (c *Cache) Len() int { return len(c.urls) }

// Close writes the cache back, sorted, when it changed.
func (c *Cache) Close() error {
	if !c.dirty {
		return nil
	}
	urls := make([]string, 0, len(c.urls))
	for u := range c.urls {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	var b strings.Builder
	for _, u := range urls {
		b.WriteString(u)
		b.WriteByte('\n')
	}
	if err := config.WriteFileAtomic(c.path, []byte(b.String()), 0o644); err != nil {
		return apperr.Config("save url cache", err)
	}
	c.dirty = false
	appLog.Info("url cache saved", "path", c.path, "urls", len(urls))
	return nil
}
