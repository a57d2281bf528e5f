package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"

	"calagg/internal/config"
)

// validators are the HTTP cache validators remembered for one URL.
type validators struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

func validatorsOf(url string, resp *resty.Response) validators {
	return validators{
		URL:          url,
		ETag:         resp.Header().Get("ETag"),
		LastModified: resp.Header().Get("Last-Modified"),
		FetchedAt:    time.Now().UTC(),
	}
}

// conditional turns req into a conditional GET.
func (v validators) conditional(req *resty.Request) {
	if v.ETag != "" {
		req.SetHeader("If-None-Match", v.ETag)
	}
	if v.LastModified != "" {
		req.SetHeader("If-Modified-Since", v.LastModified)
	}
}

// diskCache keeps the last 200 body of each URL with its validators, one
// directory per URL named after a hash of it.
type diskCache struct {
	dir string
}

func (c diskCache) entry(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:8]))
}

// load returns the cached body for url. ok is false unless both the body
// and its validators are readable.
func (c diskCache) load(url string) (v validators, body []byte, ok bool) {
	dir := c.entry(url)
	body, err := os.ReadFile(filepath.Join(dir, "body"))
	if err != nil || len(body) == 0 {
		return validators{}, nil, false
	}
	raw, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return validators{}, nil, false
	}
	if err := json.Unmarshal(raw, &v); err != nil || v.URL != url {
		return validators{}, nil, false
	}
	return v, body, true
}

// store saves body before its validators, so validators on disk always
// describe a body that exists.
func (c diskCache) store(v validators, body []byte) error {
	dir := c.entry(v.URL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	if err := config.WriteFileAtomic(filepath.Join(dir, "body"), body, 0o600); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return config.WriteFileAtomic(filepath.Join(dir, "meta.json"), raw, 0o600)
}
