// Package fetch downloads the run's remote inputs: the primary sheet
// export and the external calendar feeds.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"calagg/internal/apperr"
	appLog "calagg/internal/log"
)

const userAgent = "calagg/1.0 (+community calendar aggregator)"

// Source is one remote document.
type Source struct {
	// ID names the source in logs: a feed slug or "sheet".
	ID  string
	URL string
}

// Result is a fetched document.
type Result struct {
	Source Source
	Body   []byte
	// FromCache is set when the server answered 304 and the body was read
	// back from the disk cache.
	FromCache bool
}

// Fetcher performs sequential GETs. Anything but 200, or 304 with a cached
// body, is an error: a run never proceeds on partial data.
type Fetcher struct {
	client *resty.Client
	cache  *diskCache
}

// NewClient returns the resty client shared by all fetches of a run. A zero
// timeout keeps the transport default.
func NewClient(timeout time.Duration) *resty.Client {
	c := resty.New().SetHeader("User-Agent", userAgent)
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return c
}

// NewFetcher creates a Fetcher. When cacheDir is set, bodies are kept on
// disk and later requests are made conditional on their validators.
func NewFetcher(client *resty.Client, cacheDir string) *Fetcher {
	if client == nil {
		client = NewClient(0)
	}
	f := &Fetcher{client: client}
	if cacheDir != "" {
		f.cache = &diskCache{dir: cacheDir}
	}
	return f
}

// Fetch GETs src.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (Result, error) {
	if src.URL == "" {
		return Result{}, apperr.Config("fetch "+src.ID, ErrEmptyURL)
	}
	op := "fetch " + src.ID
	redacted := RedactURL(src.URL)

	req := f.client.R().SetContext(ctx)
	var (
		cached    []byte
		hasCached bool
	)
	if f.cache != nil {
		var v validators
		v, cached, hasCached = f.cache.load(src.URL)
		if hasCached {
			v.conditional(req)
		}
	}

	appLog.Debug("fetch start", "id", src.ID, "url", redacted, "conditional", hasCached)
	resp, err := req.Get(src.URL)
	if err != nil {
		return Result{}, apperr.Network(op, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		body := resp.Body()
		if f.cache != nil {
			if err := f.cache.store(validatorsOf(src.URL, resp), body); err != nil {
				appLog.Warn("fetch cache not updated", "id", src.ID, "url", redacted, "error", err)
			}
		}
		appLog.Info("fetched", "id", src.ID, "url", redacted, "bytes", len(body))
		return Result{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if !hasCached {
			return Result{}, apperr.Network(op, fmt.Errorf("%w: 304 without a cached body", ErrStatus))
		}
		appLog.Info("fetched from cache", "id", src.ID, "url", redacted, "bytes", len(cached))
		return Result{Source: src, Body: cached, FromCache: true}, nil

	default:
		return Result{}, apperr.Network(op, fmt.Errorf("%w: %s", ErrStatus, resp.Status()))
	}
}
