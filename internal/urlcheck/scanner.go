package urlcheck

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"calagg/internal/apperr"
	appLog "calagg/internal/log"
)

// DefaultBaseURL is the IPQualityScore URL reputation endpoint.
const DefaultBaseURL = "https://ipqualityscore.com/api/json/url"

// DefaultMaxQueries is the per-run lookup budget.
const DefaultMaxQueries = 5000

// Verdict is the part of the reputation response that decides safety.
type Verdict struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Suspicious bool   `json:"suspicious"`
	Phishing   bool   `json:"phishing"`
	Malware    bool   `json:"malware"`
	Spamming   bool   `json:"spamming"`
	Adult      bool   `json:"adult"`
	RiskScore  int    `json:"risk_score"`
}

// Flags lists the reasons the URL is unsafe; empty means safe.
func (v Verdict) Flags() []string {
	var out []string
	for _, f := range []struct {
		name string
		set  bool
	}{
		{"suspicious", v.Suspicious},
		{"phishing", v.Phishing},
		{"malware", v.Malware},
		{"spamming", v.Spamming},
		{"adult", v.Adult},
	} {
		if f.set {
			out = append(out, f.name)
		}
	}
	return out
}

// Scanner vets listing URLs against the reputation API, skipping any URL
// the cache already holds. Lookups are counted against a per-run budget.
type Scanner struct {
	client     *resty.Client
	key        string
	baseURL    string
	maxQueries int
	queries    int
	cache      *Cache
}

// Option customizes a Scanner.
type Option func(*Scanner)

// WithBaseURL points the scanner at another endpoint.
func WithBaseURL(u string) Option {
	return func(s *Scanner) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithMaxQueries sets the per-run lookup budget.
func WithMaxQueries(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.maxQueries = n
		}
	}
}

// NewScanner creates a Scanner. key must be set.
func NewScanner(client *resty.Client, key string, cache *Cache, opts ...Option) (*Scanner, error) {
	if key == "" {
		return nil, apperr.Config("url scanner", ErrNoKey)
	}
	if client == nil {
		client = resty.New()
	}
	s := &Scanner{
		client:     client,
		key:        key,
		baseURL:    DefaultBaseURL,
		maxQueries: DefaultMaxQueries,
		cache:      cache,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Queries is the number of lookups made so far.
func (s *Scanner) Queries() int { return s.queries }

// Check returns nil when u is safe. A flagged URL yields ErrUnsafeURL; a
// safe one is added to the cache.
func (s *Scanner) Check(ctx context.Context, u string) error {
	if s.cache != nil && s.cache.Has(u) {
		appLog.Debug("url previously cleared", "url", u)
		return nil
	}
	if s.queries >= s.maxQueries {
		return apperr.DataQuality("check url", fmt.Errorf("%w (%d)", ErrQuotaExceeded, s.maxQueries))
	}
	s.queries++

	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&Verdict{}).
		ForceContentType("application/json").
		Get(s.endpoint(u))
	if err != nil {
		// A response that arrived but did not decode is a parse failure.
		if resp != nil && resp.RawResponse != nil {
			return apperr.Parse("check url", err)
		}
		return apperr.Network("check url", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return apperr.Network("check url", fmt.Errorf("%w: %s", ErrLookupFailed, resp.Status()))
	}

	v, ok := resp.Result().(*Verdict)
	if !ok || v == nil {
		return apperr.Parse("check url", fmt.Errorf("%w: empty response", ErrLookupFailed))
	}
	if !v.Success && v.Message != "" {
		return apperr.Network("check url", fmt.Errorf("%w: %s", ErrLookupFailed, v.Message))
	}
	if flags := v.Flags(); len(flags) > 0 {
		appLog.Warn("url flagged", "url", u, "flags", strings.Join(flags, ","), "risk_score", v.RiskScore)
		return apperr.DataQuality("check url", fmt.Errorf("%w: %s (%s)", ErrUnsafeURL, u, strings.Join(flags, ", ")))
	}

	appLog.Info("url cleared", "url", u, "risk_score", v.RiskScore)
	if s.cache != nil {
		s.cache.Add(u)
	}
	return nil
}

func (s *Scanner) endpoint(u string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(u), "+", "%20")
	return s.baseURL + "/" + url.PathEscape(s.key) + "/" + escaped
}
