// Package api is the HTTP client for the upstream package index: per
// formula JSON, the whole-index JSON, and bottle archive download, all
// behind a conditional cache so repeat runs avoid re-fetching unchanged
// metadata.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"time"

	apierrors "github.com/zb-pm/zb/internal/errors"
	"github.com/zb-pm/zb/internal/formula"
	"github.com/zb-pm/zb/internal/logger"
)

// Client talks to the upstream formula index.
type Client struct {
	httpClient *http.Client
	apiDomain  string
	userAgent  string
	cache      Cache
}

// Option configures a Client.
type Option func(*Client)

// WithCache overrides the conditional-request cache (default: in-memory).
func WithCache(c Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithAPIDomain overrides the index root (default: formulae.brew.sh/api,
// or $HOMEBREW_API_DOMAIN).
func WithAPIDomain(domain string) Option {
	return func(cl *Client) { cl.apiDomain = domain }
}

// NewClient constructs a Client with a 30s-timeout HTTP client and an
// in-memory cache; pass options to override either.
func NewClient(opts ...Option) *Client {
	apiDomain := os.Getenv("HOMEBREW_API_DOMAIN")
	if apiDomain == "" {
		apiDomain = "https://formulae.brew.sh/api"
	}

	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiDomain:  apiDomain,
		userAgent:  fmt.Sprintf("zb/1.0 (%s; %s)", runtime.GOOS, runtime.GOARCH),
		cache:      newMemCache(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetFormula fetches and parses {apiDomain}/formula/{name}.json, retrying
// once via alias resolution on a 404.
func (c *Client) GetFormula(name string) (*formula.Formula, error) {
	url := fmt.Sprintf("%s/formula/%s.json", c.apiDomain, name)
	body, fromCache, err := c.fetch(url, false)
	if err != nil {
		if ae, ok := err.(*apierrors.Error); ok && ae.Kind == apierrors.MissingFormula {
			if target, ok := c.resolveAlias(name); ok {
				logger.Debug("formula %s not found, retrying as alias target %s", name, target)
				retryURL := fmt.Sprintf("%s/formula/%s.json", c.apiDomain, target)
				body, fromCache, err = c.fetch(retryURL, true)
				if err != nil {
					if ae2, ok := err.(*apierrors.Error); ok && ae2.Kind == apierrors.MissingFormula {
						return nil, apierrors.NewMissingFormula(target)
					}
					return nil, err
				}
				return parseFormula(body, fromCache)
			}
			return nil, apierrors.NewMissingFormula(name)
		}
		return nil, err
	}
	return parseFormula(body, fromCache)
}

func parseFormula(body []byte, fromCache bool) (*formula.Formula, error) {
	f, err := formula.Parse(body)
	if err != nil {
		return nil, wrapParseError(err, fromCache)
	}
	return f, nil
}

// wrapParseError surfaces a formula/index parse failure as a
// NetworkFailure, tagging failures on a cached (304) body so callers can
// tell a malformed response apart from a malformed cache entry.
func wrapParseError(err error, fromCache bool) error {
	if fromCache {
		return apierrors.NewNetworkFailure(fmt.Sprintf("cached body parse failed: %v", err), err)
	}
	return apierrors.NewNetworkFailure(fmt.Sprintf("response parse failed: %v", err), err)
}

// GetIndex fetches the whole-index {apiDomain}/formula.json.
func (c *Client) GetIndex() ([]formula.IndexEntry, error) {
	url := fmt.Sprintf("%s/formula.json", c.apiDomain)
	body, fromCache, err := c.fetch(url, false)
	if err != nil {
		return nil, err
	}
	var entries []formula.IndexEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, wrapParseError(err, fromCache)
	}
	return entries, nil
}

// resolveAlias fetches the well-known alias index and looks up name.
// Returns ok=false if name has no alias target; never returns an error
// since alias resolution is best-effort.
func (c *Client) resolveAlias(name string) (string, bool) {
	entries, err := c.GetIndex()
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		for _, alias := range e.Aliases {
			if alias == name {
				return e.Name, true
			}
		}
	}
	return "", false
}

// fetch performs a conditional GET against url, consulting and updating
// the cache, and returns the response body plus whether it came from the
// cache (a 304 hit) rather than a fresh 2xx response.
func (c *Client) fetch(url string, alreadyRetried bool) ([]byte, bool, error) {
	entry, cached := c.cache.Get(url)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, false, apierrors.NewNetworkFailure(err.Error(), err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if cached {
		if entry.ETag != "" {
			req.Header.Set("If-None-Match", entry.ETag)
		}
		if entry.LastModified != "" {
			req.Header.Set("If-Modified-Since", entry.LastModified)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, apierrors.NewNetworkFailure(err.Error(), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		if !cached {
			return nil, false, apierrors.NewNetworkFailure("304 Not Modified with no cached body", nil)
		}
		return entry.Body, true, nil

	case resp.StatusCode == http.StatusNotFound:
		return nil, false, apierrors.NewMissingFormula(url)

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, false, apierrors.NewNetworkFailure(fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, apierrors.NewNetworkFailure(err.Error(), err)
	}

	newEntry := Entry{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		Body:         body,
		StoredAt:     time.Now(),
	}
	if err := c.cache.Put(url, newEntry); err != nil {
		logger.Warn("failed to persist cache entry for %s: %v", url, err)
	}
	return body, false, nil
}

// PlatformTag delegates to formula.PlatformTag, kept here so callers that
// only import api don't also need to import formula directly.
func (c *Client) PlatformTag() string {
	return formula.PlatformTag()
}

// PruneCache clears cached formula/index responses. With days <= 0 every
// entry is removed; otherwise only entries older than that many days are.
// Returns the number of entries removed.
func (c *Client) PruneCache(days int) (int, error) {
	if days <= 0 {
		n := c.cache.Count()
		if err := c.cache.Clear(); err != nil {
			return 0, err
		}
		return n, nil
	}
	return c.cache.ClearOlderThan(time.Duration(days) * 24 * time.Hour)
}
