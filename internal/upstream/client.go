package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/libredge/libredge/pkg/protocol"
	"go.uber.org/zap"
)

// Response headers stripped before a fetch result reaches the guest. These
// are CDN and tracking artifacts of the upstream edge.
var scrubbedHeaders = []string{
	"Access-Control-Expose-Headers",
	"Server",
	"Vary",
	"Etag",
	"X-Cdn",
	"X-Cdn-Client-Region",
	"X-Cdn-Name",
	"X-Cdn-Server-Region",
	"X-Reddit-Cdn",
	"X-Reddit-Video-Features",
}

// Config controls the outbound fetch capability.
type Config struct {
	// BaseURL is what relative guest URIs resolve against.
	BaseURL string
	// AllowedHosts are host suffixes the guest may fetch from. An empty
	// list refuses all absolute URLs outside BaseURL's host.
	AllowedHosts []string
	// Timeout bounds each outbound request.
	Timeout time.Duration
	// UserAgent is applied when the guest didn't set one.
	UserAgent string
	// CacheSize and CacheTTL configure the GET response cache. A zero
	// size disables caching.
	CacheSize int
	CacheTTL  time.Duration
}

// Client is the policy-carrying HTTP client behind the host fetch binding.
// It resolves relative URIs against the configured base, enforces the host
// allowlist, scrubs CDN response headers, and caches GET responses.
type Client struct {
	base    *url.URL
	allowed []string
	ua      string
	http    *http.Client
	manual  *http.Client
	cache   *responseCache
	logger  *zap.Logger
}

// NewClient creates a Client from config.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("upstream base URL %q must be absolute", cfg.BaseURL)
	}

	allowed := make([]string, 0, len(cfg.AllowedHosts)+1)
	allowed = append(allowed, base.Hostname())
	allowed = append(allowed, cfg.AllowedHosts...)

	var cache *responseCache
	if cfg.CacheSize > 0 {
		cache = newResponseCache(cfg.CacheSize, cfg.CacheTTL)
	}

	// Both clients share the default transport's connection pool; the
	// second one just hands redirects back unfollowed.
	return &Client{
		base:    base,
		allowed: allowed,
		ua:      cfg.UserAgent,
		http:    &http.Client{Timeout: cfg.Timeout},
		manual: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cache:  cache,
		logger: logger.With(zap.String("component", "upstream")),
	}, nil
}

// Do executes one outbound request under policy.
func (c *Client) Do(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	target, err := c.resolve(req.URI)
	if err != nil {
		return nil, err
	}

	if !c.hostAllowed(target.Hostname()) {
		return nil, &HostNotAllowedError{Host: target.Hostname()}
	}

	cacheable := c.cache != nil && req.Method == http.MethodGet && req.Redirect != "manual"
	key := cacheKey(req, target)
	if cacheable {
		if res, ok := c.cache.Get(key); ok {
			c.logger.Debug("fetch cache hit", zap.String("url", target.String()))
			return res, nil
		}
	}

	hr, err := http.NewRequestWithContext(ctx, req.Method, target.String(), strings.NewReader(string(req.Body)))
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	for name, values := range req.Headers {
		for _, v := range values {
			hr.Header.Add(name, v)
		}
	}
	if hr.Header.Get("User-Agent") == "" && c.ua != "" {
		hr.Header.Set("User-Agent", c.ua)
	}

	client := c.http
	if req.Redirect == "manual" {
		client = c.manual
	}

	start := time.Now()
	hres, err := client.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("upstream %s %s: %w", req.Method, target.String(), err)
	}

	res, err := protocol.FromHTTPResponse(hres)
	if err != nil {
		return nil, fmt.Errorf("reading upstream response: %w", err)
	}

	scrub(res)

	c.logger.Debug("upstream fetch",
		zap.String("method", req.Method),
		zap.String("url", target.String()),
		zap.Int("status", res.Status),
		zap.Duration("duration", time.Since(start)),
	)

	if cacheable && cacheableResponse(res) {
		c.cache.Add(key, res)
	}

	return res, nil
}

// resolve turns a guest URI into an absolute URL, resolving relative paths
// against the configured base.
func (c *Client) resolve(uri string) (*url.URL, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid fetch URI %q: %w", uri, err)
	}
	if !u.IsAbs() {
		return c.base.ResolveReference(u), nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported fetch scheme %q", u.Scheme)
	}
	return u, nil
}

// hostAllowed reports whether host matches the allowlist: exact match, or a
// subdomain of an allowed suffix (entry "reddit.com" admits www.reddit.com).
func (c *Client) hostAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, suffix := range c.allowed {
		suffix = strings.ToLower(suffix)
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

func scrub(res *protocol.Response) {
	h := http.Header(res.Headers)
	for _, name := range scrubbedHeaders {
		h.Del(name)
	}
}

// Responses carrying cookies are never shared between clients; everything
// else in the 2xx/3xx range is cacheable.
func cacheableResponse(res *protocol.Response) bool {
	if res.Status < 200 || res.Status >= 400 {
		return false
	}
	return http.Header(res.Headers).Get("Set-Cookie") == ""
}

// cacheKey varies on the request Cookie header so quarantine opt-in and
// preference cookies don't bleed across cache entries.
func cacheKey(req *protocol.Request, target *url.URL) string {
	return req.Method + " " + target.String() + "\x00" + req.Header("Cookie")
}

// HostNotAllowedError occurs when the guest fetches from a host outside the
// allowlist.
type HostNotAllowedError struct {
	Host string
}

func (e *HostNotAllowedError) Error() string {
	return fmt.Sprintf("fetch refused: host '%s' is not allowed", e.Host)
}
