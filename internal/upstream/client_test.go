package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/libredge/libredge/pkg/protocol"
)

func testClient(t *testing.T, base string, extra ...string) *Client {
	t.Helper()

	c, err := NewClient(&Config{
		BaseURL:      base,
		AllowedHosts: extra,
		Timeout:      5 * time.Second,
		UserAgent:    "web:libredge:test",
		CacheSize:    16,
		CacheTTL:     time.Minute,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	return c
}

func TestDoRelativeURI(t *testing.T) {
	var gotPath, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"kind":"Listing"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)

	res, err := c.Do(context.Background(), &protocol.Request{
		Method: "GET",
		URI:    "/r/golang/hot.json?limit=25",
	})
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}

	if gotPath != "/r/golang/hot.json" {
		t.Errorf("upstream saw path %s", gotPath)
	}
	if gotUA != "web:libredge:test" {
		t.Errorf("default User-Agent not applied, got %q", gotUA)
	}
	if res.Status != 200 {
		t.Errorf("status = %d", res.Status)
	}
	if string(res.Body) != `{"kind":"Listing"}` {
		t.Errorf("body = %q", res.Body)
	}
}

func TestDoScrubsCDNHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Reddit-Cdn", "edge-7")
		w.Header().Set("X-Cdn-Name", "cdn")
		w.Header().Set("Etag", "xyz")
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(200)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)

	res, err := c.Do(context.Background(), &protocol.Request{Method: "GET", URI: "/img/abc.png"})
	if err != nil {
		t.Fatal(err)
	}

	h := http.Header(res.Headers)
	for _, name := range []string{"X-Reddit-Cdn", "X-Cdn-Name", "Etag"} {
		if h.Get(name) != "" {
			t.Errorf("header %s should have been scrubbed", name)
		}
	}
	if h.Get("Content-Type") != "image/png" {
		t.Errorf("Content-Type lost: %q", h.Get("Content-Type"))
	}
}

func TestDoRefusesUnlistedHost(t *testing.T) {
	c := testClient(t, "https://www.reddit.com", "redd.it")

	_, err := c.Do(context.Background(), &protocol.Request{
		Method: "GET",
		URI:    "https://evil.example.com/steal",
	})
	if err == nil {
		t.Fatal("expected fetch to an unlisted host to fail")
	}
	if _, ok := err.(*HostNotAllowedError); !ok {
		t.Errorf("expected HostNotAllowedError, got %T: %v", err, err)
	}
}

func TestHostAllowedSuffixes(t *testing.T) {
	c := testClient(t, "https://www.reddit.com", "redd.it", "redditmedia.com")

	cases := []struct {
		host string
		want bool
	}{
		{"www.reddit.com", true},
		{"reddit.com", true},
		{"i.redd.it", true},
		{"v.redd.it", true},
		{"a.thumbs.redditmedia.com", true},
		{"notreddit.com", false},
		{"redd.it.evil.com", false},
		{"example.org", false},
	}

	for _, tc := range cases {
		if got := c.hostAllowed(tc.host); got != tc.want {
			t.Errorf("hostAllowed(%s) = %v, want %v", tc.host, got, tc.want)
		}
	}
}

func TestDoCachesGET(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("cached body"))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)

	req := &protocol.Request{Method: "GET", URI: "/r/golang.json"}
	for i := 0; i < 3; i++ {
		res, err := c.Do(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		if string(res.Body) != "cached body" {
			t.Errorf("body = %q", res.Body)
		}
	}

	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("upstream hit %d times, want 1", n)
	}
}

func TestDoDoesNotCacheSetCookie(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "s"})
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)

	req := &protocol.Request{Method: "GET", URI: "/login"}
	for i := 0; i < 2; i++ {
		if _, err := c.Do(context.Background(), req); err != nil {
			t.Fatal(err)
		}
	}

	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("upstream hit %d times, want 2", n)
	}
}

func TestDoManualRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/abc123" {
			http.Redirect(w, r, "/r/golang/comments/abc123/title/", http.StatusMovedPermanently)
			return
		}
		w.Write([]byte("followed"))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)

	// Manual: the 301 comes back as-is, on every request.
	for i := 0; i < 2; i++ {
		res, err := c.Do(context.Background(), &protocol.Request{
			Method:   "HEAD",
			URI:      "/abc123",
			Redirect: "manual",
		})
		if err != nil {
			t.Fatal(err)
		}
		if res.Status != http.StatusMovedPermanently {
			t.Errorf("manual redirect %d status = %d, want 301", i, res.Status)
		}
		if loc := http.Header(res.Headers).Get("Location"); loc != "/r/golang/comments/abc123/title/" {
			t.Errorf("manual redirect %d Location = %q", i, loc)
		}
	}

	// Default: redirects are followed.
	res, err := c.Do(context.Background(), &protocol.Request{Method: "GET", URI: "/abc123"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != 200 || string(res.Body) != "followed" {
		t.Errorf("follow redirect: status=%d body=%q", res.Status, res.Body)
	}
}

func TestNewClientRejectsRelativeBase(t *testing.T) {
	_, err := NewClient(&Config{BaseURL: "not-a-url"}, zaptest.NewLogger(t))
	if err == nil {
		t.Fatal("expected relative base URL to be rejected")
	}
}

func TestResolveBadScheme(t *testing.T) {
	c := testClient(t, "https://www.reddit.com")

	if _, err := c.resolve("ftp://example.com/file"); err == nil {
		t.Error("expected ftp scheme to be rejected")
	}
	u, err := c.resolve("/r/golang")
	if err != nil {
		t.Fatal(err)
	}
	if u.String() != "https://www.reddit.com/r/golang" {
		t.Errorf("resolved to %s", u)
	}
}
