package gateway

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/libredge/libredge/pkg/protocol"
)

type stubService struct {
	calls int
	last  *protocol.Request
	res   *protocol.Response
	err   error
}

func (s *stubService) Serve(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
	s.calls++
	s.last = req
	return s.res, s.err
}

func TestGatewayPassThrough(t *testing.T) {
	svc := &stubService{
		res: &protocol.Response{
			Status: 200,
			Headers: map[string][]string{
				"Content-Type":    {"text/html"},
				"Referrer-Policy": {"no-referrer"},
			},
			Body: []byte("ok"),
		},
	}
	g := New(svc, zaptest.NewLogger(t))

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://localhost/r/golang/hot", nil)
	g.ServeHTTP(w, r)

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("body = %q, want 'ok'", w.Body.String())
	}
	if w.Header().Get("Referrer-Policy") != "no-referrer" {
		t.Error("response headers not passed through")
	}
	if svc.last.URI != "http://localhost/r/golang/hot" {
		t.Errorf("service saw URI %s", svc.last.URI)
	}
}

func TestGatewayForwardsBody(t *testing.T) {
	svc := &stubService{res: &protocol.Response{Status: 303}}
	g := New(svc, zaptest.NewLogger(t))

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "http://localhost/settings", bytes.NewBufferString("theme=dark"))
	g.ServeHTTP(w, r)

	if string(svc.last.Body) != "theme=dark" {
		t.Errorf("service saw body %q", svc.last.Body)
	}
	if w.Code != 303 {
		t.Errorf("status = %d, want 303", w.Code)
	}
}

func TestGatewayServeError(t *testing.T) {
	svc := &stubService{err: errors.New("guest trapped")}
	g := New(svc, zaptest.NewLogger(t))

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest("GET", "http://localhost/", nil))

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestRoutesWildcard(t *testing.T) {
	svc := &stubService{res: &protocol.Response{Status: 200, Body: []byte("ok")}}
	router := Routes(New(svc, zaptest.NewLogger(t)))

	paths := []string{
		"/",
		"/r/golang",
		"/r/golang/comments/abc123/some_title",
		"/img/whatever.png",
		"/settings",
		"/user/someone/submitted",
	}
	for _, path := range paths {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "http://localhost"+path, nil))
		if w.Code != 200 || w.Body.String() != "ok" {
			t.Errorf("path %s: status=%d body=%q", path, w.Code, w.Body.String())
		}
	}

	if svc.calls != len(paths) {
		t.Errorf("service called %d times, want %d", svc.calls, len(paths))
	}
}

func TestRoutesHealthzBypassesService(t *testing.T) {
	svc := &stubService{res: &protocol.Response{Status: 500}}
	router := Routes(New(svc, zaptest.NewLogger(t)))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "http://localhost/healthz", nil))

	if w.Code != 200 {
		t.Errorf("healthz status = %d, want 200", w.Code)
	}
	if svc.calls != 0 {
		t.Error("healthz should not reach the service")
	}
}
