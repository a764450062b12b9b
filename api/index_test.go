package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

func TestFunctionInitRunsOnce(t *testing.T) {
	var builds int32
	fn := NewFunction(func() (http.Handler, error) {
		atomic.AddInt32(&builds, 1)
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("ok"))
		}), nil
	})

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		fn.ServeHTTP(w, httptest.NewRequest("GET", "http://localhost/any/path", nil))
		if w.Code != 200 || w.Body.String() != "ok" {
			t.Fatalf("request %d: status=%d body=%q", i, w.Code, w.Body.String())
		}
	}

	if n := atomic.LoadInt32(&builds); n != 1 {
		t.Errorf("build ran %d times, want 1", n)
	}
}

func TestFunctionInitRunsOnceConcurrently(t *testing.T) {
	var builds int32
	fn := NewFunction(func() (http.Handler, error) {
		atomic.AddInt32(&builds, 1)
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			fn.ServeHTTP(w, httptest.NewRequest("GET", "http://localhost/", nil))
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&builds); n != 1 {
		t.Errorf("build ran %d times under concurrent cold start, want 1", n)
	}
}

func TestFunctionInitFailureRemembered(t *testing.T) {
	var builds int32
	fn := NewFunction(func() (http.Handler, error) {
		atomic.AddInt32(&builds, 1)
		return nil, errors.New("artifact fetch failed")
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		fn.ServeHTTP(w, httptest.NewRequest("GET", "http://localhost/", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("request %d: status = %d, want 503", i, w.Code)
		}
	}

	if n := atomic.LoadInt32(&builds); n != 1 {
		t.Errorf("build retried %d times, want exactly 1 attempt", n)
	}
}

func TestFunctionResponseIdentity(t *testing.T) {
	fn := NewFunction(func() (http.Handler, error) {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("X-Guest", "libreddit")
			w.WriteHeader(201)
			w.Write([]byte("created"))
		}), nil
	})

	w := httptest.NewRecorder()
	fn.ServeHTTP(w, httptest.NewRequest("POST", "http://localhost/r/golang/subscribe", nil))

	if w.Code != 201 {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if w.Body.String() != "created" {
		t.Errorf("body = %q", w.Body.String())
	}
	if w.Header().Get("X-Guest") != "libreddit" {
		t.Error("headers not passed through unmodified")
	}
}
