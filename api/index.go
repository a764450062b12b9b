// Package handler is the serverless entry point. The platform routes every
// path ("/*") to Handler; the gateway is built lazily on the first request
// of a cold start and reused for the lifetime of the instance.
package handler

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/libredge/libredge/internal/config"
	"github.com/libredge/libredge/internal/gateway"
)

// Function is a lazily initialized serverless function. Initialization runs
// at most once even under concurrent cold-start requests; a failed init is
// remembered and surfaces as 503 on every subsequent request without
// re-fetching the artifact.
type Function struct {
	build func() (http.Handler, error)

	once    sync.Once
	handler http.Handler
	initErr error
}

// NewFunction creates a Function around a build callback.
func NewFunction(build func() (http.Handler, error)) *Function {
	return &Function{build: build}
}

// ServeHTTP implements http.Handler.
func (f *Function) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.once.Do(func() {
		f.handler, f.initErr = f.build()
	})

	if f.initErr != nil {
		http.Error(w, "service initialization failed", http.StatusServiceUnavailable)
		return
	}
	f.handler.ServeHTTP(w, r)
}

func buildFromEnv() (http.Handler, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	srv, err := gateway.NewServer(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}
	return srv.Handler(), nil
}

var defaultFunction = NewFunction(buildFromEnv)

// Handler is the entry point the platform invokes for every request.
func Handler(w http.ResponseWriter, r *http.Request) {
	defaultFunction.ServeHTTP(w, r)
}
