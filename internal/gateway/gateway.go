package gateway

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/libredge/libredge/pkg/protocol"
)

// Service is the capability the wasm artifact provides: one request in, one
// response out. The gateway depends only on this interface, so the compiled
// artifact is swappable (and stubbable in tests).
type Service interface {
	Serve(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
}

// Gateway forwards every HTTP request to the service and writes back exactly
// what the service produced.
type Gateway struct {
	service Service
	logger  *zap.Logger
}

// New creates a Gateway.
func New(service Service, logger *zap.Logger) *Gateway {
	return &Gateway{
		service: service,
		logger:  logger.With(zap.String("component", "gateway")),
	}
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := protocol.FromHTTP(r)
	if err != nil {
		g.logger.Warn("failed to read request body", zap.Error(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	res, err := g.service.Serve(r.Context(), req)
	if err != nil {
		g.logger.Error("serve failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	if err := res.Write(w); err != nil {
		// The response was already committed; nothing to send the client.
		g.logger.Warn("failed to write response", zap.Error(err))
	}
}

// Routes builds the router: a health endpoint for the host platform, and a
// catch-all forwarding everything else to the service.
func Routes(g *Gateway) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.PathPrefix("/").Handler(g)

	return r
}
