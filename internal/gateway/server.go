package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/libredge/libredge/internal/artifact"
	"github.com/libredge/libredge/internal/config"
	"github.com/libredge/libredge/internal/upstream"
	"github.com/libredge/libredge/internal/wasm"
)

// Server wires the whole stack together: wasm runtime, host fetch binding,
// artifact loading, and the HTTP front. Construction performs all one-time
// setup; once NewServer returns, the first request can be served.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	runtime *wasm.Runtime
	handler http.Handler
}

// NewServer initializes the wasm service from configuration. Every failure
// here is an initialization failure: callers decide whether that is fatal
// (server bootstrap) or remembered (edge function).
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	runtime, err := wasm.NewRuntime(ctx, logger, &wasm.RuntimeConfig{
		MemoryPages:  cfg.Wasm.MemoryPages,
		DebugEnabled: cfg.Wasm.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize wasm runtime: %w", err)
	}

	client, err := upstream.NewClient(&upstream.Config{
		BaseURL:      cfg.Upstream.BaseURL,
		AllowedHosts: cfg.Upstream.AllowedHosts,
		Timeout:      time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		UserAgent:    cfg.Upstream.UserAgent,
		CacheSize:    cfg.Upstream.CacheSize,
		CacheTTL:     time.Duration(cfg.Upstream.CacheTTLSeconds) * time.Second,
	}, logger)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to initialize upstream client: %w", err)
	}

	hostFuncs := wasm.NewHostFunctions(client, logger)
	if err := hostFuncs.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}

	source, err := artifact.Resolve(&cfg.Artifact, logger)
	if err != nil {
		runtime.Close(ctx)
		return nil, err
	}

	compiled, err := wasm.NewLoader(runtime, logger).Load(ctx, source)
	if err != nil {
		runtime.Close(ctx)
		return nil, err
	}

	service, err := wasm.NewService(runtime, compiled, &wasm.ServiceConfig{
		ExecutionTimeout: time.Duration(cfg.Wasm.ExecutionTimeout) * time.Second,
	}, logger)
	if err != nil {
		runtime.Close(ctx)
		return nil, err
	}

	logger.Info("gateway initialized",
		zap.String("artifact", compiled.Name),
		zap.Int64("artifact_size_bytes", compiled.SizeBytes),
	)

	return &Server{
		cfg:     cfg,
		logger:  logger,
		runtime: runtime,
		handler: Routes(New(service, logger)),
	}, nil
}

// Handler returns the HTTP handler for the whole gateway.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe runs the HTTP listener until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// Close releases the wasm runtime.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("shutting down gateway")
	return s.runtime.Close(ctx)
}
