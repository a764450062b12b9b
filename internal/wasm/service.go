package wasm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/libredge/libredge/pkg/protocol"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

var errMissingResult = errors.New("serve returned no result")

// Service wraps a compiled guest module behind the serve capability.
//
// Guest instances are single-threaded, so Serve instantiates a fresh guest
// per request from the compiled module and closes it afterwards. Compilation
// happened once at load time; instantiation is cheap.
type Service struct {
	runtime  *Runtime
	compiled *CompiledModule
	logger   *zap.Logger
	timeout  time.Duration
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Per-request guest execution timeout. Zero means no timeout.
	ExecutionTimeout time.Duration
}

// NewService validates the guest's exports and returns a Service. The host
// module (fetch, log_message) must already be instantiated on the runtime.
func NewService(runtime *Runtime, compiled *CompiledModule, cfg *ServiceConfig, logger *zap.Logger) (*Service, error) {
	if cfg == nil {
		cfg = &ServiceConfig{}
	}

	exported := compiled.Module.ExportedFunctions()
	for _, name := range []string{exportServe, exportMalloc, exportFree} {
		if _, ok := exported[name]; !ok {
			return nil, &ExportNotFoundError{ModuleName: compiled.Name, Export: name}
		}
	}

	return &Service{
		runtime:  runtime,
		compiled: compiled,
		logger:   logger.With(zap.String("component", "wasm-service")),
		timeout:  cfg.ExecutionTimeout,
	}, nil
}

// Serve hands one request to the guest's serve export and returns whatever
// response the guest produced, untouched.
func (s *Service) Serve(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	instanceID := uuid.NewString()

	// No start function: serve is the only entry point.
	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions()

	mod, err := s.runtime.runtime.InstantiateModule(ctx, s.compiled.Module, moduleConfig)
	if err != nil {
		return nil, &InstantiationError{
			ModuleName: s.compiled.Name,
			InstanceID: instanceID,
			Err:        err,
		}
	}
	defer mod.Close(ctx)

	mem := NewMemory(mod)

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &PayloadError{Direction: "request", Err: err}
	}

	ptr, err := mem.WriteBytes(ctx, payload)
	if err != nil {
		return nil, err
	}

	serve := mod.ExportedFunction(exportServe)
	results, err := serve.Call(ctx, uint64(ptr), uint64(len(payload)))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Duration: s.timeout}
		}
		return nil, &ServeError{InstanceID: instanceID, Err: err}
	}
	if len(results) == 0 {
		return nil, &ServeError{InstanceID: instanceID, Err: errMissingResult}
	}

	raw, err := mem.ReadPacked(results[0])
	if err != nil {
		return nil, err
	}

	var res protocol.Response
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, &PayloadError{Direction: "response", Err: err}
	}

	s.logger.Debug("guest served request",
		zap.String("instance_id", instanceID),
		zap.String("method", req.Method),
		zap.String("uri", req.URI),
		zap.Int("status", res.Status),
	)

	return &res, nil
}

// ModuleName returns the name of the guest module backing this service.
func (s *Service) ModuleName() string {
	return s.compiled.Name
}
