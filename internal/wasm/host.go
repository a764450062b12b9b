package wasm

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/libredge/libredge/pkg/protocol"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// HostModuleName is the import namespace the guest links against.
const HostModuleName = "host"

// Fetcher executes outbound requests on the guest's behalf. It is the host
// side of the fetch binding the guest imports.
type Fetcher interface {
	Do(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
}

// HostFunctions implements the host module imported by guests.
type HostFunctions struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// NewHostFunctions creates a new host functions implementation.
func NewHostFunctions(fetcher Fetcher, logger *zap.Logger) *HostFunctions {
	return &HostFunctions{
		fetcher: fetcher,
		logger:  logger.With(zap.String("component", "wasm-host")),
	}
}

// Instantiate builds and instantiates the host module on the runtime.
// Must be called once before any guest module is instantiated.
func (h *HostFunctions) Instantiate(ctx context.Context, r *Runtime) error {
	builder := r.runtime.NewHostModuleBuilder(HostModuleName)

	// fetch(req_ptr, req_len) -> packed ptr<<32|len of a response payload.
	// Never traps: transport failures come back as a 502 payload so the
	// guest can render its own error page.
	builder.NewFunctionBuilder().
		WithFunc(h.fetch).
		WithParameterNames("req_ptr", "req_len").
		Export("fetch")

	// log_message(level, ptr, length) bridges guest logs into the host logger.
	// level: 0 = debug, 1 = info, 2 = warn, 3 = error.
	builder.NewFunctionBuilder().
		WithFunc(h.logMessage).
		WithParameterNames("level", "ptr", "length").
		Export("log_message")

	_, err := builder.Instantiate(ctx)
	return err
}

func (h *HostFunctions) fetch(ctx context.Context, mod api.Module, reqPtr, reqLen uint32) uint64 {
	mem := NewMemory(mod)

	res := h.doFetch(ctx, mem, reqPtr, reqLen)

	out, err := json.Marshal(res)
	if err != nil {
		// Marshalling a Response cannot realistically fail; trap if it does.
		panic(&PayloadError{Direction: "response", Err: err})
	}

	ptr, err := mem.WriteBytes(ctx, out)
	if err != nil {
		h.logger.Error("failed to write fetch response into guest memory", zap.Error(err))
		panic(err)
	}
	return pack(ptr, uint32(len(out)))
}

func (h *HostFunctions) doFetch(ctx context.Context, mem *Memory, reqPtr, reqLen uint32) *protocol.Response {
	raw, err := mem.ReadBytes(reqPtr, reqLen)
	if err != nil {
		return errorResponse(http.StatusBadRequest, "unreadable fetch payload")
	}

	var req protocol.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		h.logger.Warn("guest sent malformed fetch payload", zap.Error(err))
		return errorResponse(http.StatusBadRequest, "malformed fetch payload")
	}

	res, err := h.fetcher.Do(ctx, &req)
	if err != nil {
		h.logger.Warn("upstream fetch failed",
			zap.String("method", req.Method),
			zap.String("uri", req.URI),
			zap.Error(err),
		)
		return errorResponse(http.StatusBadGateway, err.Error())
	}
	return res
}

func (h *HostFunctions) logMessage(_ context.Context, mod api.Module, level, ptr, length uint32) {
	msg, ok := mod.Memory().Read(ptr, length)
	if !ok {
		h.logger.Error("failed to read log message from guest memory",
			zap.Uint32("ptr", ptr),
			zap.Uint32("length", length),
		)
		return
	}

	switch level {
	case 0:
		h.logger.Debug(string(msg))
	case 1:
		h.logger.Info(string(msg))
	case 2:
		h.logger.Warn(string(msg))
	default:
		h.logger.Error(string(msg))
	}
}

func errorResponse(status int, msg string) *protocol.Response {
	return &protocol.Response{
		Status:  status,
		Headers: map[string][]string{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:    []byte(msg),
	}
}
