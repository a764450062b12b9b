package wasm

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

// Guest allocator export names. TinyGo and the Rust sdk both export these.
const (
	exportMalloc = "malloc"
	exportFree   = "free"
	exportServe  = "serve"
)

// Memory provides safe transfer of payloads in and out of a guest instance.
//
// Wasm modules have their own isolated linear memory. The host never writes
// at addresses it chose itself: buffers are allocated by calling the guest's
// own malloc export, so the guest allocator stays consistent. All reads are
// bounds-checked by wazero's api.Memory.
type Memory struct {
	mod api.Module
}

// NewMemory creates a memory helper for a guest instance.
func NewMemory(mod api.Module) *Memory {
	return &Memory{mod: mod}
}

// ReadBytes reads raw bytes from guest memory.
func (m *Memory) ReadBytes(ptr, length uint32) ([]byte, error) {
	buf, ok := m.mod.Memory().Read(ptr, length)
	if !ok {
		return nil, &MemoryAccessError{Operation: "read", Address: ptr, Length: length}
	}
	// Copy out: the underlying slice aliases guest memory and may be
	// invalidated by later guest calls.
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// ReadPacked reads the buffer described by a packed ptr<<32|len value.
func (m *Memory) ReadPacked(packed uint64) ([]byte, error) {
	ptr, length := unpack(packed)
	return m.ReadBytes(ptr, length)
}

// WriteBytes copies data into guest memory via the guest's malloc export and
// returns the resulting pointer. The guest owns the allocation.
func (m *Memory) WriteBytes(ctx context.Context, data []byte) (uint32, error) {
	malloc := m.mod.ExportedFunction(exportMalloc)
	if malloc == nil {
		return 0, &ExportNotFoundError{ModuleName: m.mod.Name(), Export: exportMalloc}
	}

	results, err := malloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, err
	}
	ptr := uint32(results[0])

	if !m.mod.Memory().Write(ptr, data) {
		return 0, &MemoryAccessError{Operation: "write", Address: ptr, Length: uint32(len(data))}
	}
	return ptr, nil
}

// Free releases a guest allocation previously returned by WriteBytes or by
// the guest itself.
func (m *Memory) Free(ctx context.Context, ptr uint32) error {
	free := m.mod.ExportedFunction(exportFree)
	if free == nil {
		return &ExportNotFoundError{ModuleName: m.mod.Name(), Export: exportFree}
	}
	_, err := free.Call(ctx, uint64(ptr))
	return err
}

func pack(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

func unpack(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed)
}
