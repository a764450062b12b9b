package wasm

import (
	"fmt"
	"time"
)

// CompilationError occurs when wasm module compilation fails.
type CompilationError struct {
	ModuleName string
	Err        error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("failed to compile wasm module '%s': %v", e.ModuleName, e.Err)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// InstantiationError occurs when module instantiation fails.
type InstantiationError struct {
	ModuleName string
	InstanceID string
	Err        error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("failed to instantiate module '%s' (instance: %s): %v",
		e.ModuleName, e.InstanceID, e.Err)
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// ExportNotFoundError occurs when the guest is missing a required export.
type ExportNotFoundError struct {
	ModuleName string
	Export     string
}

func (e *ExportNotFoundError) Error() string {
	return fmt.Sprintf("export '%s' not found in module '%s'", e.Export, e.ModuleName)
}

// ServeError occurs when the guest's serve export traps or misbehaves.
type ServeError struct {
	InstanceID string
	Err        error
}

func (e *ServeError) Error() string {
	return fmt.Sprintf("guest serve failed (instance: %s): %v", e.InstanceID, e.Err)
}

func (e *ServeError) Unwrap() error {
	return e.Err
}

// PayloadError occurs when a wire payload cannot be encoded or decoded.
type PayloadError struct {
	Direction string // "request" or "response"
	Err       error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid %s payload: %v", e.Direction, e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

// MemoryAccessError occurs when guest memory operations fail.
type MemoryAccessError struct {
	Operation string
	Address   uint32
	Length    uint32
}

func (e *MemoryAccessError) Error() string {
	return fmt.Sprintf("guest memory access failed (op=%s, addr=%d, len=%d)",
		e.Operation, e.Address, e.Length)
}

// TimeoutError occurs when guest execution times out.
type TimeoutError struct {
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("guest execution timed out after %v", e.Duration)
}
