package wasm

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// Loader handles loading and compiling wasm modules.
type Loader struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewLoader creates a new module loader.
func NewLoader(runtime *Runtime, logger *zap.Logger) *Loader {
	return &Loader{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-loader")),
	}
}

// Source represents a source for wasm bytecode.
type Source interface {
	// Bytes returns the wasm bytecode.
	Bytes() ([]byte, error)

	// Name returns a name/identifier for this module.
	Name() string

	// Size returns the size in bytes, or 0 if unknown before Bytes.
	Size() int64
}

// FileSource loads wasm from a file.
type FileSource struct {
	Path string
}

// Bytes reads the wasm file.
func (f *FileSource) Bytes() ([]byte, error) {
	return os.ReadFile(f.Path)
}

// Name returns the file path as the module name.
func (f *FileSource) Name() string {
	return f.Path
}

// Size returns the file size.
func (f *FileSource) Size() int64 {
	info, err := os.Stat(f.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// MemorySource loads wasm from memory.
type MemorySource struct {
	ModuleName string
	Data       []byte
}

// Bytes returns the wasm bytecode.
func (m *MemorySource) Bytes() ([]byte, error) {
	return m.Data, nil
}

// Name returns the module name.
func (m *MemorySource) Name() string {
	return m.ModuleName
}

// Size returns the data size.
func (m *MemorySource) Size() int64 {
	return int64(len(m.Data))
}

// Load loads a wasm module from a source, compiling it if not already cached.
func (l *Loader) Load(ctx context.Context, source Source) (*CompiledModule, error) {
	if cached, ok := l.runtime.GetCompiledModule(source.Name()); ok {
		l.logger.Debug("module cache hit", zap.String("module", source.Name()))
		return cached, nil
	}

	wasmBytes, err := source.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read module %s: %w", source.Name(), err)
	}

	l.logger.Info("compiling wasm module",
		zap.String("module", source.Name()),
		zap.Int("size_bytes", len(wasmBytes)),
	)

	startTime := time.Now()

	// wazero.CompileModule decodes and validates the wasm binary.
	// CPU-intensive, but only done once per module.
	compiled, err := l.runtime.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, &CompilationError{
			ModuleName: source.Name(),
			Err:        err,
		}
	}

	compiledModule := &CompiledModule{
		Module:     compiled,
		Name:       source.Name(),
		Source:     source.Name(),
		SizeBytes:  int64(len(wasmBytes)),
		CompiledAt: time.Now().Unix(),
	}

	l.runtime.StoreCompiledModule(compiledModule)

	l.logger.Info("module compiled",
		zap.String("module", source.Name()),
		zap.Duration("duration", time.Since(startTime)),
	)

	return compiledModule, nil
}

// LoadFile is a convenience function for loading from a file path.
func (l *Loader) LoadFile(ctx context.Context, path string) (*CompiledModule, error) {
	return l.Load(ctx, &FileSource{Path: path})
}

// LoadBytes loads from a byte slice.
func (l *Loader) LoadBytes(ctx context.Context, name string, data []byte) (*CompiledModule, error) {
	return l.Load(ctx, &MemorySource{ModuleName: name, Data: data})
}
