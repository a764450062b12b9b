package wasm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

// Minimal valid wasm 1.0 module: magic number plus version, no sections.
var emptyModule = []byte{
	0x00, 0x61, 0x73, 0x6d,
	0x01, 0x00, 0x00, 0x00,
}

func TestLoadBytes(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewLoader(runtime, logger)

	module, err := loader.LoadBytes(ctx, "empty", emptyModule)
	if err != nil {
		t.Fatalf("Failed to load module: %v", err)
	}
	if module.Name != "empty" {
		t.Errorf("Module name = %s, want 'empty'", module.Name)
	}
	if module.SizeBytes != int64(len(emptyModule)) {
		t.Errorf("SizeBytes = %d, want %d", module.SizeBytes, len(emptyModule))
	}

	// Second load hits the compiled-module cache.
	module2, err := loader.LoadBytes(ctx, "empty", emptyModule)
	if err != nil {
		t.Fatalf("Failed to load module from cache: %v", err)
	}
	if module2 != module {
		t.Error("Cache should return the same module instance")
	}
}

func TestLoadFile(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewLoader(runtime, logger)

	path := filepath.Join(t.TempDir(), "guest.wasm")
	if err := os.WriteFile(path, emptyModule, 0o644); err != nil {
		t.Fatal(err)
	}

	module, err := loader.LoadFile(ctx, path)
	if err != nil {
		t.Fatalf("Failed to load module from file: %v", err)
	}
	if module.Name != path {
		t.Errorf("Module name = %s, want the file path", module.Name)
	}
}

func TestLoadInvalidModule(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewLoader(runtime, logger)

	_, err = loader.LoadBytes(ctx, "garbage", []byte("not wasm at all"))
	if err == nil {
		t.Fatal("Load should fail for invalid wasm bytes")
	}
	if _, ok := err.(*CompilationError); !ok {
		t.Errorf("expected CompilationError, got %T", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewLoader(runtime, logger)

	_, err = loader.LoadFile(ctx, filepath.Join(t.TempDir(), "missing.wasm"))
	if err == nil {
		t.Fatal("Load should fail for a missing file")
	}
}
