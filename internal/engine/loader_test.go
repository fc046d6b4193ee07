package engine

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/woxQAQ/markdown-wasm-go/internal/wasm"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	runtime, err := wasm.NewRuntime(ctx, logger, wasm.DefaultRuntimeConfig())
	if err != nil {
		t.Fatalf("Failed to create runtime: %v", err)
	}
	t.Cleanup(func() { _ = runtime.Close(ctx) })

	return NewLoader(runtime, logger)
}

func TestLoader_LoadEngine_Wasm(t *testing.T) {
	loader := newTestLoader(t)
	dir := filepath.Join("testdata", "engines", "echo")

	e, err := loader.LoadEngine(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadEngine() failed: %v", err)
	}

	if e.Name() != "echo" {
		t.Errorf("expected name 'echo', got '%s'", e.Name())
	}

	if e.Kind() != KindWasm {
		t.Errorf("expected kind 'wasm', got '%s'", e.Kind())
	}

	if e.Version() != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", e.Version())
	}

	if e.Compiled == nil || e.Compiled.SizeBytes == 0 {
		t.Fatal("expected a compiled module")
	}

	if e.Compiled.Name != "echo" {
		t.Errorf("expected module compiled as 'echo', got '%s'", e.Compiled.Name)
	}
}

func TestLoader_LoadEngine_Reference(t *testing.T) {
	loader := newTestLoader(t)

	e, err := loader.LoadEngine(context.Background(), filepath.Join("testdata", "engines", "strict"))
	if err != nil {
		t.Fatalf("LoadEngine() failed: %v", err)
	}
	if e.Compiled != nil {
		t.Error("reference engines are not compiled")
	}
}

func TestLoader_LoadEngine_ManifestNotFound(t *testing.T) {
	loader := newTestLoader(t)

	_, err := loader.LoadEngine(context.Background(), filepath.Join("testdata", "engines", "nonexistent"))
	if err == nil {
		t.Fatal("LoadEngine() should fail for nonexistent directory")
	}

	_, ok := err.(*ManifestNotFoundError)
	if !ok {
		t.Errorf("expected ManifestNotFoundError, got %T", err)
	}
}

func TestLoader_LoadEngine_NotWasm(t *testing.T) {
	loader := newTestLoader(t)

	_, err := loader.LoadEngine(context.Background(), filepath.Join("testdata", "broken", "not-wasm"))
	if err == nil {
		t.Fatal("LoadEngine() should fail for a non-Wasm module")
	}

	loadErr, ok := err.(*LoadError)
	if !ok {
		t.Fatalf("expected LoadError, got %T", err)
	}
	if loadErr.EngineName != "not-wasm" {
		t.Errorf("expected EngineName 'not-wasm', got '%s'", loadErr.EngineName)
	}
}

func TestLoader_DiscoverEngines(t *testing.T) {
	loader := newTestLoader(t)

	engines, err := loader.DiscoverEngines(context.Background(), []string{
		filepath.Join("testdata", "engines"),
		filepath.Join("testdata", "does-not-exist"),
	})
	if err != nil {
		t.Fatalf("DiscoverEngines() failed: %v", err)
	}

	if len(engines) != 2 {
		t.Fatalf("expected 2 engines, got %d", len(engines))
	}
}

func TestLoader_DiscoverEngines_SkipsBroken(t *testing.T) {
	loader := newTestLoader(t)

	engines, err := loader.DiscoverEngines(context.Background(), []string{
		filepath.Join("testdata", "broken"),
		filepath.Join("testdata", "engines"),
	})
	if err != nil {
		t.Fatalf("DiscoverEngines() failed: %v", err)
	}
	if len(engines) != 2 {
		t.Errorf("expected 2 engines, got %d", len(engines))
	}
}

func TestLoader_DiscoverEngines_NoneFound(t *testing.T) {
	loader := newTestLoader(t)

	_, err := loader.DiscoverEngines(context.Background(), []string{filepath.Join("testdata", "broken")})
	if err == nil {
		t.Fatal("DiscoverEngines() should fail when nothing loads")
	}

	_, ok := err.(*NoEnginesFoundError)
	if !ok {
		t.Errorf("expected NoEnginesFoundError, got %T", err)
	}
}
