package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/woxQAQ/markdown-wasm-go/internal/bridge"
	"github.com/woxQAQ/markdown-wasm-go/internal/config"
	"github.com/woxQAQ/markdown-wasm-go/internal/refengine"
	"github.com/woxQAQ/markdown-wasm-go/internal/wasm"
	"github.com/woxQAQ/markdown-wasm-go/pkg/markdown"
)

func newTestManager(t *testing.T, paths ...string) (*Manager, *wasm.Runtime) {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	runtime, err := wasm.NewRuntime(ctx, logger, wasm.DefaultRuntimeConfig())
	if err != nil {
		t.Fatalf("Failed to create runtime: %v", err)
	}
	t.Cleanup(func() { _ = runtime.Close(ctx) })

	cfg := &config.Config{
		EnginePaths: paths,
		Reference:   config.ReferenceConfig{InitialPages: 1, MaxPages: 64, JSON: true},
	}
	return NewManager(cfg, runtime, wasm.NewHostFunctions(runtime, logger), logger), runtime
}

func TestManager_NewManager(t *testing.T) {
	manager, _ := newTestManager(t)

	if manager.IsLoaded() {
		t.Error("Manager should not be loaded initially")
	}
}

func TestManager_LoadAll_BuiltinOnly(t *testing.T) {
	manager, _ := newTestManager(t, filepath.Join(t.TempDir(), "engines"))
	ctx := context.Background()

	if err := manager.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll() failed: %v", err)
	}
	if !manager.IsLoaded() {
		t.Error("Manager should be loaded")
	}

	e, err := manager.GetEngine(refengine.Name)
	if err != nil {
		t.Fatalf("GetEngine() failed: %v", err)
	}
	if !e.SupportsFormat(markdown.FormatJSON) {
		t.Error("reference engine should list json when enabled")
	}

	if err := manager.LoadAll(ctx); err == nil {
		t.Error("second LoadAll() should fail")
	}
}

func TestManager_GetEngine_NotFound(t *testing.T) {
	manager, _ := newTestManager(t)

	_, err := manager.GetEngine("nonexistent")
	if err == nil {
		t.Fatal("GetEngine() should fail for non-existent engine")
	}

	_, ok := err.(*NotFoundError)
	if !ok {
		t.Errorf("expected NotFoundError, got %T", err)
	}

	if _, err := manager.Open(context.Background(), "nonexistent"); err == nil {
		t.Error("Open() should fail for non-existent engine")
	}
}

func TestManager_FindEngineForFormat(t *testing.T) {
	manager, _ := newTestManager(t, filepath.Join("testdata", "engines"))
	if err := manager.LoadAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	e, err := manager.FindEngineForFormat(markdown.FormatJSON)
	if err != nil {
		t.Fatalf("FindEngineForFormat() failed: %v", err)
	}
	if e.Name() != refengine.Name {
		t.Errorf("expected reference engine for json, got %s", e.Name())
	}

	e, err = manager.FindEngineForFormat(markdown.FormatHTML)
	if err != nil {
		t.Fatal(err)
	}
	if e.Name() == refengine.Name {
		t.Error("discovered engines should win over the built-in one")
	}
}

func TestManager_FindEngineForFormat_NotFound(t *testing.T) {
	manager, _ := newTestManager(t)

	if _, err := manager.FindEngineForFormat(markdown.FormatHTML); err == nil {
		t.Fatal("FindEngineForFormat() should fail when no engines are loaded")
	}
}

func TestManager_OpenReference(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	if err := manager.LoadAll(ctx); err != nil {
		t.Fatal(err)
	}

	session, err := manager.Open(ctx, refengine.Name)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer session.Close(ctx)

	out, err := session.ParseString(ctx, "# Hi", bridge.Options{})
	if err != nil {
		t.Fatalf("ParseString() failed: %v", err)
	}
	if out != "<h1>Hi</h1>\n" {
		t.Errorf("ParseString() = %q", out)
	}
	if session.Engine().Name() != refengine.Name {
		t.Errorf("Engine() = %s", session.Engine().Name())
	}
}

func TestManager_OpenWasm(t *testing.T) {
	manager, runtime := newTestManager(t, filepath.Join("testdata", "engines"))
	ctx := context.Background()
	if err := manager.LoadAll(ctx); err != nil {
		t.Fatal(err)
	}

	session, err := manager.Open(ctx, "echo")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	out, err := session.ParseString(ctx, "plain", bridge.Options{})
	if err != nil {
		t.Fatalf("ParseString() failed: %v", err)
	}
	if out != "plain" {
		t.Errorf("ParseString() = %q", out)
	}
	if !strings.HasPrefix(session.Native().Name(), "echo#") {
		t.Errorf("Native().Name() = %s", session.Native().Name())
	}
	if runtime.ActiveInstances() != 1 {
		t.Errorf("ActiveInstances = %d, want 1", runtime.ActiveInstances())
	}

	_, err = session.ParseString(ctx, strings.Repeat("x", 8000), bridge.Options{})
	var nerr *bridge.NativeError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected *bridge.NativeError, got %v", err)
	}
	if !strings.HasPrefix(nerr.Origin, "echo#inst-") {
		t.Errorf("Origin = %s, want the manifest name", nerr.Origin)
	}

	if err := session.Close(ctx); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if runtime.ActiveInstances() != 0 {
		t.Errorf("ActiveInstances after Close = %d, want 0", runtime.ActiveInstances())
	}
	if _, err := session.ParseString(ctx, "again", bridge.Options{}); !errors.Is(err, bridge.ErrClosed) {
		t.Errorf("ParseString() after Close = %v, want ErrClosed", err)
	}
}

func TestManager_SessionPerGoroutine(t *testing.T) {
	manager, _ := newTestManager(t, filepath.Join("testdata", "engines"))
	ctx := context.Background()
	if err := manager.LoadAll(ctx); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		name := refengine.Name
		if i%2 == 0 {
			name = "echo"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, err := manager.Open(ctx, name)
			if err != nil {
				errs <- err
				return
			}
			defer session.Close(ctx)
			for j := 0; j < 10; j++ {
				if _, err := session.ParseString(ctx, "*x*", bridge.Options{}); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestManager_Shutdown(t *testing.T) {
	manager, runtime := newTestManager(t)

	// Shutdown should work even without loaded engines
	if err := manager.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() failed: %v", err)
	}

	if !runtime.IsClosed() {
		t.Error("Runtime should be closed after shutdown")
	}
}
