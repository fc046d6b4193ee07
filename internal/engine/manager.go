package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/woxQAQ/markdown-wasm-go/internal/bridge"
	"github.com/woxQAQ/markdown-wasm-go/internal/config"
	"github.com/woxQAQ/markdown-wasm-go/internal/refengine"
	"github.com/woxQAQ/markdown-wasm-go/internal/wasm"
	"github.com/woxQAQ/markdown-wasm-go/pkg/markdown"
)

// Manager manages engine lifecycle.
type Manager struct {
	cfg         *config.Config
	runtime     *wasm.Runtime
	loader      *Loader
	registry    *Registry
	instanceMgr *wasm.InstanceManager
	base        *zap.Logger // unscoped, handed to engines and bridges
	logger      *zap.Logger

	mu     sync.RWMutex
	loaded bool
}

// NewManager creates a new engine manager.
func NewManager(
	cfg *config.Config,
	runtime *wasm.Runtime,
	hostFuncs *wasm.HostFunctionsImpl,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		cfg:         cfg,
		runtime:     runtime,
		loader:      NewLoader(runtime, logger),
		registry:    NewRegistry(logger),
		instanceMgr: wasm.NewInstanceManager(runtime, hostFuncs, logger),
		base:        logger,
		logger:      logger.With(zap.String("component", "engine-manager")),
	}
}

// referenceManifest describes the built-in engine.
func (m *Manager) referenceManifest() *Manifest {
	formats := []string{string(markdown.FormatHTML), string(markdown.FormatXHTML)}
	if m.cfg.Reference.JSON {
		formats = append(formats, string(markdown.FormatJSON))
	}
	return &Manifest{
		Name:    refengine.Name,
		Version: refengine.Version,
		Kind:    KindReference,
		Formats: formats,
		License: "MIT",
	}
}

// LoadAll registers the built-in reference engine and every engine found
// in the configured paths.
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("engines already loaded")
	}

	if err := m.registry.Register(&Engine{Manifest: m.referenceManifest(), LoadedAt: time.Now()}); err != nil {
		return err
	}

	m.logger.Info("Loading engines",
		zap.Strings("paths", m.cfg.EnginePaths),
	)

	engines, err := m.loader.DiscoverEngines(ctx, m.cfg.EnginePaths)
	if err != nil {
		var notFound *NoEnginesFoundError
		if errors.As(err, &notFound) {
			m.logger.Warn("No engines found in configured paths",
				zap.Strings("paths", m.cfg.EnginePaths),
			)
			m.loaded = true
			return nil
		}
		return err
	}

	for _, e := range engines {
		if err := m.registry.Register(e); err != nil {
			m.logger.Error("Failed to register engine",
				zap.String("name", e.Name()),
				zap.Error(err),
			)
			continue
		}
	}

	m.loaded = true

	m.logger.Info("Engines loaded successfully",
		zap.Int("count", m.registry.Count()),
	)

	return nil
}

// GetEngine retrieves an engine by name.
func (m *Manager) GetEngine(name string) (*Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.registry.Get(name)
	if !ok {
		return nil, &NotFoundError{EngineName: name}
	}

	return e, nil
}

// FindEngineForFormat finds an engine producing format.
func (m *Manager) FindEngineForFormat(format markdown.Format) (*Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	engines := m.registry.LookupByFormat(format)
	if len(engines) == 0 {
		return nil, fmt.Errorf("no engine found for format '%s'", format)
	}

	// Discovered engines win over the built-in one, which registers first.
	return engines[len(engines)-1], nil
}

// Session is an open engine: a fresh engine instance with its own Bridge.
// It is not safe for concurrent use; wrap the Bridge with bridge.NewGuarded
// to share it.
type Session struct {
	*bridge.Bridge

	engine *Engine
	native interface {
		Close(ctx context.Context) error
	}
}

// Engine returns the engine the session was opened from.
func (s *Session) Engine() *Engine {
	return s.engine
}

// Close closes the bridge and the engine instance.
func (s *Session) Close(ctx context.Context) error {
	return errors.Join(s.Bridge.Close(ctx), s.native.Close(ctx))
}

// Open creates a new engine instance and a Bridge over it.
func (m *Manager) Open(ctx context.Context, name string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.registry.Get(name)
	if !ok {
		return nil, &NotFoundError{EngineName: name}
	}

	var (
		native interface {
			bridge.Native
			Close(ctx context.Context) error
		}
		err error
	)
	switch e.Kind() {
	case KindWasm:
		native, err = m.instanceMgr.Instantiate(ctx, &wasm.InstanceConfig{
			// InstanceID will be auto-generated
			ModuleName: e.Compiled.Name,
		})
	default:
		native, err = refengine.New(m.referenceConfig(), m.base)
	}
	if err != nil {
		return nil, &LoadError{EngineName: name, Err: err}
	}

	b, err := bridge.New(ctx, native, m.base)
	if err != nil {
		_ = native.Close(ctx)
		return nil, &LoadError{EngineName: name, Err: err}
	}

	m.logger.Debug("Engine session opened",
		zap.String("name", name),
		zap.String("native", native.Name()),
	)

	return &Session{Bridge: b, engine: e, native: native}, nil
}

func (m *Manager) referenceConfig() *refengine.Config {
	cfg := refengine.DefaultConfig()
	ref := m.cfg.Reference
	if ref.InitialPages > 0 {
		cfg.InitialPages = ref.InitialPages
	}
	if ref.MaxPages > 0 {
		cfg.MaxPages = ref.MaxPages
	}
	cfg.MaxInputBytes = ref.MaxInputBytes
	cfg.JSONFormatter = ref.JSON
	return cfg
}

// Shutdown closes the Wasm runtime and every instance still open.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down engine manager")

	// Runtime close handles instance cleanup
	if err := m.runtime.Close(ctx); err != nil {
		m.logger.Error("Failed to shutdown runtime", zap.Error(err))
		return err
	}

	m.logger.Info("Engine manager shutdown complete")
	return nil
}

// Registry returns the engine registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// IsLoaded returns whether engines have been loaded.
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}
