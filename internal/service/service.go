// Package service wires configuration, the Wasm runtime, the engine manager
// and the highlighter into a single rendering entry point.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/woxQAQ/markdown-wasm-go/internal/bridge"
	"github.com/woxQAQ/markdown-wasm-go/internal/config"
	"github.com/woxQAQ/markdown-wasm-go/internal/engine"
	"github.com/woxQAQ/markdown-wasm-go/internal/highlight"
	"github.com/woxQAQ/markdown-wasm-go/internal/wasm"
)

// Service renders markdown with the configured engines. It is safe for
// concurrent use; calls on the same engine are serialised.
type Service struct {
	cfg         *config.Config
	logger      *zap.Logger
	wasmRuntime *wasm.Runtime
	engines     *engine.Manager
	highlighter *highlight.Filter

	mu       sync.Mutex
	sessions map[string]*guardedSession
	closed   bool
}

type guardedSession struct {
	*bridge.Guarded
	session *engine.Session
}

// New creates the runtime, loads engines and returns a ready service.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	wasmConfig := &wasm.RuntimeConfig{
		MemoryPages:    cfg.Wasm.MemoryPages,
		DebugEnabled:   cfg.Wasm.Debug,
		CacheDir:       cfg.Wasm.CacheDir,
		MaxInstances:   cfg.Wasm.MaxInstances,
		MaxModuleBytes: cfg.Wasm.MaxModuleBytes,
	}

	wasmRuntime, err := wasm.NewRuntime(ctx, logger, wasmConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Wasm runtime: %w", err)
	}

	manager := engine.NewManager(cfg, wasmRuntime, wasm.NewHostFunctions(wasmRuntime, logger), logger)
	if err := manager.LoadAll(ctx); err != nil {
		_ = wasmRuntime.Close(ctx)
		return nil, fmt.Errorf("failed to load engines: %w", err)
	}

	s := &Service{
		cfg:         cfg,
		logger:      logger.With(zap.String("component", "service")),
		wasmRuntime: wasmRuntime,
		engines:     manager,
		sessions:    make(map[string]*guardedSession),
	}
	if cfg.Highlight.Enabled {
		s.highlighter = highlight.New(cfg.Highlight.Style, logger)
	}

	s.logger.Info("Service initialized",
		zap.String("default_engine", cfg.Engine),
		zap.Int("engines", manager.Registry().Count()),
		zap.Uint32("wasm_memory_pages", cfg.Wasm.MemoryPages),
		zap.String("wasm_cache_dir", cfg.Wasm.CacheDir),
	)

	return s, nil
}

// Engines returns the registered engines.
func (s *Service) Engines() []*engine.Engine {
	return s.engines.Registry().List()
}

// Highlighter returns the code block filter, or nil when highlighting is off.
func (s *Service) Highlighter() *highlight.Filter {
	return s.highlighter
}

// DefaultOptions returns parse options built from the configuration.
func (s *Service) DefaultOptions() bridge.Options {
	opts := bridge.Options{
		Flags:       s.cfg.ParseFlags(),
		Format:      s.cfg.Format(),
		AllowJSURIs: s.cfg.Render.AllowJSURIs,
		OnCallbackError: func(err error) {
			s.logger.Warn("Code block filter failed", zap.Error(err))
		},
	}
	if s.highlighter != nil {
		opts.OnCodeBlock = s.highlighter
	}
	return opts
}

// Render renders source with the default engine and options.
func (s *Service) Render(ctx context.Context, source []byte) ([]byte, error) {
	return s.RenderWith(ctx, s.cfg.Engine, source, s.DefaultOptions())
}

// RenderWith renders source with the named engine. An empty name selects
// the configured default.
func (s *Service) RenderWith(ctx context.Context, engineName string, source []byte, opts bridge.Options) ([]byte, error) {
	if engineName == "" {
		engineName = s.cfg.Engine
	}
	gs, err := s.session(ctx, engineName)
	if err != nil {
		return nil, err
	}
	return gs.Parse(ctx, source, opts)
}

// Version reports the version string of the named engine.
func (s *Service) Version(ctx context.Context, engineName string) (string, error) {
	if engineName == "" {
		engineName = s.cfg.Engine
	}
	gs, err := s.session(ctx, engineName)
	if err != nil {
		return "", err
	}
	var v string
	err = gs.Do(func(b *bridge.Bridge) error {
		var err error
		v, err = b.Version(ctx)
		return err
	})
	return v, err
}

// session returns the shared session for name, opening it on first use.
func (s *Service) session(ctx context.Context, name string) (*guardedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, bridge.ErrClosed
	}
	if gs, ok := s.sessions[name]; ok {
		return gs, nil
	}

	session, err := s.engines.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	gs := &guardedSession{Guarded: bridge.NewGuarded(session.Bridge), session: session}
	s.sessions[name] = gs

	s.logger.Debug("Engine session opened", zap.String("engine", name))
	return gs, nil
}

// Close gracefully shuts down the service.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sessions := s.sessions
	s.sessions = nil
	s.mu.Unlock()

	s.logger.Info("Shutting down service")

	var errs []error
	for name, gs := range sessions {
		err := gs.Do(func(*bridge.Bridge) error {
			return gs.session.Close(ctx)
		})
		if err != nil {
			s.logger.Error("Failed to close engine session", zap.String("engine", name), zap.Error(err))
			errs = append(errs, err)
		}
	}

	if err := s.engines.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	s.logger.Info("Service shutdown complete")
	return errors.Join(errs...)
}
