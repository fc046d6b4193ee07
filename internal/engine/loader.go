package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/woxQAQ/markdown-wasm-go/internal/wasm"
)

// Loader handles loading engines from disk.
type Loader struct {
	runtime      *wasm.Runtime
	moduleLoader *wasm.ModuleLoader
	logger       *zap.Logger
}

// NewLoader creates a new engine loader.
func NewLoader(runtime *wasm.Runtime, logger *zap.Logger) *Loader {
	return &Loader{
		runtime:      runtime,
		moduleLoader: wasm.NewModuleLoader(runtime, logger),
		logger:       logger.With(zap.String("component", "engine-loader")),
	}
}

// LoadEngine loads a single engine from a directory. Wasm engines are
// compiled here so later instantiation is cheap.
func (l *Loader) LoadEngine(ctx context.Context, dir string) (*Engine, error) {
	l.logger.Debug("Loading engine", zap.String("dir", dir))

	manifest, err := ParseManifest(dir)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Loading engine",
		zap.String("name", manifest.Name),
		zap.String("version", manifest.Version),
		zap.String("kind", manifest.Kind),
	)

	e := &Engine{
		Manifest: manifest,
		LoadedAt: time.Now(),
	}

	if manifest.Kind != KindWasm {
		return e, nil
	}

	// Compiled under the manifest name so instances and engine errors are
	// reported as "<name>#<instance id>".
	compiled, err := l.moduleLoader.LoadModule(ctx, &wasm.FileModuleSource{
		Path:       manifest.WasmPath(),
		ModuleName: manifest.Name,
	})
	if err != nil {
		return nil, &LoadError{
			EngineName: manifest.Name,
			Err:        err,
		}
	}
	e.Compiled = compiled

	l.logger.Info("Engine loaded successfully",
		zap.String("name", manifest.Name),
		zap.Int64("size_bytes", compiled.SizeBytes),
	)

	return e, nil
}

// DiscoverEngines scans directories for engines. Each subdirectory holding a
// manifest.yaml is one engine; broken engines are logged and skipped.
func (l *Loader) DiscoverEngines(ctx context.Context, paths []string) ([]*Engine, error) {
	var engines []*Engine
	var errs []error

	for _, basePath := range paths {
		l.logger.Debug("Scanning engine directory", zap.String("path", basePath))

		entries, err := os.ReadDir(basePath)
		if err != nil {
			if os.IsNotExist(err) {
				l.logger.Warn("Engine path does not exist", zap.String("path", basePath))
				continue
			}
			return nil, fmt.Errorf("failed to read directory '%s': %w", basePath, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			engineDir := filepath.Join(basePath, entry.Name())

			e, err := l.LoadEngine(ctx, engineDir)
			if err != nil {
				l.logger.Error("Failed to load engine",
					zap.String("dir", engineDir),
					zap.Error(err),
				)
				errs = append(errs, err)
				continue
			}

			engines = append(engines, e)
		}
	}

	if len(engines) > 0 && len(errs) > 0 {
		l.logger.Warn("Some engines failed to load",
			zap.Int("loaded", len(engines)),
			zap.Int("failed", len(errs)),
		)
	}

	if len(engines) == 0 {
		return nil, &NoEnginesFoundError{Paths: paths}
	}

	return engines, nil
}
