package engine

import (
	"time"

	"github.com/woxQAQ/markdown-wasm-go/internal/wasm"
	"github.com/woxQAQ/markdown-wasm-go/pkg/markdown"
)

// Engine is a registered markdown engine.
type Engine struct {
	// Manifest is the engine metadata.
	Manifest *Manifest

	// Compiled is the compiled module. It is nil for the reference engine.
	Compiled *wasm.CompiledModule

	// LoadedAt is the time the engine was registered.
	LoadedAt time.Time
}

// Name returns the engine name.
func (e *Engine) Name() string {
	return e.Manifest.Name
}

// Kind returns KindWasm or KindReference.
func (e *Engine) Kind() string {
	return e.Manifest.Kind
}

// Version returns the manifest version.
func (e *Engine) Version() string {
	return e.Manifest.Version
}

// Formats returns the output formats the engine produces.
func (e *Engine) Formats() []markdown.Format {
	formats := make([]markdown.Format, 0, len(e.Manifest.Formats))
	for _, name := range e.Manifest.Formats {
		if f, ok := markdown.ParseFormat(name); ok {
			formats = append(formats, f)
		}
	}
	return formats
}

// SupportsFormat reports whether the manifest lists format.
func (e *Engine) SupportsFormat(format markdown.Format) bool {
	for _, f := range e.Formats() {
		if f == format {
			return true
		}
	}
	return false
}
