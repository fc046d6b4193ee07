package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/woxQAQ/markdown-wasm-go/pkg/markdown"
)

// Engine kinds.
const (
	KindWasm      = "wasm"
	KindReference = "reference"
)

// Manifest represents the engine manifest.yaml structure.
type Manifest struct {
	Name    string     `yaml:"name"`
	Version string     `yaml:"version"`
	Kind    string     `yaml:"kind"`
	Wasm    WasmConfig `yaml:"wasm"`
	Formats []string   `yaml:"formats"`
	Author  string     `yaml:"author"`
	License string     `yaml:"license"`

	// Internal fields
	dir string // Directory containing manifest
}

// WasmConfig holds Wasm module configuration.
type WasmConfig struct {
	// File is relative to the manifest directory. A .zst, .br or .lz4
	// suffix marks a compressed module.
	File string `yaml:"file"`
	Size int    `yaml:"size"` // KB
}

// ParseManifest reads and parses manifest.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, "manifest.yaml")

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Path: manifestPath,
			Err:  err,
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest fields.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "name",
			Message: "name is required",
		}
	}

	if m.Version == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "version",
			Message: "version is required",
		}
	}

	switch m.Kind {
	case "":
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "kind",
			Message: "kind is required",
		}
	case KindWasm, KindReference:
	default:
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "kind",
			Message: fmt.Sprintf("unsupported kind: %s (must be one of: wasm, reference)", m.Kind),
		}
	}

	if len(m.Formats) == 0 {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "formats",
			Message: "at least one format is required",
		}
	}
	for _, f := range m.Formats {
		if _, ok := markdown.ParseFormat(f); !ok || f == "" {
			return &ManifestValidationError{
				Path:    m.Path(),
				Field:   "formats",
				Message: fmt.Sprintf("unknown format: %s (must be one of: html, xhtml, json)", f),
			}
		}
	}

	if m.Kind != KindWasm {
		return nil
	}

	if m.Wasm.File == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "wasm.file",
			Message: "wasm.file is required",
		}
	}

	if _, err := os.Stat(m.WasmPath()); os.IsNotExist(err) {
		return &WasmNotFoundError{
			ManifestPath: m.Path(),
			WasmFile:     m.Wasm.File,
		}
	}

	return nil
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, "manifest.yaml")
}

// WasmPath returns the path to the Wasm file.
func (m *Manifest) WasmPath() string {
	return filepath.Join(m.dir, m.Wasm.File)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}
