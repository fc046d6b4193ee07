package engine

import (
	"fmt"
)

// ManifestNotFoundError occurs when manifest.yaml is not found in a directory.
type ManifestNotFoundError struct {
	Path string
	Err  error
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("manifest not found at '%s': %v", e.Path, e.Err)
}

func (e *ManifestNotFoundError) Unwrap() error {
	return e.Err
}

// ManifestParseError occurs when manifest.yaml is not valid YAML.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("failed to parse manifest at '%s': %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// ManifestValidationError occurs when manifest.yaml fails validation.
type ManifestValidationError struct {
	Path    string
	Field   string
	Message string
}

func (e *ManifestValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest validation failed at '%s': %s (field: %s)",
			e.Path, e.Message, e.Field)
	}
	return fmt.Sprintf("manifest validation failed at '%s': %s", e.Path, e.Message)
}

// WasmNotFoundError occurs when the Wasm file referenced in a manifest doesn't exist.
type WasmNotFoundError struct {
	ManifestPath string
	WasmFile     string
}

func (e *WasmNotFoundError) Error() string {
	return fmt.Sprintf("Wasm file '%s' not found (referenced in manifest '%s')",
		e.WasmFile, e.ManifestPath)
}

// LoadError occurs when an engine cannot be loaded or opened.
type LoadError struct {
	EngineName string
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load engine '%s': %v", e.EngineName, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// NotFoundError occurs when an engine is not in the registry.
type NotFoundError struct {
	EngineName string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("engine '%s' not found", e.EngineName)
}

// AlreadyRegisteredError occurs when registering a duplicate engine name.
type AlreadyRegisteredError struct {
	EngineName string
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("engine '%s' is already registered", e.EngineName)
}

// NoEnginesFoundError occurs when no engines are found in the configured paths.
type NoEnginesFoundError struct {
	Paths []string
}

func (e *NoEnginesFoundError) Error() string {
	return fmt.Sprintf("no engines found in paths: %v", e.Paths)
}
