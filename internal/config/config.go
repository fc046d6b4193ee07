package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/woxQAQ/markdown-wasm-go/pkg/markdown"
)

// EnvPrefix prefixes environment overrides, e.g. MDWASM_RENDER_FORMAT.
const EnvPrefix = "MDWASM"

// Config is the mdwasm configuration.
type Config struct {
	EnginePaths []string        `mapstructure:"engine_paths"`
	Engine      string          `mapstructure:"engine"`
	LogLevel    string          `mapstructure:"log_level"`
	Render      RenderConfig    `mapstructure:"render"`
	Highlight   HighlightConfig `mapstructure:"highlight"`
	Wasm        WasmConfig      `mapstructure:"wasm"`
	Reference   ReferenceConfig `mapstructure:"reference"`
}

// RenderConfig holds the default parse options.
type RenderConfig struct {
	// Output format: html, xhtml or json.
	Format string `mapstructure:"format"`
	// Parse flag names, e.g. [tables, strikethrough]. Empty means default.
	ParseFlags  []string `mapstructure:"parse_flags"`
	AllowJSURIs bool     `mapstructure:"allow_js_uris"`
}

// HighlightConfig controls code block highlighting.
type HighlightConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Style   string `mapstructure:"style"`
}

// WasmConfig holds Wasm runtime configuration.
type WasmConfig struct {
	// Memory limit per module (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages"`
	// Enable debug info in compiled modules.
	Debug bool `mapstructure:"debug"`
	// Compilation cache directory. Empty disables the on-disk cache.
	CacheDir string `mapstructure:"cache_dir"`
	// Maximum concurrent instances.
	MaxInstances int `mapstructure:"max_instances"`
	// Maximum decompressed module size in bytes.
	MaxModuleBytes int64 `mapstructure:"max_module_bytes"`
}

// ReferenceConfig sizes the built-in engine.
type ReferenceConfig struct {
	InitialPages  uint32 `mapstructure:"initial_pages"`
	MaxPages      uint32 `mapstructure:"max_pages"`
	MaxInputBytes uint32 `mapstructure:"max_input_bytes"`
	JSON          bool   `mapstructure:"json"`
}

// LoadConfig reads configuration from configPath (optional) and the
// environment on top of the defaults.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("engine_paths", []string{"./engines"})
	v.SetDefault("engine", "reference")
	v.SetDefault("log_level", "info")

	v.SetDefault("render.format", "html")
	v.SetDefault("render.parse_flags", []string{})
	v.SetDefault("render.allow_js_uris", false)

	v.SetDefault("highlight.enabled", false)
	v.SetDefault("highlight.style", "github")

	// Wasm defaults
	v.SetDefault("wasm.memory_pages", 256) // 16MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "")
	v.SetDefault("wasm.max_instances", 100)
	v.SetDefault("wasm.max_module_bytes", 32<<20)

	v.SetDefault("reference.initial_pages", 2)
	v.SetDefault("reference.max_pages", 256)
	v.SetDefault("reference.max_input_bytes", 0)
	v.SetDefault("reference.json", true)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that viper cannot type check.
func (c *Config) Validate() error {
	if _, ok := markdown.ParseFormat(c.Render.Format); !ok {
		return fmt.Errorf("render.format: unknown format %q (must be one of: html, xhtml, json)", c.Render.Format)
	}
	if _, err := markdown.ParseFlagNames(c.Render.ParseFlags); err != nil {
		return fmt.Errorf("render.parse_flags: %w", err)
	}
	if c.Engine == "" {
		return fmt.Errorf("engine: must not be empty")
	}
	if c.Wasm.MemoryPages == 0 || c.Wasm.MemoryPages > 65536 {
		return fmt.Errorf("wasm.memory_pages: %d out of range 1..65536", c.Wasm.MemoryPages)
	}
	if c.Reference.MaxPages < c.Reference.InitialPages {
		return fmt.Errorf("reference.max_pages: %d is below initial_pages %d", c.Reference.MaxPages, c.Reference.InitialPages)
	}
	return nil
}

// ParseFlags returns the configured flags. Validate must have succeeded.
func (c *Config) ParseFlags() markdown.ParseFlags {
	f, _ := markdown.ParseFlagNames(c.Render.ParseFlags)
	return f
}

// Format returns the configured output format. Validate must have succeeded.
func (c *Config) Format() markdown.Format {
	f, _ := markdown.ParseFormat(c.Render.Format)
	return f
}
