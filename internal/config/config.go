// Package config resolves tracer configuration: an explicit file, a
// nearest-ancestor search over recognized filenames, and CLI overrides
// layered on top, CLI winning field by field.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Config holds every engine setting the external interface recognizes.
type Config struct {
	FilterWorkspace  bool     `mapstructure:"filter_workspace"`
	LogDir           string   `mapstructure:"log_dir"`
	TraceableFuncs   []string `mapstructure:"traceable_functions"`
	LogLevel         string   `mapstructure:"log_level"`
	LogOutput        string   `mapstructure:"log_output"`
	VariableMode     string   `mapstructure:"variable_mode"`
	TraceAsync       bool     `mapstructure:"trace_async"`
	AwaitThresholdMs float64  `mapstructure:"await_threshold_ms"`
	TraceTasks       bool     `mapstructure:"trace_tasks"`

	// Source is the file the values came from, empty when defaults only.
	Source string `mapstructure:"-"`
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		FilterWorkspace: true,
		LogDir:          ".steptrace",
		LogLevel:        "INFO",
		LogOutput:       "FILE",
		VariableMode:    "ALL",
		TraceTasks:      true,
	}
}

// configNames are the recognized standalone config filenames, in preference
// order.
var configNames = []string{"steptrace.yaml", "steptrace.yml", "steptrace.toml"}

// manifestName is the project manifest whose [tool.steptrace] subsection also
// counts as configuration; the tool traces programs in any language, so the
// manifest is not assumed to be Go-specific.
const manifestName = "pyproject.toml"

// Load resolves configuration. An explicit path wins; otherwise the nearest
// ancestor of startDir holding a recognized file or manifest subsection is
// used; otherwise defaults.
func Load(explicit, startDir string) (*Config, error) {
	if explicit != "" {
		return LoadFromFile(explicit)
	}
	path, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFromFile(path)
}

// LoadFromFile reads one specific config file. Unsupported extensions are an
// error; unrecognized enum strings are not (they fall back to defaults at
// session construction).
func LoadFromFile(path string) (*Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return loadViper(path, "yaml")
	case ".toml":
		if filepath.Base(path) == manifestName {
			return loadManifest(path)
		}
		return loadViper(path, "toml")
	}
	return nil, fmt.Errorf("unsupported config file format %q: use .yaml, .yml, or .toml", ext)
}

func loadViper(path, kind string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(kind)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.Source = path
	return cfg, nil
}

// manifestFile models the [tool.steptrace] subsection of a project manifest.
type manifestFile struct {
	Tool struct {
		Steptrace map[string]any `toml:"steptrace"`
	} `toml:"tool"`
}

func loadManifest(path string) (*Config, error) {
	var m manifestFile
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if m.Tool.Steptrace == nil {
		return Default(), nil
	}
	v := viper.New()
	for key, val := range m.Tool.Steptrace {
		// Manifest keys may use hyphens; normalize to underscores.
		v.Set(strings.ReplaceAll(key, "-", "_"), val)
	}
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	cfg.Source = path
	return cfg, nil
}

// Find walks from startDir toward the filesystem root looking for a
// recognized config file or a manifest with a steptrace subsection. Returns
// "" when nothing is found.
func Find(startDir string) (string, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		for _, name := range configNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			} else if !errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("failed to stat %q: %w", candidate, err)
			}
		}
		manifest := filepath.Join(dir, manifestName)
		if _, err := os.Stat(manifest); err == nil {
			var m manifestFile
			if _, err := toml.DecodeFile(manifest, &m); err == nil && m.Tool.Steptrace != nil {
				return manifest, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Overrides carries explicit CLI-style settings. Only non-zero fields
// replace config values; a set CLI field always wins.
type Overrides struct {
	LogLevel          string
	LogOutput         string
	VariableMode      string
	LogDir            string
	NoFilterWorkspace bool
	TraceableFuncs    []string
	TraceAsync        bool
	AwaitThresholdMs  float64
	NoTraceTasks      bool
}

// Merge overlays CLI overrides onto cfg field by field and returns cfg.
func Merge(cfg *Config, o Overrides) *Config {
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.LogOutput != "" {
		cfg.LogOutput = o.LogOutput
	}
	if o.VariableMode != "" {
		cfg.VariableMode = o.VariableMode
	}
	if o.LogDir != "" {
		cfg.LogDir = o.LogDir
	}
	if o.NoFilterWorkspace {
		cfg.FilterWorkspace = false
	}
	if len(o.TraceableFuncs) > 0 {
		cfg.TraceableFuncs = o.TraceableFuncs
	}
	if o.TraceAsync {
		cfg.TraceAsync = true
	}
	if o.AwaitThresholdMs > 0 {
		cfg.AwaitThresholdMs = o.AwaitThresholdMs
	}
	if o.NoTraceTasks {
		cfg.TraceTasks = false
	}
	return cfg
}
