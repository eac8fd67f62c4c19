// Package config loads the fixed, startup-only configuration named in the
// core's external interface: the watched-port catalogue, the
// infrastructure token list, the system-critical name list, and the
// browser-family list. There is no persisted runtime state here, only
// optional static configuration read once at process start.
package config

import (
	"errors"
	"os"

	"github.com/spf13/viper"

	"github.com/devtab-sh/secure-dev-manager/internal/classify"
)

// FileConfig is the top-level TOML structure. Every field is optional; an
// empty or missing field falls back to the corresponding built-in default.
type FileConfig struct {
	WatchedPorts         []int    `toml:"watched_ports" mapstructure:"watched_ports"`
	InfrastructureTokens []string `toml:"infrastructure_tokens" mapstructure:"infrastructure_tokens"`
	SystemCriticalNames  []string `toml:"system_critical_names" mapstructure:"system_critical_names"`
	ScriptInterpreters   []string `toml:"script_interpreters" mapstructure:"script_interpreters"`
	BrowserLikeNames     []string   `toml:"browser_like_names" mapstructure:"browser_like_names"`
	Log                  *LogConfig `toml:"log" mapstructure:"log"`
}

// LogConfig mirrors the teacher's per-process log configuration, narrowed
// to the single rotating debug-log sink this server writes.
type LogConfig struct {
	Path       string `toml:"path" mapstructure:"path"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// Config is the resolved, in-memory configuration used by every component.
type Config struct {
	WatchedPorts []int
	Tokens       classify.TokenSet
	Log          LogConfig
}

// defaultLogPath is the debug log file named in the core's external
// interface.
const defaultLogPath = "secure-dev-manager_debug.log"

// Default returns the built-in configuration reproducing spec defaults,
// used when no TOML file is present or a field is left empty.
func Default() Config {
	return Config{
		WatchedPorts: []int{3000, 5000, 8000, 8080, 5173, 4200},
		Tokens:       classify.DefaultTokenSet(),
		Log: LogConfig{
			Path:       defaultLogPath,
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Load reads path (a TOML file) via viper and overlays any non-empty
// fields onto the built-in defaults. A missing path is not an error: the
// caller gets Default() back unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return Config{}, err
	}

	if len(fc.WatchedPorts) > 0 {
		cfg.WatchedPorts = fc.WatchedPorts
	}
	if len(fc.InfrastructureTokens) > 0 {
		cfg.Tokens.InfrastructureTokens = fc.InfrastructureTokens
	}
	if len(fc.SystemCriticalNames) > 0 {
		cfg.Tokens.SystemCriticalNames = fc.SystemCriticalNames
	}
	if len(fc.ScriptInterpreters) > 0 {
		cfg.Tokens.ScriptInterpreters = fc.ScriptInterpreters
	}
	if len(fc.BrowserLikeNames) > 0 {
		cfg.Tokens.BrowserLikeNames = fc.BrowserLikeNames
	}
	if fc.Log != nil {
		if fc.Log.Path != "" {
			cfg.Log.Path = fc.Log.Path
		}
		if fc.Log.MaxSizeMB > 0 {
			cfg.Log.MaxSizeMB = fc.Log.MaxSizeMB
		}
		if fc.Log.MaxBackups > 0 {
			cfg.Log.MaxBackups = fc.Log.MaxBackups
		}
		if fc.Log.MaxAgeDays > 0 {
			cfg.Log.MaxAgeDays = fc.Log.MaxAgeDays
		}
		cfg.Log.Compress = fc.Log.Compress
	}

	return cfg, nil
}
