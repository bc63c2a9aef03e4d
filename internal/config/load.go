package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal with "did you mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads path if it exists, otherwise returns the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := firstNonEmpty(cli.ConfigPath, env.ConfigPath, DefaultConfigPath())

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	cfg.Provider = firstNonEmpty(cli.Provider, env.Provider, cfg.Provider)
	cfg.Folder = firstNonEmpty(cli.Folder, env.Folder, cfg.Folder)
	cfg.LogFile = expandTilde(cfg.LogFile)

	// Overrides can reintroduce invalid values.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolve(cfg, cfgPath)
}

// resolve parses the string-typed values of an already validated cfg.
func resolve(cfg *Config, path string) (*Resolved, error) {
	maxBytes, err := ParseSize(cfg.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("max_file_size: %w", err)
	}

	connect, err := time.ParseDuration(cfg.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect_timeout: %w", err)
	}

	data, err := time.ParseDuration(cfg.DataTimeout)
	if err != nil {
		return nil, fmt.Errorf("data_timeout: %w", err)
	}

	return &Resolved{
		Config:       *cfg,
		Path:         path,
		MaxFileBytes: maxBytes,
		Timeouts:     Timeouts{Connect: connect, Data: data},
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

// Schedule returns the [[schedule]] entry called name.
func (r *Resolved) Schedule(name string) (Schedule, bool) {
	for _, s := range r.Schedules {
		if s.Name == name {
			return s, true
		}
	}

	return Schedule{}, false
}

// NotifyEnabled reports whether failure notifications are configured.
func (r *Resolved) NotifyEnabled() bool {
	return r.Notify.SNSTopic != ""
}
