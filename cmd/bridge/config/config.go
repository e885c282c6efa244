// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the bridge CLI configuration.
//
// State lives under one home directory, ~/.agentbridge by default and
// AGENTBRIDGE_HOME when set: the vault registry, vault caches, snapshots,
// logs, and config.yaml. Nothing below cmd resolves the home directory;
// commands pass the resolved paths into the engine explicitly.
//
// Values resolve file first, then AGENTBRIDGE_ environment overrides
// (AGENTBRIDGE_LOG_LEVEL overrides log.level, and so on). A missing config
// file is not an error; the defaults apply.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	// HomeEnv overrides the state directory.
	HomeEnv = "AGENTBRIDGE_HOME"

	// EnvPrefix namespaces environment overrides for config keys.
	EnvPrefix = "AGENTBRIDGE"

	// FileName is the config file inside the home directory.
	FileName = "config.yaml"
)

// Config is the persisted CLI configuration.
type Config struct {
	Defaults DefaultsConfig `mapstructure:"defaults"`
	Log      LogConfig      `mapstructure:"log"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Push     PushConfig     `mapstructure:"push"`
}

// DefaultsConfig holds per-command defaults that flags override.
type DefaultsConfig struct {
	// Targets applied when no --target flag is given. Empty means every
	// registered format.
	Targets []string `mapstructure:"targets" validate:"dive,required"`

	// Policy is the capture conflict policy.
	Policy string `mapstructure:"policy" validate:"omitempty,oneof=ide_wins agent_wins"`

	// Workers caps the hashing and refresh fan-outs. Zero lets the engine
	// pick.
	Workers int `mapstructure:"workers" validate:"gte=0,lte=64"`

	// Excludes are extra glob patterns dropped from every merge.
	Excludes []string `mapstructure:"excludes"`
}

// LogConfig controls the CLI's file logging sink. Console verbosity is
// flag-driven.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `mapstructure:"dir"`
}

// WatchConfig tunes sync --watch.
type WatchConfig struct {
	// Debounce is the quiet window before a batch of file events triggers
	// a re-sync.
	Debounce time.Duration `mapstructure:"debounce" validate:"gte=0"`
}

// PushConfig names the offsite bucket snapshots push to.
type PushConfig struct {
	Bucket string `mapstructure:"bucket" validate:"omitempty,min=3,max=222"`
	Prefix string `mapstructure:"prefix"`

	// CredentialsFile points at a service account key. Empty uses the
	// ambient application default credentials.
	CredentialsFile string `mapstructure:"credentials_file"`
}

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
}

// Validate checks the config against its struct tags.
func (c Config) Validate() error {
	return configValidate.Struct(c)
}

// Home returns the state directory. The directory may not exist yet;
// commands create what they touch.
func Home() (string, error) {
	if h := os.Getenv(HomeEnv); h != "" {
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".agentbridge"), nil
}

// Path returns the config file location inside home.
func Path(home string) string {
	return filepath.Join(home, FileName)
}

// VaultsFile returns the vault registry file inside home.
func VaultsFile(home string) string {
	return filepath.Join(home, "vaults.json")
}

// VaultCacheDir returns the directory remote vaults are cloned under.
func VaultCacheDir(home string) string {
	return filepath.Join(home, "vaults")
}

// SnapshotsDir returns the snapshot store root for one project slug.
func SnapshotsDir(home, projectSlug string) string {
	return filepath.Join(home, "snapshots", projectSlug)
}

// LogsDir returns the default log directory inside home.
func LogsDir(home string) string {
	return filepath.Join(home, "logs")
}

// Default returns the baseline configuration for a home directory.
func Default(home string) Config {
	return Config{
		Defaults: DefaultsConfig{
			Policy: "agent_wins",
		},
		Log: LogConfig{
			Level: "info",
			Dir:   LogsDir(home),
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Load reads home/config.yaml, applies AGENTBRIDGE_ environment overrides,
// and validates the result. A missing file yields the defaults.
func Load(home string) (Config, error) {
	return LoadFrom(Path(home), home)
}

// LoadFrom reads an explicit config file instead of home/config.yaml.
// Defaults still resolve against home so state paths stay in one place.
func LoadFrom(path, home string) (Config, error) {
	def := Default(home)

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so environment-only overrides resolve.
	v.SetDefault("defaults.targets", def.Defaults.Targets)
	v.SetDefault("defaults.policy", def.Defaults.Policy)
	v.SetDefault("defaults.workers", def.Defaults.Workers)
	v.SetDefault("defaults.excludes", def.Defaults.Excludes)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.dir", def.Log.Dir)
	v.SetDefault("watch.debounce", def.Watch.Debounce)
	v.SetDefault("push.bucket", def.Push.Bucket)
	v.SetDefault("push.prefix", def.Push.Prefix)
	v.SetDefault("push.credentials_file", def.Push.CredentialsFile)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error unmarshalling config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// defaultTemplate is what a first run scaffolds. Kept as a template rather
// than a struct marshal so durations stay readable and the commented-out
// keys document themselves.
const defaultTemplate = `# bridge configuration. Environment variables with the AGENTBRIDGE_ prefix
# override any key here, AGENTBRIDGE_LOG_LEVEL for log.level and so on.
defaults:
  # Formats synchronized when --target is not given. Empty means all.
  targets: []
  # Capture conflict policy: agent_wins keeps the canonical tree,
  # ide_wins folds editor-side edits back in.
  policy: %s
  # Parallel hashing and refresh workers. 0 picks a sensible count.
  workers: %d
  excludes: []
log:
  level: %s
  dir: %s
watch:
  debounce: %s
push:
  # Offsite snapshot bucket, e.g. gs://-style bucket name without scheme.
  bucket: ""
  prefix: ""
  credentials_file: ""
`

// EnsureDefault writes the baseline config file when none exists yet and
// reports whether it did. Callers announce the first run, not this package.
func EnsureDefault(home string) (bool, error) {
	path := Path(home)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("error checking config file %s: %w", path, err)
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return false, fmt.Errorf("failed to create the config directory: %w", err)
	}
	def := Default(home)
	data := fmt.Sprintf(defaultTemplate,
		def.Defaults.Policy, def.Defaults.Workers,
		def.Log.Level, def.Log.Dir, def.Watch.Debounce)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return false, fmt.Errorf("failed to write the default config: %w", err)
	}
	return true, nil
}
