// Package config is the control plane's single configuration surface: one
// viper-backed singleton fed by defaults, an optional config.yaml, a
// machine-local prime.local.toml override file, and PRIME_* environment
// variables (highest precedence). Secrets (API keys, bot tokens, the
// registration handshake key) are expected to arrive only via environment
// variables — config.yaml is version-control-friendly, so anything that
// must never be committed stays out of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var v *viper.Viper

// Settings is the fully-resolved configuration snapshot assembled from the
// viper singleton after Initialize has run.
type Settings struct {
	Runtime      RuntimeSettings
	Confirmation ConfirmationSettings
	Storage      StorageSettings
}

// Initialize builds the viper singleton and loads configuration in priority
// order: defaults, then config.yaml (or configPath if given), then
// prime.local.toml overrides, then PRIME_* environment variables.
//
// A missing config.yaml is not an error — every setting has a default and
// env vars can supply the rest, which matters for container deployments
// that carry no mounted file at all.
func Initialize(configPath string) error {
	v = viper.New()
	v.SetEnvPrefix("PRIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, rk := range RuntimeKeys {
		if rk.EnvVar != "" {
			_ = v.BindEnv(rk.Key, rk.EnvVar)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := projectConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".prime"))
		}
	}

	RegisterRuntimeDefaults()
	RegisterConfirmationDefaults()
	RegisterStorageDefaults()

	if err := v.ReadInConfig(); err != nil {
		if !isConfigFileNotFound(err) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	if err := applyLocalOverrides(configPath); err != nil {
		return err
	}

	return nil
}

// ResetForTesting drops the package-level viper singleton so a test can
// call Initialize again from a clean slate.
func ResetForTesting() {
	v = nil
}

// Load assembles a Settings snapshot from the current viper state.
// Initialize must have run first; an un-initialized package returns the
// zero-value defaults for every field.
func Load() Settings {
	return Settings{
		Runtime:      GetRuntimeSettings(),
		Confirmation: GetConfirmationSettings(),
		Storage:      GetStorageSettings(),
	}
}

// Watch installs a live-reload hook driven by fsnotify (via viper's
// WatchConfig): whenever the active config file changes on disk, onChange
// fires with the freshly reloaded Settings, letting a long-running caller
// pick up operator edits to config.yaml without a restart. cmd/primed does
// not install it.
func Watch(onChange func(Settings)) {
	if v == nil {
		return
	}
	v.OnConfigChange(func(_ fsnotify.Event) {
		onChange(Load())
	})
	v.WatchConfig()
}

func applyLocalOverrides(configPath string) error {
	dir := "."
	switch {
	case configPath != "":
		dir = filepath.Dir(configPath)
	default:
		if d, err := projectConfigDir(); err == nil {
			dir = d
		}
	}

	overridePath := filepath.Join(dir, "prime.local.toml")
	if _, err := os.Stat(overridePath); err != nil {
		return nil
	}

	var overrides map[string]interface{}
	if _, err := toml.DecodeFile(overridePath, &overrides); err != nil {
		return fmt.Errorf("decode %s: %w", overridePath, err)
	}
	return v.MergeConfigMap(overrides)
}

func isConfigFileNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

// projectConfigDir walks up from the working directory looking for a
// .prime directory, mirroring how a git-style tool finds its repo root.
func projectConfigDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		p := filepath.Join(dir, ".prime")
		if info, statErr := os.Stat(p); statErr == nil && info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("no .prime directory found above %s", cwd)
}

// Generic accessors. Every sub-settings file (runtime.go, confirmation.go,
// storage.go) is built on these rather than touching the viper singleton
// directly, so ResetForTesting fully isolates test runs.

func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

func GetStringSlice(key string) []string {
	if v == nil {
		return nil
	}
	return v.GetStringSlice(key)
}

func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

func setDefault(key string, value interface{}) {
	if v == nil {
		return
	}
	v.SetDefault(key, value)
}
