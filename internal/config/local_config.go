package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig is the subset of config.yaml fields that need to be read
// directly from the file rather than through the viper singleton — needed
// before Initialize has run, or when checking a different .prime directory
// than the one viper was pointed at.
type LocalConfig struct {
	StorageBackend string `yaml:"storage.backend"`
	LogLevel       string `yaml:"runtime.log_level"`
	DaemonTCPAddr  string `yaml:"runtime.daemon_tcp_addr"`
}

// LoadLocalConfig reads and parses config.yaml directly from the given
// .prime directory, bypassing the viper singleton. Returns an empty (not
// nil) LocalConfig if the file doesn't exist or fails to parse.
func LoadLocalConfig(primeDir string) *LocalConfig {
	configPath := filepath.Join(primeDir, "config.yaml")
	data, err := os.ReadFile(configPath) // #nosec G304 - config file path from primeDir
	if err != nil {
		return &LocalConfig{}
	}

	var cfg LocalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &LocalConfig{}
	}
	return &cfg
}

// LoadLocalConfigWithEnv reads config.yaml and applies PRIME_* environment
// variable overrides, which take precedence over the file.
func LoadLocalConfigWithEnv(primeDir string) *LocalConfig {
	cfg := LoadLocalConfig(primeDir)
	if envBackend := os.Getenv("PRIME_STORAGE_BACKEND"); envBackend != "" {
		cfg.StorageBackend = envBackend
	}
	if envLevel := os.Getenv("PRIME_LOG_LEVEL"); envLevel != "" {
		cfg.LogLevel = envLevel
	}
	return cfg
}

// GetLocalStorageBackend reads storage.backend from the local config.yaml,
// checking PRIME_STORAGE_BACKEND first.
func GetLocalStorageBackend(primeDir string) string {
	return LoadLocalConfigWithEnv(primeDir).StorageBackend
}
