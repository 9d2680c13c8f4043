package config

import (
	"fmt"
	"os"
	"strings"
)

// StorageBackend names an implementation of the control plane's KV +
// append-log storage abstraction. cmd/primed does not read storage.backend:
// it uses the Redis store whenever runtime.redis_url is set.
type StorageBackend string

const (
	// StorageBackendMemory keeps everything in the daemon process's own
	// memory; state is lost on restart. Suitable for a single operator
	// running one primed instance.
	StorageBackendMemory StorageBackend = "memory"

	// StorageBackendRedis persists through a Redis instance, shared across
	// restarts and (optionally) multiple primed replicas behind the same
	// runtime.redis_url.
	StorageBackendRedis StorageBackend = "redis"
)

var validStorageBackends = map[StorageBackend]bool{
	StorageBackendMemory: true,
	StorageBackendRedis:  true,
}

// StorageSettings is the resolved storage backend configuration.
type StorageSettings struct {
	Backend StorageBackend
}

// RegisterStorageDefaults installs the storage.* viper defaults.
func RegisterStorageDefaults() {
	setDefault("storage.backend", string(StorageBackendMemory))
}

// GetStorageSettings returns the resolved storage configuration.
func GetStorageSettings() StorageSettings {
	return StorageSettings{Backend: GetStorageBackend()}
}

// GetStorageBackend retrieves the storage.backend configuration.
// Returns the configured backend, or StorageBackendMemory (default) if not
// set or invalid. Logs a warning to stderr on an invalid value rather than
// failing boot outright — an operator typo shouldn't take the daemon down
// when a safe default exists.
//
// Config key: storage.backend
// Valid values: memory, redis
func GetStorageBackend() StorageBackend {
	value := GetString("storage.backend")
	if value == "" {
		return StorageBackendMemory
	}

	backend := StorageBackend(strings.ToLower(strings.TrimSpace(value)))
	if !validStorageBackends[backend] {
		fmt.Fprintf(os.Stderr, "Warning: invalid storage.backend %q in config (valid: memory, redis), using default 'memory'\n", value)
		return StorageBackendMemory
	}
	return backend
}
