package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInitializeAppliesDefaultsWithNoConfigFile(t *testing.T) {
	defer ResetForTesting()
	require.NoError(t, Initialize(filepath.Join(t.TempDir(), "missing.yaml")))

	s := Load()
	require.Equal(t, ":7420", s.Runtime.DaemonTCPAddr)
	require.Equal(t, StorageBackendMemory, s.Storage.Backend)
	require.Equal(t, 10*time.Minute, s.Confirmation.DefaultTimeout)
}

func TestInitializeReadsConfigFile(t *testing.T) {
	defer ResetForTesting()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: redis\nruntime:\n  http_addr: \":9090\"\n"), 0o600))

	require.NoError(t, Initialize(path))
	s := Load()
	require.Equal(t, StorageBackendRedis, s.Storage.Backend)
	require.Equal(t, ":9090", s.Runtime.HTTPAddr)
}

func TestEnvironmentOverridesConfigFile(t *testing.T) {
	defer ResetForTesting()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runtime:\n  http_addr: \":9090\"\n"), 0o600))

	t.Setenv("PRIME_RUNTIME_HTTP_ADDR", ":6000")
	require.NoError(t, Initialize(path))
	require.Equal(t, ":6000", GetRuntimeSettings().HTTPAddr)
}

func TestLocalTomlOverridesMergeOnTopOfYAML(t *testing.T) {
	defer ResetForTesting()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: memory\n"), 0o600))
	overridePath := filepath.Join(dir, "prime.local.toml")
	require.NoError(t, os.WriteFile(overridePath, []byte("[storage]\nbackend = \"redis\"\n"), 0o600))

	require.NoError(t, Initialize(path))
	require.Equal(t, StorageBackendRedis, GetStorageBackend())
}

func TestResetForTestingClearsSingleton(t *testing.T) {
	require.NoError(t, Initialize(""))
	ResetForTesting()
	require.Equal(t, "", GetString("runtime.http_addr"))
}
