package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsTrustedDaemonEmptyRosterTrustsEveryone(t *testing.T) {
	require.True(t, IsTrustedDaemon(nil, "anything"))
}

func TestIsTrustedDaemonChecksMembership(t *testing.T) {
	roster := []string{"macbook", "office-desktop"}
	require.True(t, IsTrustedDaemon(roster, "macbook"))
	require.False(t, IsTrustedDaemon(roster, "stranger"))
}

func TestAddListRemoveTrustedDaemonRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, AddTrustedDaemon(path, "macbook"))
	require.NoError(t, AddTrustedDaemon(path, "office-desktop"))

	list, err := ListTrustedDaemons(path)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"macbook", "office-desktop"}, list)

	require.NoError(t, RemoveTrustedDaemon(path, "macbook"))
	list, err = ListTrustedDaemons(path)
	require.NoError(t, err)
	require.Equal(t, []string{"office-desktop"}, list)
}

func TestAddTrustedDaemonRejectsDuplicate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, AddTrustedDaemon(path, "macbook"))
	require.Error(t, AddTrustedDaemon(path, "macbook"))
}

func TestRemoveTrustedDaemonRejectsMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, AddTrustedDaemon(path, "macbook"))
	require.Error(t, RemoveTrustedDaemon(path, "not-there"))
}
