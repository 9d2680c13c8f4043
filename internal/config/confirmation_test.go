package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetConfirmationSettingsDefaults(t *testing.T) {
	defer ResetForTesting()
	require.NoError(t, Initialize(""))
	s := GetConfirmationSettings()
	require.Equal(t, 10*time.Minute, s.DefaultTimeout)
	require.Equal(t, 2*time.Minute, s.RemindInterval)
	require.Equal(t, 2, s.MaxReminders)
	require.False(t, s.AutoApproveOnTimeout)
}

func TestGetConfirmationTimeoutHonorsOverride(t *testing.T) {
	defer ResetForTesting()
	require.NoError(t, Initialize(""))
	setDefault(KeyConfirmationDefaultTimeout, "1m")
	require.Equal(t, time.Minute, GetConfirmationTimeout())
}
