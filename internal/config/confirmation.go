package config

import "time"

// Confirmation config keys for the wait/remind/give-up timing around a
// pending confirmation (ask_user / SendConfirmation). They are loaded into
// Settings only; the brain loop does not read them.
const (
	KeyConfirmationDefaultTimeout     = "confirmation.default-timeout"
	KeyConfirmationRemindInterval     = "confirmation.remind-interval"
	KeyConfirmationMaxReminders       = "confirmation.max-reminders"
	KeyConfirmationAutoApproveOnTimeout = "confirmation.auto-approve-on-timeout"
)

// ConfirmationSettings holds the configured wait/remind/give-up values for a
// pending confirmation. No code outside this package reads them.
type ConfirmationSettings struct {
	// DefaultTimeout is how long to wait for a reply before giving up.
	DefaultTimeout time.Duration

	// RemindInterval is how often to re-send the confirmation prompt while
	// waiting.
	RemindInterval time.Duration

	// MaxReminders caps how many times the prompt is re-sent before timeout.
	MaxReminders int

	// AutoApproveOnTimeout controls what happens when DefaultTimeout elapses
	// with no reply: true proceeds with the action anyway, false (default)
	// cancels it. Per SPEC_FULL.md's confirmation-gating requirement, a
	// silent timeout must never be read as consent, so this defaults off.
	AutoApproveOnTimeout bool
}

// RegisterConfirmationDefaults installs viper defaults for confirmation.*.
// Called from Initialize.
func RegisterConfirmationDefaults() {
	setDefault(KeyConfirmationDefaultTimeout, "10m")
	setDefault(KeyConfirmationRemindInterval, "2m")
	setDefault(KeyConfirmationMaxReminders, 2)
	setDefault(KeyConfirmationAutoApproveOnTimeout, false)
}

// GetConfirmationSettings returns the current confirmation configuration.
func GetConfirmationSettings() ConfirmationSettings {
	return ConfirmationSettings{
		DefaultTimeout:       GetDuration(KeyConfirmationDefaultTimeout),
		RemindInterval:       GetDuration(KeyConfirmationRemindInterval),
		MaxReminders:         GetInt(KeyConfirmationMaxReminders),
		AutoApproveOnTimeout: GetBool(KeyConfirmationAutoApproveOnTimeout),
	}
}

// GetConfirmationTimeout returns the configured confirmation timeout.
func GetConfirmationTimeout() time.Duration {
	return GetDuration(KeyConfirmationDefaultTimeout)
}

// GetConfirmationMaxReminders returns the configured reminder cap.
func GetConfirmationMaxReminders() int {
	return GetInt(KeyConfirmationMaxReminders)
}
