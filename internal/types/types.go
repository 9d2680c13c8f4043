// Package types holds the shared data model for Prime's control plane:
// the structures owned by the registry, the command multiplexer, the event
// bus, the chat transcript store, the scheduler, and the workspace manager.
package types

import (
	"encoding/json"
	"time"
)

// Reserved aliases that registry.Resolve treats as "execute locally" rather
// than routing to a connected daemon.
const (
	AliasPrime = "prime"
	AliasSelf  = "self"
	AliasLocal = "local"
)

// Gauges is the liveness telemetry a daemon reports on every heartbeat.
type Gauges struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
	ActiveTasks   int     `json:"active_tasks"`
}

// DaemonHandle is the registry's record for one connected daemon. Owned
// exclusively by the registry from registration to disconnect; a daemon_id
// is never reused once assigned.
type DaemonHandle struct {
	DaemonID      string            `json:"daemon_id"`
	Name          string            `json:"name"`
	Hostname      string            `json:"hostname"`
	Capabilities  []string          `json:"capabilities"`
	IsPrivileged  bool              `json:"is_privileged"`
	Labels        map[string]string `json:"labels,omitempty"`
	ConnectedAt   time.Time         `json:"connected_at"`
	LastSeen      time.Time         `json:"last_seen"`
	Gauges        Gauges            `json:"gauges"`
	RegisteredVer uint64            `json:"-"` // monotone counter, breaks stale-snapshot races
}

// HasCapability reports whether the handle advertises the given capability tag.
func (h *DaemonHandle) HasCapability(cap string) bool {
	for _, c := range h.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// PendingCommand is the multiplexer's bookkeeping for one in-flight command.
// Its completion slot is fulfilled exactly once: by a result, a timeout, a
// cancellation, or a disconnect.
type PendingCommand struct {
	CommandID  string
	DaemonID   string
	SubmitTime time.Time
	Done       chan CommandOutcome
}

// CommandOutcome is what ultimately fulfills a PendingCommand's completion slot.
type CommandOutcome struct {
	Result json.RawMessage
	Err    error
}

// Event is an immutable record routed through the event bus. Source and
// Type are intentionally free-form strings, not a closed enum: the bus is
// meant to be extended by new producers without touching its dispatch core.
type Event struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Context   EventContext    `json:"context"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventContext carries routing metadata alongside an Event, notably the
// chat the event belongs to (if any).
type EventContext struct {
	ChatID    string `json:"chat_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// TranscriptEntry is one row of a chat's append-only transcript log.
// Entries with empty or whitespace-only Content are rejected at write time.
type TranscriptEntry struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ScheduleKind discriminates which of the three mutually-exclusive firing
// rules a ScheduledTask uses.
type ScheduleKind string

const (
	SchedulePeriodic ScheduleKind = "period_minutes"
	ScheduleCron     ScheduleKind = "cron_expression"
	ScheduleOneShot  ScheduleKind = "one_shot_at"
)

// ScheduledTask is one row of the scheduler's durable task store.
type ScheduledTask struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	Kind            ScheduleKind `json:"kind"`
	PeriodMinutes   int          `json:"period_minutes,omitempty"`
	CronExpression  string       `json:"cron_expression,omitempty"`
	OneShotAt       *time.Time   `json:"one_shot_at,omitempty"`
	NextRunAt       time.Time    `json:"next_run_at"`
	LastRunAt       *time.Time   `json:"last_run_at,omitempty"`
	RunCount        int          `json:"run_count"`
	Enabled         bool         `json:"enabled"`
	Action          string       `json:"action"`
	ChatID          string       `json:"chat_id,omitempty"`
	ResponseContext EventContext `json:"response_context"`
}

// WorkspaceStep records one recorded step of a workspace's multi-step task.
type WorkspaceStep struct {
	Number      int       `json:"number"`
	Description string    `json:"description"`
	Command     string    `json:"command,omitempty"`
	OutputFiles []string  `json:"output_files,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Workspace is the on-disk state of one isolated multi-step task directory.
// The on-disk state.json is authoritative; this struct mirrors it exactly.
type Workspace struct {
	ID          string          `json:"id"`
	Root        string          `json:"root"`
	CreatedAt   time.Time       `json:"created_at"`
	SourceFiles []string        `json:"source_files"`
	Steps       []WorkspaceStep `json:"steps"`
}

const (
	WorkspaceInputDir  = "input"
	WorkspaceStepsDir  = "steps"
	WorkspaceOutputDir = "output"
	WorkspaceStateFile = "state.json"
)

// LearnedPattern short-circuits the brain loop for a well-known request,
// bypassing a model round entirely.
type LearnedPattern struct {
	Trigger               string         `json:"trigger"`
	MatchPattern          string         `json:"match_pattern"`
	TargetAction          string         `json:"target_action"`
	TargetDaemon          string         `json:"target_daemon,omitempty"`
	Parameters            map[string]any `json:"parameters,omitempty"`
	RequiresConfirmation  bool           `json:"requires_confirmation"`
	UsageCount            int            `json:"usage_count"`
	LastUsed              time.Time      `json:"last_used"`
	CreatedAt             time.Time      `json:"created_at"`
	Source                string         `json:"source"` // "manual" | "auto-promoted"
}

// ErrorKind names the taxonomy of control-plane error conditions from
// SPEC_FULL.md §7. It is carried as a structured log/audit field, never
// embedded positionally in a message string.
type ErrorKind string

const (
	ErrInvalidFrame        ErrorKind = "invalid_frame"
	ErrInvalidKey          ErrorKind = "invalid_key"
	ErrNameConflict        ErrorKind = "name_conflict"
	ErrDaemonNotConnected  ErrorKind = "daemon_not_connected"
	ErrCommandTimedOut     ErrorKind = "command_timed_out"
	ErrDaemonDisconnected  ErrorKind = "daemon_disconnected"
	ErrToolFailed          ErrorKind = "tool_failed"
	ErrModelError          ErrorKind = "model_error"
	ErrUnauthorized        ErrorKind = "unauthorized"
	ErrStateWriteFailed    ErrorKind = "state_write_failed"
)
