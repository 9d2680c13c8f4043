package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/0xcha05/prime/internal/types"
)

// timeEquateOpt lets cmp.Diff compare time.Time by Equal rather than by
// its unexported monotonic/wall fields, which otherwise panic cmp.
var timeEquateOpt = cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })

func TestAddPeriodicComputesInitialNextRunAt(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "tasks.json"), nil, nil)
	require.NoError(t, err)

	before := time.Now()
	task, err := s.Add(types.ScheduledTask{Name: "heartbeat check", Kind: types.SchedulePeriodic, PeriodMinutes: 5, Action: "ping"})
	require.NoError(t, err)
	require.True(t, task.NextRunAt.After(before.Add(4*time.Minute)))
	require.True(t, task.Enabled)
}

func TestAddRejectsInvalidPeriod(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "tasks.json"), nil, nil)
	require.NoError(t, err)
	_, err = s.Add(types.ScheduledTask{Kind: types.SchedulePeriodic, PeriodMinutes: 0})
	require.Error(t, err)
}

func TestTickFiresDueTaskAndAdvancesNextRunAt(t *testing.T) {
	var mu sync.Mutex
	var fired []string
	runner := func(_ context.Context, task *types.ScheduledTask) error {
		mu.Lock()
		fired = append(fired, task.ID)
		mu.Unlock()
		return nil
	}

	s, err := New(filepath.Join(t.TempDir(), "tasks.json"), runner, nil)
	require.NoError(t, err)

	task, err := s.Add(types.ScheduledTask{Kind: types.SchedulePeriodic, PeriodMinutes: 1, Action: "ping"})
	require.NoError(t, err)

	// Force the task overdue.
	require.NoError(t, s.store.update(task.ID, func(t *types.ScheduledTask) { t.NextRunAt = time.Now().Add(-time.Minute) }))

	s.tick(context.Background())

	mu.Lock()
	require.Equal(t, []string{task.ID}, fired)
	mu.Unlock()

	stored := s.List()[0]
	require.Equal(t, 1, stored.RunCount)
	require.True(t, stored.NextRunAt.After(time.Now()))
	require.True(t, stored.Enabled)
}

func TestOneShotDisablesAfterFiring(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "tasks.json"), func(context.Context, *types.ScheduledTask) error { return nil }, nil)
	require.NoError(t, err)

	at := time.Now().Add(-time.Second)
	task, err := s.Add(types.ScheduledTask{Kind: types.ScheduleOneShot, OneShotAt: &at, Action: "remind"})
	require.NoError(t, err)

	s.tick(context.Background())

	stored, ok := find(s.List(), task.ID)
	require.True(t, ok)
	require.False(t, stored.Enabled)
	require.Equal(t, 1, stored.RunCount)
}

func TestCancelDisablesWithoutRemoving(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "tasks.json"), nil, nil)
	require.NoError(t, err)
	task, err := s.Add(types.ScheduledTask{Kind: types.SchedulePeriodic, PeriodMinutes: 5})
	require.NoError(t, err)

	require.NoError(t, s.Cancel(task.ID))
	stored, ok := find(s.List(), task.ID)
	require.True(t, ok)
	require.False(t, stored.Enabled)
}

func TestStorePersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	s1, err := New(path, nil, nil)
	require.NoError(t, err)
	task, err := s1.Add(types.ScheduledTask{Kind: types.SchedulePeriodic, PeriodMinutes: 5, Action: "ping"})
	require.NoError(t, err)

	s2, err := New(path, nil, nil)
	require.NoError(t, err)
	stored, ok := find(s2.List(), task.ID)
	require.True(t, ok)
	if diff := cmp.Diff(task, stored, timeEquateOpt); diff != "" {
		t.Errorf("task did not round-trip through reload (-want +got):\n%s", diff)
	}
}

func TestParseOneShotResolvesRelativePhrase(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	got, err := ParseOneShot("in 20 minutes", now)
	require.NoError(t, err)
	require.Equal(t, now.Add(20*time.Minute), got)
}

func TestParseOneShotRejectsNonTimePhrase(t *testing.T) {
	_, err := ParseOneShot("clean up the workspace", time.Now())
	require.Error(t, err)
}

func find(tasks []types.ScheduledTask, id string) (types.ScheduledTask, bool) {
	for _, t := range tasks {
		if t.ID == id {
			return t, true
		}
	}
	return types.ScheduledTask{}, false
}
