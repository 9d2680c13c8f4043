// Package scheduler fires one-shot, periodic, and cron-scheduled tasks off
// a durable single-file store. Grounded on beads' internal/controller
// reconcile loop (run-once-immediately, then time.Ticker until ctx.Done)
// generalized from a fixed reconcile action to an ActionRunner dispatched
// per due task, and on internal/slackbot.StateManager's atomic
// temp-file-then-rename JSON persistence.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/0xcha05/prime/internal/types"
)

// TickInterval is how often the scheduler checks for due tasks.
const TickInterval = 30 * time.Second

// ActionRunner executes one fired task's action. Errors are logged; they
// never stop the tick loop or prevent the task's next occurrence from being
// computed.
type ActionRunner func(ctx context.Context, task *types.ScheduledTask) error

// Scheduler owns the durable task store and the tick loop that fires due
// tasks.
type Scheduler struct {
	log    *zap.Logger
	store  *store
	run    ActionRunner
	parser cron.Parser
}

// New loads (or creates) the task store at path and wires runner to execute
// fired tasks.
func New(path string, runner ActionRunner, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s, err := openStore(path)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		log:    log,
		store:  s,
		run:    runner,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}, nil
}

// Add validates task, computes its initial NextRunAt, persists it, and
// returns the stored copy (with ID assigned if the caller left it blank).
func (s *Scheduler) Add(task types.ScheduledTask) (*types.ScheduledTask, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.Enabled = true
	now := time.Now()
	next, err := s.computeNext(task, now)
	if err != nil {
		return nil, err
	}
	task.NextRunAt = next
	return s.store.upsert(task)
}

// Cancel disables a task so it will never fire again; it is not removed
// from the store, preserving RunCount/LastRunAt history.
func (s *Scheduler) Cancel(id string) error {
	return s.store.update(id, func(t *types.ScheduledTask) { t.Enabled = false })
}

// List returns every task currently in the store.
func (s *Scheduler) List() []types.ScheduledTask {
	return s.store.list()
}

// Run ticks every TickInterval until ctx is done, firing any task whose
// NextRunAt has passed. The first check runs immediately, matching the
// "run once, then wait" reconcile idiom used elsewhere in this control
// plane.
func (s *Scheduler) Run(ctx context.Context) error {
	s.tick(ctx)
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()
	for _, task := range s.store.list() {
		if !task.Enabled || task.NextRunAt.After(now) {
			continue
		}
		s.fire(ctx, task, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, task types.ScheduledTask, firedAt time.Time) {
	if s.run != nil {
		if err := s.run(ctx, &task); err != nil {
			s.log.Warn("scheduler: action failed", zap.String("task_id", task.ID), zap.Error(err))
		}
	}

	next, err := s.computeNext(task, firedAt)
	enabled := task.Kind != types.ScheduleOneShot
	if err != nil {
		s.log.Error("scheduler: failed to compute next run", zap.String("task_id", task.ID), zap.Error(err))
		enabled = false
		next = task.NextRunAt
	}

	_ = s.store.update(task.ID, func(t *types.ScheduledTask) {
		t.LastRunAt = &firedAt
		t.RunCount++
		t.NextRunAt = next
		t.Enabled = enabled
	})
}

// computeNext returns the next NextRunAt per task.Kind: strictly after
// 'from' for periodic and cron tasks. A one-shot task never recurs; it
// returns OneShotAt unchanged and the caller clears Enabled.
func (s *Scheduler) computeNext(task types.ScheduledTask, from time.Time) (time.Time, error) {
	switch task.Kind {
	case types.SchedulePeriodic:
		if task.PeriodMinutes <= 0 {
			return time.Time{}, fmt.Errorf("scheduler: task %s has non-positive period_minutes", task.ID)
		}
		return from.Add(time.Duration(task.PeriodMinutes) * time.Minute), nil
	case types.ScheduleCron:
		sched, err := s.parser.Parse(task.CronExpression)
		if err != nil {
			return time.Time{}, fmt.Errorf("scheduler: parse cron expression for %s: %w", task.ID, err)
		}
		return sched.Next(from), nil
	case types.ScheduleOneShot:
		if task.OneShotAt == nil {
			return time.Time{}, fmt.Errorf("scheduler: one-shot task %s missing one_shot_at", task.ID)
		}
		return *task.OneShotAt, nil
	default:
		return time.Time{}, fmt.Errorf("scheduler: unknown schedule kind %q", task.Kind)
	}
}

// store is the durable single-file task store: the whole task set is
// rewritten atomically on every mutation, matching the scale this control
// plane expects (tens to low hundreds of scheduled tasks, not a queue of
// millions).
type store struct {
	path string
	mu   sync.Mutex
	byID map[string]types.ScheduledTask
}

func openStore(path string) (*store, error) {
	s := &store{path: path, byID: make(map[string]types.ScheduledTask)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("scheduler: read task store: %w", err)
	}
	var tasks []types.ScheduledTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("scheduler: parse task store: %w", err)
	}
	for _, t := range tasks {
		s.byID[t.ID] = t
	}
	return s, nil
}

func (s *store) upsert(task types.ScheduledTask) (*types.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[task.ID] = task
	if err := s.flushLocked(); err != nil {
		return nil, err
	}
	stored := s.byID[task.ID]
	return &stored, nil
}

func (s *store) update(id string, mutate func(*types.ScheduledTask)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("scheduler: unknown task %s", id)
	}
	mutate(&t)
	s.byID[id] = t
	return s.flushLocked()
}

func (s *store) list() []types.ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ScheduledTask, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, t)
	}
	return out
}

func (s *store) flushLocked() error {
	tasks := make([]types.ScheduledTask, 0, len(s.byID))
	for _, t := range s.byID {
		tasks = append(tasks, t)
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("scheduler: marshal task store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("scheduler: write temp task store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("scheduler: rename task store: %w", err)
	}
	return nil
}
