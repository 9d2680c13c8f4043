package chatadapter

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"go.uber.org/zap"
)

// cursorState is the persisted form of a Poller's position, written
// whenever a successful fetch advances the cursor so a restart never
// replays old messages.
type cursorState struct {
	Cursor  string    `json:"cursor"`
	SavedAt time.Time `json:"saved_at"`
}

// Fetcher retrieves updates since cursor (empty on first call) and returns
// the messages plus the cursor to resume from on the next call.
type Fetcher interface {
	FetchUpdates(ctx context.Context, cursor string) (msgs []Inbound, nextCursor string, err error)
}

// Poller implements pull-mode ingestion: it long-polls a Fetcher in a loop,
// persisting its cursor to cursorPath whenever a fetch advances it, and
// retries a failed fetch after the fixed poll interval (no backoff). Grounded on beads' internal/slackbot
// socketmode reconnect loop (Run blocks until ctx is done, logging and
// continuing past connection errors), generalized from socketmode's
// push-style event channel to an explicit fetch-then-persist-cursor poll.
type Poller struct {
	log        *zap.Logger
	adapter    *Adapter
	fetcher    Fetcher
	cursorPath string
	interval   time.Duration
}

// NewPoller returns a Poller that persists its cursor at cursorPath and
// polls fetcher every interval.
func NewPoller(adapter *Adapter, fetcher Fetcher, cursorPath string, interval time.Duration, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{log: log, adapter: adapter, fetcher: fetcher, cursorPath: cursorPath, interval: interval}
}

// Run polls until ctx is canceled. A failed fetch is logged and retried
// after interval; it never stops the loop.
func (p *Poller) Run(ctx context.Context) error {
	cursor := p.loadCursor()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		msgs, next, err := p.fetcher.FetchUpdates(ctx, cursor)
		if err != nil {
			p.log.Warn("chatadapter: poll fetch failed, will retry", zap.Error(err))
		} else {
			for _, msg := range msgs {
				if err := p.adapter.Ingest(ctx, msg); err != nil {
					p.log.Error("chatadapter: ingest failed", zap.Error(err))
				}
			}
			if next != "" && next != cursor {
				cursor = next
				p.saveCursor(cursor)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) loadCursor() string {
	data, err := os.ReadFile(p.cursorPath)
	if err != nil {
		return ""
	}
	var state cursorState
	if err := json.Unmarshal(data, &state); err != nil {
		p.log.Warn("chatadapter: ignoring corrupt cursor file", zap.Error(err))
		return ""
	}
	return state.Cursor
}

func (p *Poller) saveCursor(cursor string) {
	data, err := json.Marshal(cursorState{Cursor: cursor, SavedAt: time.Now()})
	if err != nil {
		p.log.Error("chatadapter: marshal cursor", zap.Error(err))
		return
	}
	tmp := p.cursorPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		p.log.Error("chatadapter: write temp cursor file", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, p.cursorPath); err != nil {
		os.Remove(tmp)
		p.log.Error("chatadapter: rename cursor file", zap.Error(err))
	}
}
