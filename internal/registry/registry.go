// Package registry owns the lifetime of every connected daemon: identity
// assignment, capability bookkeeping, liveness, and name/ID resolution.
// Grounded on steveyegge/beads' internal/registry RWMutex-guarded
// snapshot pattern, generalized from cross-backend agent-session discovery
// to the control plane's own daemon bookkeeping.
package registry

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/0xcha05/prime/internal/types"
)

// Resolution is the result of Resolve: either a connected daemon handle, or
// a signal that the caller should execute the operation locally.
type Resolution struct {
	Handle     *types.DaemonHandle
	ExecLocal  bool
}

// Registry holds every currently-connected daemon handle. All mutating
// operations hold a single lock; reads return a snapshot copy so no
// operation blocks on I/O while the lock is held.
type Registry struct {
	mu            sync.RWMutex
	byID          map[string]*types.DaemonHandle
	byName        map[string]string // name -> daemon_id
	nextID        uint64
	nextVer       uint64
	registrationKey string
	hostname      string

	// onDisconnect is invoked (outside the lock) for every handle removed by
	// Unregister, so the multiplexer can cancel that daemon's pending
	// commands without the registry needing to know about command plumbing.
	onDisconnect func(daemonID string)
}

// New creates an empty registry. registrationKey is the operator-configured
// pre-shared key that register() validates against.
func New(registrationKey string) *Registry {
	hostname, _ := os.Hostname()
	return &Registry{
		byID:            make(map[string]*types.DaemonHandle),
		byName:          make(map[string]string),
		registrationKey: registrationKey,
		hostname:        hostname,
	}
}

// OnDisconnect registers a callback invoked after a handle is removed.
func (r *Registry) OnDisconnect(fn func(daemonID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDisconnect = fn
}

// RegisterResult is the structured ack returned to a newly-registering daemon.
type RegisterResult struct {
	Handle  *types.DaemonHandle
	Success bool
	Reason  string // "invalid_key" | "name_conflict" | ""
}

// Register atomically assigns a new daemon_id and installs the handle.
// Per SPEC_FULL.md §9 Open Question 1, a name collision with a currently
// connected daemon rejects the newcomer rather than evicting the existing
// handle — a silent evict could orphan live in-flight commands.
func (r *Registry) Register(registrationKey, name, hostname string, capabilities []string, isPrivileged bool) RegisterResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registrationKey != "" && registrationKey != r.registrationKey {
		return RegisterResult{Success: false, Reason: string(types.ErrInvalidKey)}
	}
	if _, exists := r.byName[name]; exists {
		return RegisterResult{Success: false, Reason: string(types.ErrNameConflict)}
	}

	r.nextID++
	id := fmt.Sprintf("daemon-%04d", r.nextID)
	now := time.Now()
	r.nextVer++
	h := &types.DaemonHandle{
		DaemonID:      id,
		Name:          name,
		Hostname:      hostname,
		Capabilities:  append([]string(nil), capabilities...),
		IsPrivileged:  isPrivileged,
		ConnectedAt:   now,
		LastSeen:      now,
		RegisteredVer: r.nextVer,
	}
	r.byID[id] = h
	r.byName[name] = id
	return RegisterResult{Handle: h, Success: true}
}

// Unregister removes a handle. The registry's own caller (the multiplexer's
// reader task) is responsible for cancelling pending commands; Unregister
// only fires the OnDisconnect hook so that can happen without a dependency
// cycle.
func (r *Registry) Unregister(daemonID string) {
	r.mu.Lock()
	h, ok := r.byID[daemonID]
	if ok {
		delete(r.byID, daemonID)
		delete(r.byName, h.Name)
	}
	cb := r.onDisconnect
	r.mu.Unlock()

	if ok && cb != nil {
		cb(daemonID)
	}
}

// Get returns a copy of the handle for daemonID, or nil if not connected.
func (r *Registry) Get(daemonID string) *types.DaemonHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byID[daemonID]
	if !ok {
		return nil
	}
	cp := *h
	return &cp
}

// GetByName returns a copy of the handle registered under name, or nil.
func (r *Registry) GetByName(name string) *types.DaemonHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil
	}
	cp := *r.byID[id]
	return &cp
}

// List returns a snapshot of every connected handle.
func (r *Registry) List() []*types.DaemonHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.DaemonHandle, 0, len(r.byID))
	for _, h := range r.byID {
		cp := *h
		out = append(out, &cp)
	}
	return out
}

// Resolve accepts a literal daemon_id, a registered name, or the reserved
// local-host alias ("prime", "self", "local", or the current hostname) and
// returns either a connected handle or a sentinel meaning "execute locally".
func (r *Registry) Resolve(nameOrID string) (Resolution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch nameOrID {
	case types.AliasPrime, types.AliasSelf, types.AliasLocal, r.hostname:
		return Resolution{ExecLocal: true}, true
	}
	if h, ok := r.byID[nameOrID]; ok {
		cp := *h
		return Resolution{Handle: &cp}, true
	}
	if id, ok := r.byName[nameOrID]; ok {
		cp := *r.byID[id]
		return Resolution{Handle: &cp}, true
	}
	return Resolution{}, false
}

// UpdateHeartbeat bumps last_seen and overwrites the liveness gauges for a
// connected daemon. Returns false if the daemon is no longer connected.
func (r *Registry) UpdateHeartbeat(daemonID string, g types.Gauges) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byID[daemonID]
	if !ok {
		return false
	}
	h.LastSeen = time.Now()
	h.Gauges = g
	return true
}

// Names returns the set of names currently used for "available daemons"
// error messages (e.g. a tool call naming an unknown machine).
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	return out
}
