package core

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// record is one user's authoritative directory entry.
type record struct {
	name          string
	state         PresenceState
	previousState PresenceState
	conn          Conn
	addr          string
	lastActivity  time.Time
}

// Member is a point-in-time copy of one directory record.
type Member struct {
	Name  string
	State PresenceState
	Addr  string
	Conn  Conn
}

// StateChange is one presence delta due for broadcast.
type StateChange struct {
	Name  string
	State PresenceState
}

// Directory is the authoritative user registry. Records live under one
// mutex for their whole lifetime; identity is the username. Callers
// snapshot under the lock and send frames only after release.
type Directory struct {
	mu    sync.RWMutex
	users map[string]*record
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{users: make(map[string]*record)}
}

// UpsertOnJoin registers conn under name. A record left behind by an
// earlier session is revived with its previous presence, INACTIVE
// counting as ACTIVE. A name whose conn is still open is never
// overwritten.
func (d *Directory) UpsertOnJoin(name string, conn Conn, addr string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[name]
	if !ok {
		d.users[name] = &record{
			name:          name,
			state:         StateActive,
			previousState: StateActive,
			conn:          conn,
			addr:          addr,
			lastActivity:  time.Now(),
		}
		slog.Info("user registered", "user", name, "addr", addr, "total_users", len(d.users))
		return nil
	}
	if u.state != StateDisconnected && u.conn != nil && u.conn.Open() {
		return fmt.Errorf("user %q already has a live connection", name)
	}

	restored := u.previousState
	if restored == StateInactive {
		restored = StateActive
	}
	u.state = restored
	u.conn = conn
	u.addr = addr
	u.lastActivity = time.Now()
	slog.Info("user reconnected", "user", name, "addr", addr, "state", restored)
	return nil
}

// MarkDisconnected records a session exit, remembering the last live
// presence for a future reconnect.
func (d *Directory) MarkDisconnected(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[name]
	if !ok {
		return false
	}
	if u.state != StateDisconnected {
		u.previousState = u.state
	}
	u.state = StateDisconnected
	u.conn = nil
	slog.Info("user disconnected", "user", name, "last_state", u.previousState)
	return true
}

// SetState moves name to state and returns the delta due for broadcast.
// Without force a repeated state is a no-op. A state other than
// DISCONNECTED is refused for a record without a live conn.
func (d *Directory) SetState(name string, state PresenceState, force bool) (StateChange, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[name]
	if !ok {
		return StateChange{}, false
	}
	if !force && u.state == state {
		return StateChange{}, false
	}
	if state != StateDisconnected && (u.conn == nil || !u.conn.Open()) {
		slog.Warn("refused state for user without live connection", "user", name, "state", state)
		return StateChange{}, false
	}

	u.state = state
	if state != StateDisconnected {
		u.previousState = state
	}
	slog.Debug("state changed", "user", name, "state", state)
	return StateChange{Name: name, State: state}, true
}

// Reactivate promotes an INACTIVE user back to ACTIVE.
func (d *Directory) Reactivate(name string) (StateChange, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[name]
	if !ok || u.state != StateInactive {
		return StateChange{}, false
	}
	u.state = StateActive
	u.previousState = StateActive
	slog.Debug("user reactivated", "user", name)
	return StateChange{Name: name, State: StateActive}, true
}

// Touch refreshes the inactivity clock for name.
func (d *Directory) Touch(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[name]; ok {
		u.lastActivity = time.Now()
	}
}

// DemoteIdle moves every ACTIVE user idle for at least threshold to
// INACTIVE inside one critical section and returns the demoted names
// sorted, for broadcasting after release.
func (d *Directory) DemoteIdle(threshold time.Duration) []string {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	var demoted []string
	for _, u := range d.users {
		if u.state != StateActive {
			continue
		}
		if now.Sub(u.lastActivity) < threshold {
			continue
		}
		u.state = StateInactive
		u.previousState = StateInactive
		demoted = append(demoted, u.name)
	}
	sort.Strings(demoted)
	return demoted
}

// Snapshot returns every record sorted by name, disconnected ones
// included.
func (d *Directory) Snapshot() []Member {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshotLocked(false)
}

// SnapshotConnected returns every record with a live session, sorted by
// name.
func (d *Directory) SnapshotConnected() []Member {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshotLocked(true)
}

func (d *Directory) snapshotLocked(connectedOnly bool) []Member {
	out := make([]Member, 0, len(d.users))
	for _, u := range d.users {
		if connectedOnly && u.state == StateDisconnected {
			continue
		}
		out = append(out, Member{Name: u.name, State: u.state, Addr: u.addr, Conn: u.conn})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns one record copy.
func (d *Directory) Lookup(name string) (Member, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[name]
	if !ok {
		return Member{}, false
	}
	return Member{Name: u.name, State: u.state, Addr: u.addr, Conn: u.conn}, true
}

// HasLive reports whether name is held by an open connection.
func (d *Directory) HasLive(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[name]
	return ok && u.state != StateDisconnected && u.conn != nil && u.conn.Open()
}

// ClientCount returns the number of connected users.
func (d *Directory) ClientCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := 0
	for _, u := range d.users {
		if u.state != StateDisconnected {
			n++
		}
	}
	return n
}
