package core

import (
	"sync"
	"testing"
	"time"
)

func TestUpsertNewUserStartsActive(t *testing.T) {
	d := NewDirectory()
	if err := d.UpsertOnJoin("alice", newFakeConn(), "127.0.0.1:50001"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	m, ok := d.Lookup("alice")
	if !ok {
		t.Fatal("expected alice in directory")
	}
	if m.State != StateActive {
		t.Fatalf("expected ACTIVO, got %v", m.State)
	}
	if m.Addr != "127.0.0.1:50001" {
		t.Fatalf("unexpected addr %q", m.Addr)
	}
	if !d.HasLive("alice") {
		t.Fatal("expected alice to count as live")
	}
}

func TestUpsertRefusesLiveConn(t *testing.T) {
	d := NewDirectory()
	if err := d.UpsertOnJoin("alice", newFakeConn(), "a1"); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := d.UpsertOnJoin("alice", newFakeConn(), "a2"); err == nil {
		t.Fatal("expected second upsert to be refused while conn is live")
	}
}

func TestUpsertReplacesDeadConn(t *testing.T) {
	d := NewDirectory()
	c1 := newFakeConn()
	if err := d.UpsertOnJoin("alice", c1, "a1"); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Conn died without a clean exit; the record may be taken over.
	c1.close()
	if err := d.UpsertOnJoin("alice", newFakeConn(), "a2"); err != nil {
		t.Fatalf("takeover upsert: %v", err)
	}
	m, _ := d.Lookup("alice")
	if m.Addr != "a2" {
		t.Fatalf("expected new addr a2, got %q", m.Addr)
	}
}

func TestReconnectRestoresPreviousState(t *testing.T) {
	d := NewDirectory()
	if err := d.UpsertOnJoin("alice", newFakeConn(), "a1"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, ok := d.SetState("alice", StateBusy, false); !ok {
		t.Fatal("expected busy transition to apply")
	}
	if !d.MarkDisconnected("alice") {
		t.Fatal("expected mark disconnected to succeed")
	}

	if err := d.UpsertOnJoin("alice", newFakeConn(), "a2"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	m, _ := d.Lookup("alice")
	if m.State != StateBusy {
		t.Fatalf("expected OCUPADO restored, got %v", m.State)
	}
}

func TestReconnectMapsInactiveToActive(t *testing.T) {
	d := NewDirectory()
	if err := d.UpsertOnJoin("alice", newFakeConn(), "a1"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, ok := d.SetState("alice", StateInactive, false); !ok {
		t.Fatal("expected inactive transition to apply")
	}
	d.MarkDisconnected("alice")

	if err := d.UpsertOnJoin("alice", newFakeConn(), "a2"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	m, _ := d.Lookup("alice")
	if m.State != StateActive {
		t.Fatalf("expected INACTIVO to come back as ACTIVO, got %v", m.State)
	}
}

func TestMarkDisconnectedClearsConn(t *testing.T) {
	d := NewDirectory()
	if err := d.UpsertOnJoin("alice", newFakeConn(), "a1"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	d.MarkDisconnected("alice")

	m, ok := d.Lookup("alice")
	if !ok {
		t.Fatal("record must survive disconnect")
	}
	if m.State != StateDisconnected || m.Conn != nil {
		t.Fatalf("unexpected record after disconnect: %#v", m)
	}
	if d.HasLive("alice") {
		t.Fatal("disconnected user must not count as live")
	}
	if d.MarkDisconnected("nadie") {
		t.Fatal("expected false for unknown user")
	}
}

func TestSetStateNoOpWithoutForce(t *testing.T) {
	d := NewDirectory()
	if err := d.UpsertOnJoin("alice", newFakeConn(), "a1"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if _, ok := d.SetState("alice", StateActive, false); ok {
		t.Fatal("repeated state without force must not report a delta")
	}
	change, ok := d.SetState("alice", StateActive, true)
	if !ok {
		t.Fatal("forced repeat must report a delta")
	}
	if change.Name != "alice" || change.State != StateActive {
		t.Fatalf("unexpected delta: %#v", change)
	}
}

func TestSetStateRefusedWithoutLiveConn(t *testing.T) {
	d := NewDirectory()
	if err := d.UpsertOnJoin("alice", newFakeConn(), "a1"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	d.MarkDisconnected("alice")

	if _, ok := d.SetState("alice", StateBusy, true); ok {
		t.Fatal("a connected state must be refused for a user without a conn")
	}
	if _, ok := d.SetState("nadie", StateBusy, true); ok {
		t.Fatal("expected false for unknown user")
	}
}

func TestReactivateOnlyWhenInactive(t *testing.T) {
	d := NewDirectory()
	if err := d.UpsertOnJoin("alice", newFakeConn(), "a1"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if _, ok := d.Reactivate("alice"); ok {
		t.Fatal("ACTIVO user must not reactivate")
	}
	if _, ok := d.SetState("alice", StateInactive, false); !ok {
		t.Fatal("expected inactive transition to apply")
	}
	change, ok := d.Reactivate("alice")
	if !ok || change.State != StateActive {
		t.Fatalf("expected reactivation to ACTIVO, got ok=%v change=%#v", ok, change)
	}
	m, _ := d.Lookup("alice")
	if m.State != StateActive {
		t.Fatalf("expected ACTIVO after reactivation, got %v", m.State)
	}
}

func TestDemoteIdleSkipsBusyAndInactive(t *testing.T) {
	d := NewDirectory()
	for _, name := range []string{"alice", "bob", "carol"} {
		if err := d.UpsertOnJoin(name, newFakeConn(), "a"); err != nil {
			t.Fatalf("upsert %s: %v", name, err)
		}
	}
	d.SetState("bob", StateBusy, false)
	d.SetState("carol", StateInactive, false)

	demoted := d.DemoteIdle(0)
	if len(demoted) != 1 || demoted[0] != "alice" {
		t.Fatalf("expected only alice demoted, got %v", demoted)
	}
	m, _ := d.Lookup("alice")
	if m.State != StateInactive {
		t.Fatalf("expected alice INACTIVO, got %v", m.State)
	}
	if again := d.DemoteIdle(0); len(again) != 0 {
		t.Fatalf("expected no repeat demotions, got %v", again)
	}
}

func TestDemoteIdleHonorsThreshold(t *testing.T) {
	d := NewDirectory()
	if err := d.UpsertOnJoin("alice", newFakeConn(), "a1"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if demoted := d.DemoteIdle(time.Hour); len(demoted) != 0 {
		t.Fatalf("fresh user must not be demoted, got %v", demoted)
	}
}

func TestTouchResetsIdleClock(t *testing.T) {
	d := NewDirectory()
	if err := d.UpsertOnJoin("alice", newFakeConn(), "a1"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	time.Sleep(40 * time.Millisecond)
	d.Touch("alice")
	if demoted := d.DemoteIdle(30 * time.Millisecond); len(demoted) != 0 {
		t.Fatalf("touched user must not be demoted, got %v", demoted)
	}

	time.Sleep(40 * time.Millisecond)
	if demoted := d.DemoteIdle(30 * time.Millisecond); len(demoted) != 1 {
		t.Fatalf("expected demotion after idle period, got %v", demoted)
	}
}

func TestSnapshotsSortedAndFiltered(t *testing.T) {
	d := NewDirectory()
	for _, name := range []string{"carol", "alice", "bob"} {
		if err := d.UpsertOnJoin(name, newFakeConn(), "a"); err != nil {
			t.Fatalf("upsert %s: %v", name, err)
		}
	}
	d.MarkDisconnected("bob")

	all := d.Snapshot()
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	if all[0].Name != "alice" || all[1].Name != "bob" || all[2].Name != "carol" {
		t.Fatalf("expected sorted snapshot, got %#v", all)
	}

	connected := d.SnapshotConnected()
	if len(connected) != 2 {
		t.Fatalf("expected 2 connected records, got %d", len(connected))
	}
	for _, m := range connected {
		if m.Name == "bob" {
			t.Fatal("disconnected bob must be filtered out")
		}
	}
	if d.ClientCount() != 2 {
		t.Fatalf("expected client count 2, got %d", d.ClientCount())
	}
}

// fakeConn records delivered frames for assertions.
type fakeConn struct {
	mu     sync.Mutex
	texts  []string
	frames [][]byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{}
}

func (c *fakeConn) SendText(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.texts = append(c.texts, text)
	return true
}

func (c *fakeConn) SendBinary(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	c.frames = append(c.frames, buf)
	return true
}

func (c *fakeConn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.texts))
	copy(out, c.texts)
	return out
}

func (c *fakeConn) sentFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}
