package core

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"yappuccino/server/internal/metrics"
	"yappuccino/server/internal/protocol"
)

// Router fans frames out to directory members. Recipients are
// snapshotted under the directory lock and written to after release, so
// a slow or dead recipient never blocks the batch or the lock.
type Router struct {
	dir      *Directory
	dropWarn rate.Sometimes
}

// NewRouter returns a router over dir.
func NewRouter(dir *Directory) *Router {
	return &Router{
		dir:      dir,
		dropWarn: rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}
}

// BroadcastText sends one text frame to every ACTIVE or BUSY user.
// INACTIVE users still receive binary frames.
func (r *Router) BroadcastText(text string) {
	targets := r.dir.SnapshotConnected()
	sent := 0
	for _, m := range targets {
		if m.State != StateActive && m.State != StateBusy {
			continue
		}
		if m.Conn != nil && m.Conn.SendText(text) {
			sent++
			continue
		}
		r.noteDrop("text", m.Name)
	}
	slog.Debug("broadcast text", "recipients", sent, "total", len(targets))
}

// BroadcastBinary sends one binary frame to every connected user.
func (r *Router) BroadcastBinary(frame []byte) {
	targets := r.dir.SnapshotConnected()
	sent := 0
	for _, m := range targets {
		if m.Conn != nil && m.Conn.SendBinary(frame) {
			sent++
			continue
		}
		r.noteDrop("binary", m.Name)
	}
	slog.Debug("broadcast binary", "opcode", frameOp(frame), "recipients", sent, "total", len(targets))
}

// BroadcastPresence announces one user's state to every connected user.
func (r *Router) BroadcastPresence(name string, state PresenceState) {
	frame, err := protocol.EncodeUserStatus(protocol.OpUserStatusChanged, name, byte(state))
	if err != nil {
		slog.Error("encode status broadcast", "user", name, "err", err)
		return
	}
	metrics.PresenceTransitions.WithLabelValues(state.String()).Inc()
	r.BroadcastBinary(frame)
}

// BroadcastJoined announces a registration to every connected user, the
// joining one included.
func (r *Router) BroadcastJoined(name, addr string) {
	frame, err := protocol.Encode(protocol.OpUserRegistered, name, addr)
	if err != nil {
		slog.Error("encode join broadcast", "user", name, "err", err)
		return
	}
	r.BroadcastBinary(frame)
}

func (r *Router) noteDrop(kind, user string) {
	metrics.DeliveryFailures.WithLabelValues(kind).Inc()
	r.dropWarn.Do(func() {
		slog.Warn("frame dropped", "kind", kind, "user", user)
	})
}

func frameOp(frame []byte) byte {
	if len(frame) == 0 {
		return 0
	}
	return frame[0]
}
