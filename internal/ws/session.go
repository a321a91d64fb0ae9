package ws

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"yappuccino/server/internal/core"
	"yappuccino/server/internal/history"
	"yappuccino/server/internal/metrics"
	"yappuccino/server/internal/protocol"

	"github.com/gorilla/websocket"
)

const (
	welcomeText     = "¡Bienvenido a YaPPuchino!"
	exitCommand     = "/exit"
	exitCloseReason = "El usuario solicitó desconexión voluntaria"

	// publicAlias is the reserved destination naming the shared room.
	publicAlias = "~"

	// History replies carry at most this many entries, newest last. The
	// count byte cannot describe more.
	maxHistoryReply = 255
)

// session serves one admitted user for the lifetime of its connection.
type session struct {
	h    *Handler
	conn *conn
	name string
	addr string
}

func newSession(h *Handler, ws *websocket.Conn, name, addr string) *session {
	return &session{
		h:    h,
		conn: newConn(ws, h.sendBuf),
		name: name,
		addr: addr,
	}
}

// run registers the user, announces the join and reads frames until the
// connection drops or the user asks to leave.
func (s *session) run() {
	go s.conn.pump()

	if err := s.h.dir.UpsertOnJoin(s.name, s.conn, s.addr); err != nil {
		// Admission raced another connection claiming the name.
		metrics.AdmissionRejected.WithLabelValues("duplicate_name").Inc()
		slog.Warn("join refused", "user", s.name, "err", err)
		s.conn.Close(websocket.ClosePolicyViolation, msgAlreadyConnected)
		return
	}

	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()
	slog.Info("user connected", "user", s.name, "remote", s.addr)

	defer func() {
		// A clean /exit already closed the conn; anything else reaching
		// here is a transport error, which gets no goodbye frame.
		s.conn.abort()
		s.h.dir.MarkDisconnected(s.name)
		s.h.router.BroadcastPresence(s.name, core.StateDisconnected)
		s.h.router.BroadcastText(fmt.Sprintf("Usuario %s se ha desconectado.", s.name))
		metrics.ConnectionsActive.Dec()
		slog.Info("user disconnected", "user", s.name)
	}()

	s.conn.SendText(welcomeText)
	s.h.router.BroadcastJoined(s.name, s.addr)
	s.h.router.BroadcastText(fmt.Sprintf("Usuario %s se ha unido.", s.name))
	if change, ok := s.h.dir.SetState(s.name, core.StateActive, true); ok {
		s.h.router.BroadcastPresence(change.Name, change.State)
	}
	s.h.dir.Touch(s.name)

	s.readLoop()
}

func (s *session) readLoop() {
	s.conn.ws.SetReadLimit(readLimit)
	_ = s.conn.ws.SetReadDeadline(time.Time{})

	for {
		kind, payload, err := s.conn.ws.ReadMessage()
		if err != nil {
			slog.Debug("read loop ended", "user", s.name, "err", err)
			return
		}

		s.h.dir.Touch(s.name)
		if len(strings.TrimSpace(string(payload))) > 0 {
			s.maybeReactivate()
		}

		switch kind {
		case websocket.TextMessage:
			if exit := s.handleText(string(payload)); exit {
				return
			}
		case websocket.BinaryMessage:
			s.handleBinary(payload)
		}
	}
}

// maybeReactivate flips an INACTIVE user back to ACTIVO on inbound
// traffic. Only the reactivated session gets the direct notice.
func (s *session) maybeReactivate() {
	change, ok := s.h.dir.Reactivate(s.name)
	if !ok {
		return
	}
	slog.Info("user reactivated", "user", s.name)
	s.h.router.BroadcastPresence(change.Name, change.State)
	s.conn.SendText(fmt.Sprintf("Se ha reactivado el estado de %s a %s.", s.name, change.State))
}

// handleText processes one inbound text frame. Returns true when the
// session asked to end.
func (s *session) handleText(text string) bool {
	if strings.TrimSpace(text) == "" {
		s.sendError(protocol.ErrCodeEmptyMessage)
		return false
	}
	if text == exitCommand {
		slog.Info("user requested exit", "user", s.name)
		s.conn.Close(websocket.CloseNormalClosure, exitCloseReason)
		return true
	}

	metrics.MessagesRouted.WithLabelValues("text").Inc()
	if err := s.h.hist.AppendPublic(s.name, text); err != nil {
		metrics.HistoryFailures.Inc()
		slog.Error("append public history", "user", s.name, "err", err)
	}
	s.h.router.BroadcastText(fmt.Sprintf("%s: %s", s.name, text))
	return false
}

// handleBinary decodes one inbound binary frame and dispatches on its
// opcode. Malformed input answers with an error frame and keeps the
// session alive. OpChangeStatus uses the fixed status layout and is
// parsed separately from the length-prefixed frames.
func (s *session) handleBinary(payload []byte) {
	if len(payload) > 0 && payload[0] == protocol.OpChangeStatus {
		s.handleChangeStatus(payload)
		return
	}

	f, err := protocol.Decode(payload)
	if err != nil {
		slog.Debug("malformed frame", "user", s.name, "err", err)
		s.sendError(protocol.ErrCodeEmptyMessage)
		return
	}

	switch f.Op {
	case protocol.OpListUsers:
		s.replyUserList(protocol.OpResponseListUsers, s.h.dir.SnapshotConnected())
	case protocol.OpGetUser:
		s.handleGetUser(f)
	case protocol.OpSendMessage:
		s.handleSendMessage(f)
	case protocol.OpGetHistory:
		s.handleGetHistory(f)
	case protocol.OpListAllUsers:
		s.replyUserList(protocol.OpResponseListAll, s.h.dir.Snapshot())
	default:
		slog.Debug("unknown opcode", "user", s.name, "opcode", f.Op)
		s.sendError(protocol.ErrCodeEmptyMessage)
	}
}

func (s *session) replyUserList(op byte, members []core.Member) {
	entries := make([]protocol.UserEntry, 0, len(members))
	for _, m := range members {
		if len(m.Name) > protocol.MaxFieldLen {
			slog.Warn("name too long for roster reply", "user", m.Name[:32])
			continue
		}
		entries = append(entries, protocol.UserEntry{Name: m.Name, State: byte(m.State)})
	}
	if len(entries) > protocol.MaxFieldLen {
		entries = entries[:protocol.MaxFieldLen]
	}

	frame, err := protocol.EncodeUserList(op, entries)
	if err != nil {
		slog.Error("encode roster reply", "opcode", op, "err", err)
		s.sendError(protocol.ErrCodeEmptyMessage)
		return
	}
	s.conn.SendBinary(frame)
}

func (s *session) handleGetUser(f protocol.Frame) {
	if len(f.Fields) < 1 {
		s.sendError(protocol.ErrCodeEmptyMessage)
		return
	}
	target := f.Field(0)

	m, ok := s.h.dir.Lookup(target)
	if !ok || m.State == core.StateDisconnected {
		s.sendError(protocol.ErrCodeUserNotFound)
		return
	}
	frame, err := protocol.EncodeUserStatus(protocol.OpResponseGetUser, m.Name, byte(m.State))
	if err != nil {
		s.sendError(protocol.ErrCodeEmptyMessage)
		return
	}
	s.conn.SendBinary(frame)
}

func (s *session) handleChangeStatus(payload []byte) {
	req, err := protocol.DecodeUserStatus(payload)
	if err != nil {
		slog.Debug("malformed status frame", "user", s.name, "err", err)
		s.sendError(protocol.ErrCodeEmptyMessage)
		return
	}
	if !core.ValidTargetState(req.State) {
		s.sendError(protocol.ErrCodeInvalidStatus)
		return
	}
	state := core.PresenceState(req.State)

	change, ok := s.h.dir.SetState(req.Name, state, true)
	if !ok {
		s.sendError(protocol.ErrCodeUserNotFound)
		return
	}

	slog.Info("user status changed", "user", change.Name, "state", change.State, "by", s.name)
	s.h.router.BroadcastPresence(change.Name, change.State)
	s.h.router.BroadcastText(fmt.Sprintf("Usuario %s se ha cambiado a estado %s.", change.Name, change.State))
}

func (s *session) handleSendMessage(f protocol.Frame) {
	if len(f.Fields) < 2 {
		s.sendError(protocol.ErrCodeEmptyMessage)
		return
	}
	dest, text := f.Field(0), f.Field(1)
	if text == "" {
		s.sendError(protocol.ErrCodeEmptyMessage)
		return
	}

	if dest == publicAlias {
		metrics.MessagesRouted.WithLabelValues("public").Inc()
		if err := s.h.hist.AppendPublic(s.name, text); err != nil {
			metrics.HistoryFailures.Inc()
			slog.Error("append public history", "user", s.name, "err", err)
		}
		frame, err := protocol.Encode(protocol.OpMessageReceived, s.name, text)
		if err != nil {
			s.sendError(protocol.ErrCodeEmptyMessage)
			return
		}
		s.h.router.BroadcastBinary(frame)
		return
	}

	metrics.MessagesRouted.WithLabelValues("private").Inc()
	// The pair log records the message even when delivery fails below.
	if err := s.h.hist.AppendPrivate(s.name, dest, text); err != nil {
		metrics.HistoryFailures.Inc()
		slog.Error("append private history", "from", s.name, "to", dest, "err", err)
	}

	m, ok := s.h.dir.Lookup(dest)
	if !ok || m.State == core.StateDisconnected || m.Conn == nil {
		s.sendError(protocol.ErrCodeUserDisconnected)
		return
	}
	frame, err := protocol.Encode(protocol.OpMessageReceived, s.name, text)
	if err != nil {
		s.sendError(protocol.ErrCodeEmptyMessage)
		return
	}
	if !m.Conn.SendBinary(frame) {
		metrics.DeliveryFailures.WithLabelValues("private").Inc()
		slog.Warn("private delivery failed", "from", s.name, "to", dest)
	}
	s.conn.SendBinary(frame)
}

func (s *session) handleGetHistory(f protocol.Frame) {
	if len(f.Fields) < 1 {
		s.sendError(protocol.ErrCodeEmptyMessage)
		return
	}
	target := f.Field(0)

	var entries []protocol.HistoryEntry
	if target == publicAlias {
		stored, err := s.h.hist.LoadPublic()
		if err != nil {
			metrics.HistoryFailures.Inc()
			slog.Error("load public history", "err", err)
			s.sendError(protocol.ErrCodeEmptyMessage)
			return
		}
		entries = toHistoryEntries(stored)
	} else {
		stored, found, err := s.h.hist.LoadPrivate(s.name, target)
		if err != nil {
			metrics.HistoryFailures.Inc()
			slog.Error("load private history", "user", s.name, "target", target, "err", err)
			s.sendError(protocol.ErrCodeEmptyMessage)
			return
		}
		if !found {
			s.sendError(protocol.ErrCodeUserNotFound)
			return
		}
		entries = toHistoryEntries(stored)
	}

	if len(entries) > maxHistoryReply {
		entries = entries[len(entries)-maxHistoryReply:]
	}
	frame, err := protocol.EncodeHistory(entries)
	if err != nil {
		slog.Error("encode history reply", "target", target, "err", err)
		s.sendError(protocol.ErrCodeEmptyMessage)
		return
	}
	s.conn.SendBinary(frame)
}

func (s *session) sendError(code byte) {
	s.conn.SendBinary(protocol.EncodeError(code))
}

func toHistoryEntries(stored []history.Entry) []protocol.HistoryEntry {
	entries := make([]protocol.HistoryEntry, 0, len(stored))
	for _, e := range stored {
		entries = append(entries, protocol.HistoryEntry{Sender: e.Sender, Text: e.Text})
	}
	return entries
}
