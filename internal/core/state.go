package core

import "fmt"

// PresenceState is one user's presence as carried on the wire.
type PresenceState byte

// Presence states. The zero value is DISCONNECTED.
const (
	StateDisconnected PresenceState = 0
	StateActive       PresenceState = 1
	StateBusy         PresenceState = 2
	StateInactive     PresenceState = 3
)

// ValidTargetState reports whether b is a state a client may request.
// DISCONNECTED is reserved for session exits.
func ValidTargetState(b byte) bool {
	return b == byte(StateActive) || b == byte(StateBusy) || b == byte(StateInactive)
}

// String returns the Spanish display name used in broadcasts and logs.
func (s PresenceState) String() string {
	switch s {
	case StateDisconnected:
		return "DESCONECTADO"
	case StateActive:
		return "ACTIVO"
	case StateBusy:
		return "OCUPADO"
	case StateInactive:
		return "INACTIVO"
	default:
		return fmt.Sprintf("ESTADO(%d)", byte(s))
	}
}
