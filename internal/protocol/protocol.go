package protocol

import (
	"errors"
	"fmt"
)

// Opcodes sent by clients.
const (
	OpListUsers    byte = 1
	OpGetUser      byte = 2
	OpChangeStatus byte = 3
	OpSendMessage  byte = 4
	OpGetHistory   byte = 5
	OpListAllUsers byte = 6
)

// Opcodes sent by the server.
const (
	OpErrorResponse     byte = 50
	OpResponseListUsers byte = 51
	OpResponseGetUser   byte = 52
	OpUserRegistered    byte = 53
	OpUserStatusChanged byte = 54
	OpMessageReceived   byte = 55
	OpResponseHistory   byte = 56
	OpResponseListAll   byte = 57
)

// Error subcodes carried by OpErrorResponse.
const (
	ErrCodeUserNotFound     byte = 1
	ErrCodeInvalidStatus    byte = 2
	ErrCodeEmptyMessage     byte = 3
	ErrCodeUserDisconnected byte = 4
)

// MaxFieldLen is the largest field a one-byte length prefix can describe.
const MaxFieldLen = 255

// ErrMalformed reports a frame that cannot be decoded.
var ErrMalformed = errors.New("malformed frame")

// Frame is one decoded frame: an opcode plus its raw fields.
type Frame struct {
	Op     byte
	Fields [][]byte
}

// Field returns field i as a string, or "" when the frame has no field i.
func (f Frame) Field(i int) string {
	if i < 0 || i >= len(f.Fields) {
		return ""
	}
	return string(f.Fields[i])
}

// Encode builds a frame with every field length-prefixed:
// opcode, then (len8, bytes) per field.
func Encode(op byte, fields ...string) ([]byte, error) {
	size := 1
	for _, f := range fields {
		size += 1 + len(f)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, op)
	for _, f := range fields {
		var err error
		buf, err = appendField(buf, f)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// Decode parses an opcode byte followed by length-prefixed fields.
// Field bytes are copied out of buf.
func Decode(buf []byte) (Frame, error) {
	if len(buf) == 0 {
		return Frame{}, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	f := Frame{Op: buf[0]}
	rest := buf[1:]
	for len(rest) > 0 {
		n := int(rest[0])
		rest = rest[1:]
		if n > len(rest) {
			return Frame{}, fmt.Errorf("%w: field length %d exceeds remaining %d bytes", ErrMalformed, n, len(rest))
		}
		field := make([]byte, n)
		copy(field, rest[:n])
		f.Fields = append(f.Fields, field)
		rest = rest[n:]
	}
	return f, nil
}

// EncodeError builds an OpErrorResponse frame. The subcode is a raw byte
// with no length prefix.
func EncodeError(code byte) []byte {
	return []byte{OpErrorResponse, code}
}

// UserEntry is one roster row in a list response.
type UserEntry struct {
	Name  string
	State byte
}

// EncodeUserList builds OpResponseListUsers or OpResponseListAll: a raw
// count byte, then a length-prefixed name and a raw state byte per user.
func EncodeUserList(op byte, users []UserEntry) ([]byte, error) {
	if len(users) > MaxFieldLen {
		return nil, fmt.Errorf("user list of %d rows exceeds one count byte", len(users))
	}
	buf := []byte{op, byte(len(users))}
	for _, u := range users {
		var err error
		buf, err = appendField(buf, u.Name)
		if err != nil {
			return nil, err
		}
		buf = append(buf, u.State)
	}
	return buf, nil
}

// EncodeUserStatus builds OpResponseGetUser or OpUserStatusChanged: a
// length-prefixed name followed by a raw state byte.
func EncodeUserStatus(op byte, name string, state byte) ([]byte, error) {
	buf, err := appendField([]byte{op}, name)
	if err != nil {
		return nil, err
	}
	return append(buf, state), nil
}

// UserStatus is a decoded fixed-layout status frame.
type UserStatus struct {
	Op    byte
	Name  string
	State byte
}

// DecodeUserStatus parses the fixed layout op, len8(name), name, state
// shared by OpChangeStatus, OpResponseGetUser and OpUserStatusChanged.
// The trailing state byte carries no length prefix, so these frames
// never go through Decode.
func DecodeUserStatus(buf []byte) (UserStatus, error) {
	if len(buf) < 3 {
		return UserStatus{}, fmt.Errorf("%w: status frame of %d bytes", ErrMalformed, len(buf))
	}
	n := int(buf[1])
	if len(buf) != 2+n+1 {
		return UserStatus{}, fmt.Errorf("%w: status frame of %d bytes with name length %d", ErrMalformed, len(buf), n)
	}
	return UserStatus{Op: buf[0], Name: string(buf[2 : 2+n]), State: buf[2+n]}, nil
}

// HistoryEntry is one stored message in a history response.
type HistoryEntry struct {
	Sender string
	Text   string
}

// EncodeHistory builds OpResponseHistory: a raw count byte, then a
// length-prefixed sender and text per entry, oldest first.
func EncodeHistory(entries []HistoryEntry) ([]byte, error) {
	if len(entries) > MaxFieldLen {
		return nil, fmt.Errorf("history of %d entries exceeds one count byte", len(entries))
	}
	buf := []byte{OpResponseHistory, byte(len(entries))}
	for _, e := range entries {
		var err error
		if buf, err = appendField(buf, e.Sender); err != nil {
			return nil, err
		}
		if buf, err = appendField(buf, e.Text); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendField(buf []byte, field string) ([]byte, error) {
	if len(field) > MaxFieldLen {
		return nil, fmt.Errorf("field of %d bytes exceeds %d", len(field), MaxFieldLen)
	}
	buf = append(buf, byte(len(field)))
	return append(buf, field...), nil
}
