package core

// Conn is the outbound half of one client connection. Implementations
// must be safe for concurrent use and must never block a caller beyond
// their enqueue timeout.
type Conn interface {
	// SendText enqueues one text frame; false means the frame was dropped.
	SendText(text string) bool
	// SendBinary enqueues one binary frame; false means the frame was dropped.
	SendBinary(frame []byte) bool
	// Open reports whether the connection still accepts frames.
	Open() bool
}
