package core

// Frame is a raw signaling payload, relayed byte for byte.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
// TrySend must never block: it either queues the frame or returns an error.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
