package hub

import "context"

// Handle is a delivery sink registered under an identity. Enqueue must not
// block on the transport.
type Handle interface {
	HandleID() string
	Enqueue(data []byte) bool
}

// Registry maps identities to the delivery handles currently open for them.
type Registry interface {
	// Register adds h under userID. It reports false if h was already there.
	Register(userID string, h Handle) bool
	// Deliver enqueues data on every handle of userID except the one whose
	// HandleID equals exclude, and returns how many accepted it.
	Deliver(userID string, data []byte, exclude string) int
	// Unregister removes h from userID; the entry goes with its last handle.
	Unregister(userID string, h Handle)
}

// FrameHandler consumes what a Client reads. Both methods run on the
// client's own goroutine.
type FrameHandler interface {
	HandleFrame(ctx context.Context, c *Client, data []byte)
	HandleDisconnect(ctx context.Context, c *Client)
}
