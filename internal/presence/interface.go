package presence

import "context"

// Notifier receives presence transitions from the hub. Implementations must
// not block: the hub calls them while connection goroutines wait.
type Notifier interface {
	Online(userID string)
	Offline(userID string)
}

// Mirror is a Notifier that can also answer presence queries and must be
// started and stopped.
type Mirror interface {
	Notifier
	IsOnline(ctx context.Context, userID string) (bool, error)
	Start(ctx context.Context) error
	Close() error
}

// Nop discards all transitions.
type Nop struct{}

func (Nop) Online(string)  {}
func (Nop) Offline(string) {}
