package store

import (
	"context"
	"errors"

	"github.com/mihastele/social-space-harry/internal/domain"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrInvalidMessage = errors.New("invalid message")
)

// DefaultHistoryLimit caps History when the caller passes limit <= 0.
const DefaultHistoryLimit = 100

// MessageStore persists direct messages. Append must return only after the
// row is durable; the relay fans out on success.
type MessageStore interface {
	Append(ctx context.Context, msg *domain.ChatMessage) error
	// History returns up to limit of the most recent messages exchanged
	// between a and b, oldest first.
	History(ctx context.Context, a, b string, limit int) ([]domain.ChatMessage, error)
	// MarkRead flags every unread message from senderID to receiverID.
	MarkRead(ctx context.Context, senderID, receiverID string) (int64, error)
	// Conversations returns one entry per partner of userID, newest first.
	Conversations(ctx context.Context, userID string) ([]Conversation, error)
}

// KeyStore keeps each user's published E2E public key.
type KeyStore interface {
	GetPublicKey(ctx context.Context, userID string) (*PublicKey, error)
	UpsertPublicKey(ctx context.Context, userID, publicKey string) error
}

// Conversation summarises a message thread with one partner.
type Conversation struct {
	PartnerID   string             `json:"partner_id"`
	LastMessage domain.ChatMessage `json:"last_message"`
	UnreadCount int64              `json:"unread_count"`
}

// PublicKey is a user's published key material, opaque to the server.
type PublicKey struct {
	UserID    string `json:"user_id"`
	PublicKey string `json:"public_key"`
	CreatedAt string `json:"created_at"`
}
