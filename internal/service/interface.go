package service

import (
	"context"

	"github.com/mihastele/social-space-harry/internal/domain"
	"github.com/mihastele/social-space-harry/internal/hub"
)

// Conn is the relay's view of one connection.
type Conn interface {
	hub.Handle
	Session() *domain.Session
	// Reply writes a frame to this connection only.
	Reply(f domain.Frame) error
}

// RelayService implements the per-connection protocol state machine.
type RelayService interface {
	HandleAuth(ctx context.Context, c Conn, token string) error
	HandleChatMessage(ctx context.Context, c Conn, msg *domain.ChatSendMessage) error
	HandleTyping(ctx context.Context, c Conn, receiverID string) error
	HandleDisconnect(ctx context.Context, c Conn) error
}
