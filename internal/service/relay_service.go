package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mihastele/social-space-harry/internal/audit"
	"github.com/mihastele/social-space-harry/internal/auth"
	"github.com/mihastele/social-space-harry/internal/domain"
	"github.com/mihastele/social-space-harry/internal/hub"
	"github.com/mihastele/social-space-harry/internal/store"
	"github.com/mihastele/social-space-harry/pkg/log"
)

var (
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrAlreadyAuthenticated = errors.New("already authenticated as another user")
)

type relayService struct {
	verifier auth.Verifier
	store    store.MessageStore
	registry hub.Registry
	now      func() time.Time
	newID    func() string
}

func NewRelayService(verifier auth.Verifier, messages store.MessageStore, registry hub.Registry) RelayService {
	return &relayService{
		verifier: verifier,
		store:    messages,
		registry: registry,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

func (s *relayService) HandleAuth(ctx context.Context, c Conn, token string) error {
	userID, err := s.verifier.Verify(token)
	if err != nil {
		audit.Log(ctx, audit.ActionAuthFailed, c.Session().UserID(), "websocket auth rejected")
		if replyErr := c.Reply(domain.NewErrorMessage(domain.ErrTextInvalidToken)); replyErr != nil {
			return replyErr
		}
		return err
	}

	sess := c.Session()
	wasAuthenticated := sess.IsAuthenticated()
	if !sess.Authenticate(userID) {
		if replyErr := c.Reply(domain.NewErrorMessage(domain.ErrTextAlreadyAuthenticated)); replyErr != nil {
			return replyErr
		}
		return fmt.Errorf("%w: session is %s", ErrAlreadyAuthenticated, sess.UserID())
	}

	if !wasAuthenticated {
		s.registry.Register(userID, c)
		audit.Log(ctx, audit.ActionAuth, userID, "websocket authenticated")
	}

	return c.Reply(&domain.ConnectedMessage{UserID: userID})
}

func (s *relayService) HandleChatMessage(ctx context.Context, c Conn, in *domain.ChatSendMessage) error {
	sess := c.Session()
	if !sess.IsAuthenticated() {
		if err := c.Reply(domain.NewErrorMessage(domain.ErrTextNotAuthenticated)); err != nil {
			return err
		}
		return ErrNotAuthenticated
	}
	senderID := sess.UserID()

	msg := &domain.ChatMessage{
		ID:               s.newID(),
		SenderID:         senderID,
		ReceiverID:       in.ReceiverID,
		EncryptedContent: in.EncryptedContent,
		IV:               in.IV,
		CreatedAt:        store.FormatTime(s.now()),
		IsRead:           false,
	}

	if err := s.store.Append(ctx, msg); err != nil {
		audit.LogTarget(ctx, audit.ActionSendFailed, senderID, in.ReceiverID, err.Error(), "message not persisted")
		if replyErr := c.Reply(domain.NewErrorMessage(domain.ErrTextSendFailed)); replyErr != nil {
			return replyErr
		}
		return fmt.Errorf("failed to persist message: %w", err)
	}

	relayed := &domain.MessageReceivedMessage{Message: *msg}
	data, err := domain.EncodeFrame(relayed)
	if err != nil {
		return err
	}

	// The sending connection gets its copy as the reply below; its sibling
	// devices get one through the registry when messaging themselves.
	n := s.registry.Deliver(msg.ReceiverID, data, c.HandleID())

	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldUserID, senderID).
		Str(log.FieldReceiverID, msg.ReceiverID).
		Str(log.FieldMessageID, msg.ID).
		Int(log.FieldHandles, n).
		Msg("message relayed")
	audit.LogTarget(ctx, audit.ActionSendMessage, senderID, msg.ReceiverID, msg.ID, "message sent")

	return c.Reply(relayed)
}

func (s *relayService) HandleTyping(ctx context.Context, c Conn, receiverID string) error {
	sess := c.Session()
	if !sess.IsAuthenticated() {
		if err := c.Reply(domain.NewErrorMessage(domain.ErrTextNotAuthenticated)); err != nil {
			return err
		}
		return ErrNotAuthenticated
	}

	data, err := domain.EncodeFrame(&domain.TypingIndicatorMessage{SenderID: sess.UserID()})
	if err != nil {
		return err
	}
	s.registry.Deliver(receiverID, data, c.HandleID())
	return nil
}

func (s *relayService) HandleDisconnect(ctx context.Context, c Conn) error {
	sess := c.Session()
	if !sess.IsAuthenticated() {
		return nil
	}
	s.registry.Unregister(sess.UserID(), c)
	audit.Log(ctx, audit.ActionDisconnect, sess.UserID(), "websocket disconnected")
	return nil
}
