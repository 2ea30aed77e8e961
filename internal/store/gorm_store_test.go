package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihastele/social-space-harry/internal/domain"
	"github.com/mihastele/social-space-harry/pkg/database"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := database.New(&database.Config{Driver: "sqlite", FilePath: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.AutoMigrate(db, Models()...))
	return NewGormStore(db)
}

func at(sec int) string {
	return FormatTime(time.Date(2024, 5, 1, 12, 0, sec, 0, time.UTC))
}

func appendMsg(t *testing.T, s *GormStore, from, to string, sec int) domain.ChatMessage {
	t.Helper()
	msg := domain.ChatMessage{
		SenderID:         from,
		ReceiverID:       to,
		EncryptedContent: "ct",
		IV:               "iv",
		CreatedAt:        at(sec),
	}
	require.NoError(t, s.Append(context.Background(), &msg))
	return msg
}

func TestAppend_FillsIDAndTimestamp(t *testing.T) {
	s := newTestStore(t)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.UTC)
	s.now = func() time.Time { return fixed }

	msg := domain.ChatMessage{SenderID: "a", ReceiverID: "b", EncryptedContent: "ct", IV: "iv"}
	require.NoError(t, s.Append(context.Background(), &msg))

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, FormatTime(fixed), msg.CreatedAt)

	history, err := s.History(context.Background(), "a", "b", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg, history[0])
}

func TestAppend_Rejects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Append(ctx, &domain.ChatMessage{SenderID: "a"})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	err = s.Append(ctx, &domain.ChatMessage{SenderID: "a", ReceiverID: "b", CreatedAt: "yesterday"})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	first := appendMsg(t, s, "a", "b", 1)
	dup := first
	assert.Error(t, s.Append(ctx, &dup))
}

func TestHistory_BothDirectionsNewestWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m1 := appendMsg(t, s, "a", "b", 1)
	m2 := appendMsg(t, s, "b", "a", 2)
	m3 := appendMsg(t, s, "a", "b", 3)
	appendMsg(t, s, "a", "c", 4)

	all, err := s.History(ctx, "a", "b", 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.ChatMessage{m1, m2, m3}, all)

	latest, err := s.History(ctx, "b", "a", 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.ChatMessage{m2, m3}, latest)
}

func TestMarkReadAndConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	appendMsg(t, s, "b", "a", 1)
	appendMsg(t, s, "b", "a", 2)
	last := appendMsg(t, s, "a", "b", 3)
	fromC := appendMsg(t, s, "c", "a", 4)

	convs, err := s.Conversations(ctx, "a")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "c", convs[0].PartnerID)
	assert.Equal(t, fromC.ID, convs[0].LastMessage.ID)
	assert.Equal(t, int64(1), convs[0].UnreadCount)
	assert.Equal(t, "b", convs[1].PartnerID)
	assert.Equal(t, last.ID, convs[1].LastMessage.ID)
	assert.Equal(t, int64(2), convs[1].UnreadCount)

	n, err := s.MarkRead(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.MarkRead(ctx, "b", "a")
	require.NoError(t, err)
	assert.Zero(t, n)

	convs, err = s.Conversations(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), convs[1].UnreadCount)

	history, err := s.History(ctx, "a", "b", 0)
	require.NoError(t, err)
	assert.True(t, history[0].IsRead)
	assert.False(t, history[2].IsRead, "a's own message to b stays unread")
}

func TestPublicKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetPublicKey(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpsertPublicKey(ctx, "a", "key-1"))
	require.NoError(t, s.UpsertPublicKey(ctx, "a", "key-2"))

	key, err := s.GetPublicKey(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", key.UserID)
	assert.Equal(t, "key-2", key.PublicKey)
}
