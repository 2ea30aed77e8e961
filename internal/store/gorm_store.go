package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mihastele/social-space-harry/internal/domain"
)

// GormStore implements MessageStore and KeyStore using GORM.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

// Append inserts msg. An empty ID or CreatedAt is filled in and written back
// to msg so the caller relays exactly what was stored.
func (s *GormStore) Append(ctx context.Context, msg *domain.ChatMessage) error {
	if msg.SenderID == "" || msg.ReceiverID == "" {
		return fmt.Errorf("%w: sender and receiver are required", ErrInvalidMessage)
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	createdAt := s.now().UTC()
	if msg.CreatedAt != "" {
		t, err := ParseTime(msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("%w: created_at: %v", ErrInvalidMessage, err)
		}
		createdAt = t.UTC()
	}

	model := &MessageModel{
		ID:               msg.ID,
		SenderID:         msg.SenderID,
		ReceiverID:       msg.ReceiverID,
		EncryptedContent: msg.EncryptedContent,
		IV:               msg.IV,
		CreatedAt:        createdAt,
		IsRead:           msg.IsRead,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	msg.CreatedAt = FormatTime(createdAt)
	return nil
}

func (s *GormStore) History(ctx context.Context, a, b string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 || limit > DefaultHistoryLimit {
		limit = DefaultHistoryLimit
	}

	var models []MessageModel
	err := s.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	out := make([]domain.ChatMessage, len(models))
	for i := range models {
		out[len(models)-1-i] = models[i].ToDomain()
	}
	return out, nil
}

func (s *GormStore) MarkRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&MessageModel{}).
		Where("sender_id = ? AND receiver_id = ? AND is_read = ?", senderID, receiverID, false).
		Update("is_read", true)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormStore) Conversations(ctx context.Context, userID string) ([]Conversation, error) {
	db := s.db.WithContext(ctx)

	var models []MessageModel
	err := db.Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at DESC").Order("id DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}

	var unread []struct {
		SenderID string
		Count    int64
	}
	err = db.Model(&MessageModel{}).
		Select("sender_id, COUNT(*) AS count").
		Where("receiver_id = ? AND is_read = ?", userID, false).
		Group("sender_id").
		Scan(&unread).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count unread messages: %w", err)
	}
	unreadBy := make(map[string]int64, len(unread))
	for _, u := range unread {
		unreadBy[u.SenderID] = u.Count
	}

	seen := make(map[string]struct{})
	convs := make([]Conversation, 0)
	for i := range models {
		partner := models[i].SenderID
		if partner == userID {
			partner = models[i].ReceiverID
		}
		if _, ok := seen[partner]; ok {
			continue
		}
		seen[partner] = struct{}{}
		convs = append(convs, Conversation{
			PartnerID:   partner,
			LastMessage: models[i].ToDomain(),
			UnreadCount: unreadBy[partner],
		})
	}
	return convs, nil
}

func (s *GormStore) GetPublicKey(ctx context.Context, userID string) (*PublicKey, error) {
	var model PublicKeyModel
	result := s.db.WithContext(ctx).First(&model, "user_id = ?", userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

func (s *GormStore) UpsertPublicKey(ctx context.Context, userID, publicKey string) error {
	model := &PublicKeyModel{
		UserID:    userID,
		PublicKey: publicKey,
		CreatedAt: s.now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"public_key", "created_at"}),
	}).Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to store public key: %w", err)
	}
	return nil
}
