package store

import (
	"time"

	"github.com/mihastele/social-space-harry/internal/domain"
)

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID               string    `gorm:"type:varchar(36);primaryKey"`
	SenderID         string    `gorm:"type:varchar(64);not null;index"`
	ReceiverID       string    `gorm:"type:varchar(64);not null;index"`
	EncryptedContent string    `gorm:"type:text;not null"`
	IV               string    `gorm:"column:iv;type:text;not null"`
	CreatedAt        time.Time `gorm:"not null;index"`
	IsRead           bool      `gorm:"not null;default:false"`
}

func (MessageModel) TableName() string {
	return "messages"
}

func (m *MessageModel) ToDomain() domain.ChatMessage {
	return domain.ChatMessage{
		ID:               m.ID,
		SenderID:         m.SenderID,
		ReceiverID:       m.ReceiverID,
		EncryptedContent: m.EncryptedContent,
		IV:               m.IV,
		CreatedAt:        FormatTime(m.CreatedAt),
		IsRead:           m.IsRead,
	}
}

// PublicKeyModel is the GORM model for the user_public_keys table.
type PublicKeyModel struct {
	UserID    string    `gorm:"type:varchar(64);primaryKey"`
	PublicKey string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (PublicKeyModel) TableName() string {
	return "user_public_keys"
}

func (m *PublicKeyModel) ToDomain() *PublicKey {
	return &PublicKey{
		UserID:    m.UserID,
		PublicKey: m.PublicKey,
		CreatedAt: FormatTime(m.CreatedAt),
	}
}

// Models lists every table this package owns, for AutoMigrate.
func Models() []interface{} {
	return []interface{}{&MessageModel{}, &PublicKeyModel{}}
}

// FormatTime renders timestamps the way they go over the wire.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime is the inverse of FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
