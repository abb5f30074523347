package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultConversationTitle = "New Conversation"
	MaxConversationTitle     = 200
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatConversation struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID string    `gorm:"not null;size:36;index" json:"sessionId"`
	Title     string    `gorm:"not null;size:200" json:"title"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	Session   Session   `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ChatConversation) TableName() string {
	return "chat_conversations"
}

func (c *ChatConversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Title == "" {
		c.Title = DefaultConversationTitle
	}
	return nil
}

type ChatMessage struct {
	ID             int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string           `gorm:"not null;size:36;index" json:"conversationId"`
	Role           string           `gorm:"not null;size:16" json:"role"`
	Content        string           `gorm:"type:text;not null" json:"content"`
	Metadata       datatypes.JSON   `json:"metadata,omitempty"`
	Timestamp      time.Time        `gorm:"not null" json:"timestamp"`
	SequenceNumber int              `gorm:"not null" json:"sequenceNumber"`
	Conversation   ChatConversation `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}
