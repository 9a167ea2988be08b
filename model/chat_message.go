package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageRole identifies the author of a chat message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage represents a single turn in an agent session. created_at
// ordering is the conversation order. Superseded assistant messages are
// soft-deleted so regenerated responses replace them without losing the
// accounting trail.
type ChatMessage struct {
	ID         string         `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID  string         `gorm:"type:uuid;not null;index" json:"session_id"`
	Role       MessageRole    `gorm:"type:varchar(20);not null" json:"role"`
	Content    string         `gorm:"type:text;not null" json:"content"`
	TokenCount int            `gorm:"default:0" json:"token_count"`
	CostCents  int            `gorm:"default:0" json:"cost_cents"` // Always 0 for user messages
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Session AgentSession `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for ChatMessage
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// BeforeCreate assigns a UUID primary key
func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}
