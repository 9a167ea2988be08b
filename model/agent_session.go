package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SessionStatus represents the lifecycle state of an agent session
type SessionStatus string

const (
	SessionStatusCreated   SessionStatus = "created"   // Intake form submitted, no turns yet
	SessionStatusActive    SessionStatus = "active"    // At least one completed turn
	SessionStatusCompleted SessionStatus = "completed" // Closed by the user or housekeeping
)

// AgentSession represents a conversation thread between a user and an AI agent,
// created from a strategic-decision intake form submission
type AgentSession struct {
	ID        string            `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uint              `gorm:"not null;index" json:"user_id"`
	Title     string            `gorm:"type:varchar(255)" json:"title"`
	AgentType string            `gorm:"type:varchar(100);not null" json:"agent_type"`
	Prompt    string            `gorm:"type:text" json:"prompt"` // System prompt assembled from the intake form
	FormData  datatypes.JSONMap `gorm:"type:jsonb;default:'{}'" json:"form_data,omitempty"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb;default:'{}'" json:"metadata,omitempty"`
	Status    SessionStatus     `gorm:"type:varchar(20);default:'created'" json:"status"`
	CostCents int               `gorm:"default:0" json:"cost_cents"` // Monotonically non-decreasing
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	DeletedAt gorm.DeletedAt    `gorm:"index" json:"-"`

	// Relationships
	User     User          `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Messages []ChatMessage `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// TableName specifies the table name for AgentSession
func (AgentSession) TableName() string {
	return "agent_sessions"
}

// BeforeCreate assigns a UUID primary key
func (s *AgentSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}
