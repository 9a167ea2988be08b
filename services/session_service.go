package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/innotech-solutions/innotech-api/model"
)

// SessionService manages agent session CRUD and usage aggregates
type SessionService struct {
	db *gorm.DB
}

// NewSessionService creates a new session service
func NewSessionService(db *gorm.DB) *SessionService {
	return &SessionService{db: db}
}

// CreateSessionRequest creates a session from an intake form submission
type CreateSessionRequest struct {
	UserID    uint
	AgentType string
	Form      IntakeForm
}

// CreateSession assembles the system prompt from the intake form and
// persists the new session with the raw form payload alongside it.
func (s *SessionService) CreateSession(ctx context.Context, req CreateSessionRequest) (*model.AgentSession, error) {
	prompt := BuildDecisionPrompt(req.Form)

	formData, err := toJSONMap(req.Form)
	if err != nil {
		return nil, fmt.Errorf("failed to encode form payload: %w", err)
	}

	session := model.AgentSession{
		UserID:    req.UserID,
		Title:     BuildSessionTitle(req.Form),
		AgentType: req.AgentType,
		Prompt:    prompt,
		FormData:  datatypes.JSONMap(formData),
		Metadata:  datatypes.JSONMap(BuildIntakeMetadata(req.Form, len(prompt))),
		Status:    model.SessionStatusCreated,
	}

	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &session, nil
}

// ListSessions returns the caller's sessions, newest first
func (s *SessionService) ListSessions(ctx context.Context, userID uint, limit, offset int) ([]model.AgentSession, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&model.AgentSession{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	var sessions []model.AgentSession
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&sessions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, total, nil
}

// GetSessionWithMessages returns a session and its full message history in
// conversation order. Foreign sessions surface as ErrSessionNotFound.
func (s *SessionService) GetSessionWithMessages(ctx context.Context, sessionID string, userID uint) (*model.AgentSession, []model.ChatMessage, error) {
	var session model.AgentSession
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("failed to fetch session: %w", err)
	}

	var messages []model.ChatMessage
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", session.ID).
		Order("created_at ASC").
		Find(&messages).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return &session, messages, nil
}

// UpdateSessionRequest is a partial session update
type UpdateSessionRequest struct {
	Title    *string
	Status   *model.SessionStatus
	Metadata map[string]interface{}
}

// UpdateSession applies a partial update to an owned session
func (s *SessionService) UpdateSession(ctx context.Context, sessionID string, userID uint, req UpdateSessionRequest) (*model.AgentSession, error) {
	var session model.AgentSession
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}

	updates := map[string]interface{}{"updated_at": time.Now()}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.Metadata != nil {
		merged := session.Metadata
		if merged == nil {
			merged = datatypes.JSONMap{}
		}
		for k, v := range req.Metadata {
			merged[k] = v
		}
		updates["metadata"] = merged
	}

	if err := s.db.WithContext(ctx).Model(&session).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return &session, nil
}

// UsageStats aggregates the caller's consumption for the dashboard
type UsageStats struct {
	SessionCount   int64 `json:"session_count"`
	TotalCostCents int64 `json:"total_cost_cents"`
	TotalTokens    int64 `json:"total_tokens"`
}

// GetUsage computes aggregate usage for one user
func (s *SessionService) GetUsage(ctx context.Context, userID uint) (*UsageStats, error) {
	stats := &UsageStats{}

	if err := s.db.WithContext(ctx).Model(&model.AgentSession{}).
		Where("user_id = ?", userID).
		Count(&stats.SessionCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	row := s.db.WithContext(ctx).Model(&model.AgentSession{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(cost_cents), 0)").Row()
	if err := row.Scan(&stats.TotalCostCents); err != nil {
		return nil, fmt.Errorf("failed to sum session costs: %w", err)
	}

	row = s.db.WithContext(ctx).Model(&model.ChatMessage{}).
		Joins("JOIN agent_sessions ON agent_sessions.id = chat_messages.session_id").
		Where("agent_sessions.user_id = ?", userID).
		Select("COALESCE(SUM(chat_messages.token_count), 0)").Row()
	if err := row.Scan(&stats.TotalTokens); err != nil {
		return nil, fmt.Errorf("failed to sum message tokens: %w", err)
	}

	return stats, nil
}

func toJSONMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
