package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"gorm.io/gorm"

	"github.com/innotech-solutions/innotech-api/model"
	openaisvc "github.com/innotech-solutions/innotech-api/services/openai"
	"github.com/innotech-solutions/innotech-api/utils/tokens"
)

var (
	// ErrSessionNotFound covers both a missing session and one owned by
	// another user, so the handler leaks nothing about foreign sessions.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTurnInFlight means another streaming turn holds the session
	ErrTurnInFlight = errors.New("a streaming turn is already in progress for this session")
)

// turnStore is the storage surface one streaming turn needs. gormTurnStore
// below is the production implementation; tests substitute their own.
type turnStore interface {
	FetchOwnedSession(ctx context.Context, sessionID string, userID uint) (*model.AgentSession, error)
	ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	CreateMessage(ctx context.Context, msg *model.ChatMessage) error
	SupersedeLastAssistantMessage(ctx context.Context, sessionID string) error
	CommitAssistantTurn(ctx context.Context, msg *model.ChatMessage, costCents int) error
}

// ChatService orchestrates streaming chat turns
type ChatService struct {
	store  turnStore
	ai     *openaisvc.Service
	guard  *StreamGuard
	config openaisvc.StreamConfig
}

// NewChatService creates a new chat service
func NewChatService(db *gorm.DB, ai *openaisvc.Service, guard *StreamGuard) *ChatService {
	return &ChatService{
		store:  &gormTurnStore{db: db},
		ai:     ai,
		guard:  guard,
		config: openaisvc.DefaultStreamConfig(),
	}
}

// StreamMessageRequest is one turn of a conversation
type StreamMessageRequest struct {
	SessionID  string
	UserID     uint
	Content    string
	Regenerate bool
}

// Turn is a prepared streaming turn. The user message is already persisted
// (except on regeneration, which replays the stored one); Release must be
// called exactly once when the turn is over.
type Turn struct {
	Session     *model.AgentSession
	UserMessage *model.ChatMessage
	Messages    []goopenai.ChatCompletionMessage
	InputTokens int

	guard     *StreamGuard
	sessionID string
	released  bool
}

// Release frees the per-session stream guard
func (t *Turn) Release(ctx context.Context) {
	if t.released {
		return
	}
	t.released = true
	t.guard.Release(ctx, t.sessionID)
}

// BeginTurn runs everything that must happen before the response stream
// opens: ownership check, single-flight guard, regeneration supersede,
// history load, user message persistence, and prompt assembly. Errors here
// map cleanly onto HTTP statuses because no bytes have been streamed yet.
func (s *ChatService) BeginTurn(ctx context.Context, req StreamMessageRequest) (*Turn, error) {
	session, err := s.store.FetchOwnedSession(ctx, req.SessionID, req.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}

	if !s.guard.Acquire(ctx, session.ID) {
		return nil, ErrTurnInFlight
	}
	// From here on every error path must release the guard
	turn := &Turn{
		Session:   session,
		guard:     s.guard,
		sessionID: session.ID,
	}

	if req.Regenerate {
		if err := s.store.SupersedeLastAssistantMessage(ctx, session.ID); err != nil {
			turn.Release(ctx)
			return nil, fmt.Errorf("failed to supersede last response: %w", err)
		}
	}

	history, err := s.store.ListMessages(ctx, session.ID)
	if err != nil {
		turn.Release(ctx)
		return nil, fmt.Errorf("failed to fetch conversation history: %w", err)
	}

	if req.Regenerate {
		// The replayed user message is already the last stored entry;
		// inserting another copy would duplicate it in the history.
		turn.Messages = openaisvc.BuildMessagesFromHistory(session.Prompt, history)
	} else {
		userMessage := model.ChatMessage{
			SessionID:  session.ID,
			Role:       model.RoleUser,
			Content:    req.Content,
			TokenCount: tokens.EstimateTokenCount(req.Content),
			CostCents:  0,
		}
		if err := s.store.CreateMessage(ctx, &userMessage); err != nil {
			turn.Release(ctx)
			return nil, fmt.Errorf("failed to save user message: %w", err)
		}
		turn.UserMessage = &userMessage
		turn.Messages = openaisvc.BuildMessagesArray(session.Prompt, history, req.Content)
	}

	for _, msg := range turn.Messages {
		turn.InputTokens += tokens.EstimateTokenCount(msg.Content)
	}

	return turn, nil
}

// TurnResult carries the accounting reported in the terminal end event
type TurnResult struct {
	AssistantMessage *model.ChatMessage
	TokenCount       int
	CostCents        int
}

// StreamTurn streams the completion for a prepared turn, invoking onChunk for
// every fragment in arrival order. A non-nil onChunk error means the client
// connection is dead: the upstream stream is cancelled, nothing is persisted,
// and the error comes back unchanged. On upstream failure nothing is
// persisted either; the partial text is discarded and the user message from
// BeginTurn remains. A persistence failure after a complete stream is logged
// but does not fail the turn, so the accounting already streamed stays valid.
func (s *ChatService) StreamTurn(ctx context.Context, turn *Turn, onChunk func(fragment string) error) (*TurnResult, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var fullContent strings.Builder
	streamErr := s.ai.StreamChatCompletion(streamCtx, turn.Messages, s.config, func(fragment string) error {
		if err := onChunk(fragment); err != nil {
			cancel()
			return err
		}
		fullContent.WriteString(fragment)
		return nil
	})
	if streamErr != nil {
		return nil, streamErr
	}

	outputTokens := tokens.EstimateTokenCount(fullContent.String())
	costCents := tokens.CalculateCost(turn.InputTokens, outputTokens)

	assistantMessage := model.ChatMessage{
		SessionID:  turn.Session.ID,
		Role:       model.RoleAssistant,
		Content:    fullContent.String(),
		TokenCount: outputTokens,
		CostCents:  costCents,
	}

	if err := s.store.CommitAssistantTurn(ctx, &assistantMessage, costCents); err != nil {
		log.Printf("Warning: failed to persist turn for session %s: %v", turn.Session.ID, err)
		return &TurnResult{TokenCount: outputTokens, CostCents: costCents}, nil
	}

	return &TurnResult{
		AssistantMessage: &assistantMessage,
		TokenCount:       outputTokens,
		CostCents:        costCents,
	}, nil
}

// gormTurnStore backs the chat service with GORM/Postgres
type gormTurnStore struct {
	db *gorm.DB
}

func (s *gormTurnStore) FetchOwnedSession(ctx context.Context, sessionID string, userID uint) (*model.AgentSession, error) {
	var session model.AgentSession
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *gormTurnStore) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *gormTurnStore) CreateMessage(ctx context.Context, msg *model.ChatMessage) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

// SupersedeLastAssistantMessage soft-deletes the most recent assistant
// message so a regenerated response replaces it in storage. Session cost is
// never decremented.
func (s *gormTurnStore) SupersedeLastAssistantMessage(ctx context.Context, sessionID string) error {
	var last model.ChatMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND role = ?", sessionID, model.RoleAssistant).
		Order("created_at DESC").
		First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(&last).Error
}

// CommitAssistantTurn inserts the assistant message and increments the
// session cost in one transaction, with the increment done as a SQL
// expression so concurrent sessions of the same user cannot lose updates.
func (s *gormTurnStore) CommitAssistantTurn(ctx context.Context, msg *model.ChatMessage, costCents int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&model.AgentSession{}).
			Where("id = ?", msg.SessionID).
			Updates(map[string]interface{}{
				"cost_cents": gorm.Expr("cost_cents + ?", costCents),
				"status":     model.SessionStatusActive,
				"updated_at": time.Now(),
			}).Error
	})
}
