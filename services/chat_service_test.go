package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"gorm.io/gorm"

	"github.com/innotech-solutions/innotech-api/model"
	openaisvc "github.com/innotech-solutions/innotech-api/services/openai"
	"github.com/innotech-solutions/innotech-api/utils/tokens"
)

const testSessionID = "0b9fe5b7-68cb-4f3a-9e5c-5a9f6f3b2a10"

// fakeTurnStore records storage calls in arrival order so tests can assert
// what was persisted and when.
type fakeTurnStore struct {
	session  *model.AgentSession
	messages []model.ChatMessage

	calls          []string
	created        []model.ChatMessage
	committed      []model.ChatMessage
	committedCosts []int

	createErr error
	commitErr error
}

func (f *fakeTurnStore) FetchOwnedSession(ctx context.Context, sessionID string, userID uint) (*model.AgentSession, error) {
	f.calls = append(f.calls, "fetch")
	if f.session == nil || f.session.ID != sessionID || f.session.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	session := *f.session
	return &session, nil
}

func (f *fakeTurnStore) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	f.calls = append(f.calls, "list")
	return f.messages, nil
}

func (f *fakeTurnStore) CreateMessage(ctx context.Context, msg *model.ChatMessage) error {
	f.calls = append(f.calls, "create")
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, *msg)
	return nil
}

func (f *fakeTurnStore) SupersedeLastAssistantMessage(ctx context.Context, sessionID string) error {
	f.calls = append(f.calls, "supersede")
	return nil
}

func (f *fakeTurnStore) CommitAssistantTurn(ctx context.Context, msg *model.ChatMessage, costCents int) error {
	f.calls = append(f.calls, "commit")
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = append(f.committed, *msg)
	f.committedCosts = append(f.committedCosts, costCents)
	return nil
}

func testAgentSession() *model.AgentSession {
	return &model.AgentSession{
		ID:     testSessionID,
		UserID: 7,
		Prompt: "You are an advisor.",
		Status: model.SessionStatusCreated,
	}
}

// newCompletionProvider streams the given fragments; a non-200 status
// rejects the request before any fragment.
func newCompletionProvider(t *testing.T, fragments []string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, `{"error":{"message":"overloaded"}}`, status)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range fragments {
			fmt.Fprintf(w, "data: {\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", f)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
}

func newTestChatService(t *testing.T, store turnStore, providerURL string) *ChatService {
	t.Helper()
	cfg := goopenai.DefaultConfig("test-key")
	cfg.BaseURL = providerURL + "/v1"
	return &ChatService{
		store:  store,
		ai:     openaisvc.NewServiceWithClient(goopenai.NewClientWithConfig(cfg), 5*time.Second),
		guard:  NewStreamGuard(nil),
		config: openaisvc.DefaultStreamConfig(),
	}
}

func TestBeginTurnPersistsUserMessage(t *testing.T) {
	store := &fakeTurnStore{session: testAgentSession()}
	svc := newTestChatService(t, store, "http://unused.invalid")
	ctx := context.Background()

	turn, err := svc.BeginTurn(ctx, StreamMessageRequest{
		SessionID: testSessionID,
		UserID:    7,
		Content:   "Should we pivot to enterprise?",
	})
	if err != nil {
		t.Fatalf("BeginTurn failed: %v", err)
	}
	defer turn.Release(ctx)

	if len(store.created) != 1 {
		t.Fatalf("expected exactly one persisted user message, got %d", len(store.created))
	}
	msg := store.created[0]
	if msg.Role != model.RoleUser || msg.Content != "Should we pivot to enterprise?" {
		t.Errorf("unexpected user message %+v", msg)
	}
	if msg.TokenCount != tokens.EstimateTokenCount(msg.Content) {
		t.Errorf("token_count = %d, want estimate %d", msg.TokenCount, tokens.EstimateTokenCount(msg.Content))
	}
	if msg.CostCents != 0 {
		t.Errorf("user message cost must be 0, got %d", msg.CostCents)
	}

	last := turn.Messages[len(turn.Messages)-1]
	if last.Role != goopenai.ChatMessageRoleUser || last.Content != "Should we pivot to enterprise?" {
		t.Errorf("new user message must close the prompt, got %+v", last)
	}
	if turn.Messages[0].Role != goopenai.ChatMessageRoleSystem || turn.Messages[0].Content != "You are an advisor." {
		t.Errorf("system prompt must come first, got %+v", turn.Messages[0])
	}
}

func TestBeginTurnSessionNotFound(t *testing.T) {
	store := &fakeTurnStore{}
	svc := newTestChatService(t, store, "http://unused.invalid")

	_, err := svc.BeginTurn(context.Background(), StreamMessageRequest{
		SessionID: testSessionID,
		UserID:    7,
		Content:   "hello",
	})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if len(store.created) != 0 {
		t.Error("nothing may be persisted for an unknown session")
	}
}

func TestBeginTurnConflictWhileTurnInFlight(t *testing.T) {
	store := &fakeTurnStore{session: testAgentSession()}
	svc := newTestChatService(t, store, "http://unused.invalid")
	ctx := context.Background()

	first, err := svc.BeginTurn(ctx, StreamMessageRequest{SessionID: testSessionID, UserID: 7, Content: "one"})
	if err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	defer first.Release(ctx)

	_, err = svc.BeginTurn(ctx, StreamMessageRequest{SessionID: testSessionID, UserID: 7, Content: "two"})
	if !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("expected ErrTurnInFlight, got %v", err)
	}
	if len(store.created) != 1 {
		t.Errorf("the rejected turn must not persist a user message, got %d", len(store.created))
	}
}

func TestStreamTurnCommitsReportedAccounting(t *testing.T) {
	srv := newCompletionProvider(t, []string{"Hola ", "que ", "tal"}, http.StatusOK)
	defer srv.Close()

	store := &fakeTurnStore{session: testAgentSession()}
	svc := newTestChatService(t, store, srv.URL)
	ctx := context.Background()

	turn, err := svc.BeginTurn(ctx, StreamMessageRequest{SessionID: testSessionID, UserID: 7, Content: "Hola"})
	if err != nil {
		t.Fatalf("BeginTurn failed: %v", err)
	}
	defer turn.Release(ctx)

	var chunks []string
	result, err := svc.StreamTurn(ctx, turn, func(fragment string) error {
		chunks = append(chunks, fragment)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamTurn failed: %v", err)
	}

	if strings.Join(chunks, "") != "Hola que tal" {
		t.Errorf("chunks out of order or lost: %q", chunks)
	}

	wantTokens := tokens.EstimateTokenCount("Hola que tal")
	wantCost := tokens.CalculateCost(turn.InputTokens, wantTokens)
	if result.TokenCount != wantTokens || result.CostCents != wantCost {
		t.Errorf("result accounting = (%d, %d), want (%d, %d)",
			result.TokenCount, result.CostCents, wantTokens, wantCost)
	}

	if len(store.committed) != 1 {
		t.Fatalf("expected one committed assistant message, got %d", len(store.committed))
	}
	assistant := store.committed[0]
	if assistant.Role != model.RoleAssistant || assistant.Content != "Hola que tal" {
		t.Errorf("unexpected assistant message %+v", assistant)
	}
	if assistant.CostCents != wantCost {
		t.Errorf("assistant message cost = %d, want %d", assistant.CostCents, wantCost)
	}
	if store.committedCosts[0] != result.CostCents {
		t.Errorf("session increment %d must equal the reported cost %d",
			store.committedCosts[0], result.CostCents)
	}
}

func TestStreamTurnUpstreamFailureLeavesUserMessageOnly(t *testing.T) {
	srv := newCompletionProvider(t, nil, http.StatusServiceUnavailable)
	defer srv.Close()

	store := &fakeTurnStore{session: testAgentSession()}
	svc := newTestChatService(t, store, srv.URL)
	ctx := context.Background()

	turn, err := svc.BeginTurn(ctx, StreamMessageRequest{SessionID: testSessionID, UserID: 7, Content: "hello"})
	if err != nil {
		t.Fatalf("BeginTurn failed: %v", err)
	}
	defer turn.Release(ctx)

	_, streamErr := svc.StreamTurn(ctx, turn, func(string) error { return nil })
	if !errors.Is(streamErr, openaisvc.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", streamErr)
	}

	if len(store.created) != 1 {
		t.Errorf("the user message must survive the failed stream, got %d", len(store.created))
	}
	if len(store.committed) != 0 {
		t.Error("no assistant message or cost change may be committed on upstream failure")
	}
}

func TestStreamTurnPersistenceFailureKeepsAccounting(t *testing.T) {
	srv := newCompletionProvider(t, []string{"fine"}, http.StatusOK)
	defer srv.Close()

	store := &fakeTurnStore{session: testAgentSession(), commitErr: errors.New("db down")}
	svc := newTestChatService(t, store, srv.URL)
	ctx := context.Background()

	turn, err := svc.BeginTurn(ctx, StreamMessageRequest{SessionID: testSessionID, UserID: 7, Content: "hello"})
	if err != nil {
		t.Fatalf("BeginTurn failed: %v", err)
	}
	defer turn.Release(ctx)

	result, err := svc.StreamTurn(ctx, turn, func(string) error { return nil })
	if err != nil {
		t.Fatalf("a persistence failure after a complete stream must not fail the turn: %v", err)
	}
	wantTokens := tokens.EstimateTokenCount("fine")
	if result.TokenCount != wantTokens || result.CostCents != tokens.CalculateCost(turn.InputTokens, wantTokens) {
		t.Errorf("accounting must still be reported, got %+v", result)
	}
}

func TestBeginTurnRegenerateReplaysWithoutDuplicateUserMessage(t *testing.T) {
	store := &fakeTurnStore{
		session: testAgentSession(),
		// the post-supersede view: history ends with the user message
		messages: []model.ChatMessage{
			{Role: model.RoleUser, Content: "Should we pivot?"},
		},
	}
	svc := newTestChatService(t, store, "http://unused.invalid")
	ctx := context.Background()

	turn, err := svc.BeginTurn(ctx, StreamMessageRequest{
		SessionID:  testSessionID,
		UserID:     7,
		Content:    "Should we pivot?",
		Regenerate: true,
	})
	if err != nil {
		t.Fatalf("BeginTurn failed: %v", err)
	}
	defer turn.Release(ctx)

	if len(store.created) != 0 {
		t.Fatalf("regeneration must not persist a second user message, got %d", len(store.created))
	}
	if want := []string{"fetch", "supersede", "list"}; !reflect.DeepEqual(store.calls, want) {
		t.Errorf("storage call order = %v, want %v", store.calls, want)
	}
	if len(turn.Messages) != 2 {
		t.Fatalf("expected system + replayed user message, got %d", len(turn.Messages))
	}
	last := turn.Messages[1]
	if last.Role != goopenai.ChatMessageRoleUser || last.Content != "Should we pivot?" {
		t.Errorf("the stored user message must close the prompt, got %+v", last)
	}
}
