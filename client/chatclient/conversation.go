package chatclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State of a conversation
type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateStreaming State = "streaming"
)

var (
	// ErrTurnInFlight means a turn is already outstanding
	ErrTurnInFlight = errors.New("a turn is already in flight")

	// ErrNoTurnInFlight means there is nothing to cancel
	ErrNoTurnInFlight = errors.New("no turn is in flight")

	// ErrNothingToRegenerate means the last committed message is not an
	// assistant response
	ErrNothingToRegenerate = errors.New("the last message is not an assistant response")

	// ErrStreamTruncated means the stream ended without a terminal event
	ErrStreamTruncated = errors.New("stream ended without a terminal event")
)

// ServerError is a terminal error event reported by the server
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server reported stream error: %s", e.Message)
}

// Message is one committed entry of the local conversation view
type Message struct {
	ID         string
	Role       string // "user" or "assistant"
	Content    string
	TokenCount int
	CostCents  int
	CreatedAt  time.Time
}

// Conversation manages one logical agent session: it sends turns, decodes
// the event stream, and keeps the committed message list plus the in-progress
// buffer. Accessors are safe to call from other goroutines while a turn
// streams, which is how cancellation and UI rendering work.
type Conversation struct {
	client    *Client
	sessionID string

	// OnChunk, when set, observes every appended fragment as it arrives
	OnChunk func(fragment string)

	mu        sync.Mutex
	state     State
	messages  []Message
	buffer    string
	costCents int
	cancel    context.CancelFunc
	cancelled bool
}

// NewConversation creates a conversation bound to an existing session
func NewConversation(client *Client, sessionID string) *Conversation {
	return &Conversation{
		client:    client,
		sessionID: sessionID,
		state:     StateIdle,
	}
}

// State returns the current state
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a copy of the committed message list
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Buffer returns the in-progress assistant text
func (c *Conversation) Buffer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer
}

// TotalCostCents returns the session cost accumulated from end events and
// LoadSession reconciliation.
func (c *Conversation) TotalCostCents() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.costCents
}

// SendMessage runs one full turn: the user message is appended locally
// before any network I/O, then chunks accumulate into the buffer until the
// terminal event commits or discards it. Blocks until the turn is over;
// CancelStream may interrupt it from another goroutine.
func (c *Conversation) SendMessage(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrTurnInFlight
	}
	c.state = StateSending
	c.cancelled = false
	c.messages = append(c.messages, Message{
		ID:        uuid.New().String(),
		Role:      "user",
		Content:   text,
		CreatedAt: time.Now(),
	})
	c.mu.Unlock()

	return c.runTurn(ctx, text, false)
}

// CancelStream aborts the in-flight turn. The buffer is discarded and no
// chunk received after cancellation reaches the visible state.
func (c *Conversation) CancelStream() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle || c.cancel == nil {
		return ErrNoTurnInFlight
	}
	c.cancelled = true
	c.cancel()
	return nil
}

// RegenerateLastResponse removes the last assistant message locally and
// replays the most recent user message with the regenerate flag, so the
// server supersedes its stored copy too.
func (c *Conversation) RegenerateLastResponse(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrTurnInFlight
	}
	if len(c.messages) == 0 || c.messages[len(c.messages)-1].Role != "assistant" {
		c.mu.Unlock()
		return ErrNothingToRegenerate
	}
	c.messages = c.messages[:len(c.messages)-1]

	var lastUser string
	found := false
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == "user" {
			lastUser = c.messages[i].Content
			found = true
			break
		}
	}
	if !found {
		c.mu.Unlock()
		return ErrNothingToRegenerate
	}
	c.state = StateSending
	c.cancelled = false
	c.mu.Unlock()

	return c.runTurn(ctx, lastUser, true)
}

// LoadSession replaces the local view with the server-persisted history
func (c *Conversation) LoadSession(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrTurnInFlight
	}
	c.mu.Unlock()

	session, serverMessages, err := c.client.GetSession(ctx, c.sessionID)
	if err != nil {
		return err
	}

	messages := make([]Message, 0, len(serverMessages))
	for _, m := range serverMessages {
		messages = append(messages, Message{
			ID:         m.ID,
			Role:       m.Role,
			Content:    m.Content,
			TokenCount: m.TokenCount,
			CostCents:  m.CostCents,
			CreatedAt:  m.CreatedAt,
		})
	}

	c.mu.Lock()
	c.messages = messages
	c.costCents = session.CostCents
	c.buffer = ""
	c.mu.Unlock()
	return nil
}

func (c *Conversation) runTurn(ctx context.Context, text string, regenerate bool) error {
	turnCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	err := c.streamTurn(turnCtx, text, regenerate)

	c.mu.Lock()
	c.cancel = nil
	c.buffer = ""
	c.state = StateIdle
	c.mu.Unlock()
	cancel()
	return err
}

// streamTurn opens the stream and consumes events until a terminal event,
// cancellation, or transport failure.
func (c *Conversation) streamTurn(ctx context.Context, text string, regenerate bool) error {
	body, err := c.client.openStream(ctx, c.sessionID, text, regenerate)
	if err != nil {
		return err
	}
	defer body.Close()

	c.mu.Lock()
	c.state = StateStreaming
	c.buffer = ""
	c.mu.Unlock()

	reader := NewEventReader(body)
	for {
		event, err := reader.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return ErrStreamTruncated
			}
			return err
		}

		switch event.Type {
		case EventChunk:
			c.mu.Lock()
			if c.cancelled {
				c.mu.Unlock()
				return context.Canceled
			}
			c.buffer += event.Chunk
			onChunk := c.OnChunk
			c.mu.Unlock()
			if onChunk != nil {
				onChunk(event.Chunk)
			}

		case EventEnd:
			c.mu.Lock()
			if c.cancelled {
				c.mu.Unlock()
				return context.Canceled
			}
			c.messages = append(c.messages, Message{
				ID:         uuid.New().String(),
				Role:       "assistant",
				Content:    c.buffer,
				TokenCount: event.TokenCount,
				CostCents:  event.Cost,
				CreatedAt:  time.Now(),
			})
			c.costCents += event.Cost
			c.mu.Unlock()
			return nil

		case EventError:
			return &ServerError{Message: event.Error}
		}
	}
}
