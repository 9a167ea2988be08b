package chat

import (
	"bufio"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/innotech-solutions/innotech-api/services"
	openaisvc "github.com/innotech-solutions/innotech-api/services/openai"
	"github.com/innotech-solutions/innotech-api/utils/middleware"
	"github.com/innotech-solutions/innotech-api/utils/response"
	"github.com/innotech-solutions/innotech-api/utils/sse"
	"github.com/innotech-solutions/innotech-api/utils/validation"
)

// ChatHandler handles the streaming chat endpoint
type ChatHandler struct {
	db          *gorm.DB
	validator   *validation.Validator
	chatService *services.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(db *gorm.DB, chatService *services.ChatService) *ChatHandler {
	return &ChatHandler{
		db:          db,
		validator:   validation.NewValidator(),
		chatService: chatService,
	}
}

// StreamMessageRequest represents one streamed conversation turn
type StreamMessageRequest struct {
	SessionID  string `json:"sessionId" validate:"required,uuid"`
	Message    string `json:"message" validate:"required,min=1,max=10000"`
	Regenerate bool   `json:"regenerate"`
}

// StreamMessage handles POST /api/v1/chat/stream. Everything that can fail
// with a meaningful status code happens before the stream opens; after the
// first byte the only way to signal failure is the terminal error event.
func (h *ChatHandler) StreamMessage(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req StreamMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.BadRequest(c, "Invalid stream request: a session id and a non-empty message are required")
	}

	turn, err := h.chatService.BeginTurn(c.Context(), services.StreamMessageRequest{
		SessionID:  req.SessionID,
		UserID:     user.ID,
		Content:    req.Message,
		Regenerate: req.Regenerate,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			return response.NotFound(c, "Session not found")
		case errors.Is(err, services.ErrTurnInFlight):
			return response.Conflict(c, "A response is already being generated for this session")
		default:
			log.Printf("[Chat] Failed to begin turn for session %s: %v", req.SessionID, err)
			return response.InternalServerError(c, "Failed to start response")
		}
	}

	// Set headers for SSE
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	ctx := c.Context()
	sessionID := turn.Session.ID
	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		defer turn.Release(ctx)

		result, streamErr := h.chatService.StreamTurn(ctx, turn, func(fragment string) error {
			return sse.SendChunk(w, fragment)
		})
		if streamErr != nil {
			log.Printf("[Chat] Stream failed for session %s: %v", sessionID, streamErr)
			// Best effort: if the client is gone this write fails too
			_ = sse.SendError(w, streamErrorMessage(streamErr))
			return
		}

		if err := sse.SendEnd(w, result.TokenCount, result.CostCents); err != nil {
			log.Printf("[Chat] Failed to send end event for session %s: %v", sessionID, err)
		}
	})

	return nil
}

func streamErrorMessage(err error) string {
	switch {
	case errors.Is(err, openaisvc.ErrUpstreamUnavailable):
		return "The AI service is temporarily unavailable. Please try again."
	case errors.Is(err, openaisvc.ErrUpstreamInterrupted):
		return "The response was interrupted. Please try again."
	default:
		return "Failed to generate a response."
	}
}
