package session

import (
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/innotech-solutions/innotech-api/model"
	"github.com/innotech-solutions/innotech-api/services"
	"github.com/innotech-solutions/innotech-api/utils/middleware"
	"github.com/innotech-solutions/innotech-api/utils/response"
	"github.com/innotech-solutions/innotech-api/utils/validation"
)

// SessionHandler handles agent session CRUD and usage endpoints
type SessionHandler struct {
	db             *gorm.DB
	validator      *validation.Validator
	sessionService *services.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(db *gorm.DB, sessionService *services.SessionService) *SessionHandler {
	return &SessionHandler{
		db:             db,
		validator:      validation.NewValidator(),
		sessionService: sessionService,
	}
}

// CreateSessionRequest creates a session from an intake form submission
type CreateSessionRequest struct {
	AgentType string              `json:"agent_type" validate:"required,oneof=arquitecto-decisiones"`
	Form      services.IntakeForm `json:"form" validate:"required"`
}

// CreateSession handles POST /api/v1/sessions
func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}
	if err := h.validator.ValidateStruct(req.Form); err != nil {
		return response.ValidationError(c, err)
	}

	session, err := h.sessionService.CreateSession(c.Context(), services.CreateSessionRequest{
		UserID:    user.ID,
		AgentType: req.AgentType,
		Form:      req.Form,
	})
	if err != nil {
		log.Printf("[Session] Failed to create session for user %d: %v", user.ID, err)
		return response.InternalServerError(c, "Failed to create session")
	}

	return response.Created(c, session)
}

// ListSessions handles GET /api/v1/sessions
func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	sessions, total, err := h.sessionService.ListSessions(c.Context(), user.ID, limit, (page-1)*limit)
	if err != nil {
		log.Printf("[Session] Failed to list sessions for user %d: %v", user.ID, err)
		return response.InternalServerError(c, "Failed to list sessions")
	}

	return response.Paginated(c, sessions, response.CalculatePagination(page, limit, total))
}

// GetSession handles GET /api/v1/sessions/:id
func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	sessionID := c.Params("id")
	if sessionID == "" {
		return response.BadRequest(c, "Session ID is required")
	}

	session, messages, err := h.sessionService.GetSessionWithMessages(c.Context(), sessionID, user.ID)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return response.NotFound(c, "Session not found")
		}
		log.Printf("[Session] Failed to fetch session %s: %v", sessionID, err)
		return response.InternalServerError(c, "Failed to fetch session")
	}

	return response.Success(c, fiber.Map{
		"session":  session,
		"messages": messages,
	})
}

// UpdateSessionRequest is a partial session update
type UpdateSessionRequest struct {
	Title    *string                `json:"title" validate:"omitempty,max=255"`
	Status   *string                `json:"status" validate:"omitempty,oneof=created active completed"`
	Metadata map[string]interface{} `json:"metadata"`
}

// UpdateSession handles PATCH /api/v1/sessions/:id
func (h *SessionHandler) UpdateSession(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	sessionID := c.Params("id")
	if sessionID == "" {
		return response.BadRequest(c, "Session ID is required")
	}

	var req UpdateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}
	if req.Title == nil && req.Status == nil && req.Metadata == nil {
		return response.BadRequest(c, "Nothing to update")
	}

	update := services.UpdateSessionRequest{
		Title:    req.Title,
		Metadata: req.Metadata,
	}
	if req.Status != nil {
		status := model.SessionStatus(*req.Status)
		update.Status = &status
	}

	session, err := h.sessionService.UpdateSession(c.Context(), sessionID, user.ID, update)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			return response.NotFound(c, "Session not found")
		}
		log.Printf("[Session] Failed to update session %s: %v", sessionID, err)
		return response.InternalServerError(c, "Failed to update session")
	}

	return response.Success(c, session)
}

// GetUsage handles GET /api/v1/usage
func (h *SessionHandler) GetUsage(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	stats, err := h.sessionService.GetUsage(c.Context(), user.ID)
	if err != nil {
		log.Printf("[Session] Failed to compute usage for user %d: %v", user.ID, err)
		return response.InternalServerError(c, "Failed to compute usage")
	}

	return response.Success(c, stats)
}
