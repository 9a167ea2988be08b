// Package chatclient is the Go client for the InnoTech agent chat API. It
// reconstructs assistant messages from the text event stream and keeps a
// local view of the conversation consistent with what the server persists.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the InnoTech API
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates an API client. The http.Client carries no global timeout
// because stream requests stay open for the whole turn.
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
	}
}

// SetToken sets the bearer token used on authenticated calls
func (c *Client) SetToken(token string) {
	c.token = token
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details,omitempty"`
	} `json:"error,omitempty"`
}

// APIError is a non-2xx response from the API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := envelope.Message
		if message == "" && envelope.Error != nil {
			message = envelope.Error.Message
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if out != nil && envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type authResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Login authenticates and stores the access token on the client
func (c *Client) Login(ctx context.Context, email, password string) error {
	var res authResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/login", credentials{Email: email, Password: password}, &res); err != nil {
		return err
	}
	c.token = res.AccessToken
	return nil
}

// Register creates an account and stores the access token on the client
func (c *Client) Register(ctx context.Context, email, password, name string) error {
	var res authResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/register", credentials{Email: email, Password: password, Name: name}, &res); err != nil {
		return err
	}
	c.token = res.AccessToken
	return nil
}

// Session is the server-side view of an agent session
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	AgentType string    `json:"agent_type"`
	Status    string    `json:"status"`
	CostCents int       `json:"cost_cents"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ServerMessage is a persisted chat message as the API returns it
type ServerMessage struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	CostCents  int       `json:"cost_cents"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateSession submits an intake form and returns the new session
func (c *Client) CreateSession(ctx context.Context, agentType string, form interface{}) (*Session, error) {
	var session Session
	body := map[string]interface{}{
		"agent_type": agentType,
		"form":       form,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/sessions", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession fetches a session and its persisted history
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, []ServerMessage, error) {
	var out struct {
		Session  Session         `json:"session"`
		Messages []ServerMessage `json:"messages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/sessions/"+sessionID, nil, &out); err != nil {
		return nil, nil, err
	}
	return &out.Session, out.Messages, nil
}

// Usage is the caller's aggregate consumption
type Usage struct {
	SessionCount   int64 `json:"session_count"`
	TotalCostCents int64 `json:"total_cost_cents"`
	TotalTokens    int64 `json:"total_tokens"`
}

// GetUsage fetches the caller's usage stats
func (c *Client) GetUsage(ctx context.Context) (*Usage, error) {
	var usage Usage
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/usage", nil, &usage); err != nil {
		return nil, err
	}
	return &usage, nil
}

// openStream POSTs a turn to the stream endpoint and returns the response
// body for incremental decoding. The caller owns the body.
func (c *Client) openStream(ctx context.Context, sessionID, message string, regenerate bool) (io.ReadCloser, error) {
	raw, err := json.Marshal(map[string]interface{}{
		"sessionId":  sessionID,
		"message":    message,
		"regenerate": regenerate,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chat/stream", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		var envelope apiResponse
		message := ""
		if json.Unmarshal(body, &envelope) == nil {
			message = envelope.Message
			if message == "" && envelope.Error != nil {
				message = envelope.Error.Message
			}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	return resp.Body, nil
}
