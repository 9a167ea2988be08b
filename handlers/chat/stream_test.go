package chat

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/innotech-solutions/innotech-api/model"
)

// newTestApp mounts the stream handler behind a stub that injects an
// authenticated user, the same locals the auth middleware sets.
func newTestApp(handler *ChatHandler, authenticated bool) *fiber.App {
	app := fiber.New()
	app.Post("/stream", func(c *fiber.Ctx) error {
		if authenticated {
			c.Locals("user_id", uint(7))
			c.Locals("user", &model.User{Email: "test@example.com", Role: "member"})
		}
		return c.Next()
	}, handler.StreamMessage)
	return app
}

func postStream(t *testing.T, app *fiber.App, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/stream", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestStreamMessageRequiresAuthentication(t *testing.T) {
	app := newTestApp(NewChatHandler(nil, nil), false)

	resp := postStream(t, app, `{"sessionId":"0b9fe5b7-68cb-4f3a-9e5c-5a9f6f3b2a10","message":"hello"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestStreamMessageRejectsMalformedBody(t *testing.T) {
	app := newTestApp(NewChatHandler(nil, nil), true)

	resp := postStream(t, app, `{"sessionId":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStreamMessageValidatesRequest(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing session id", `{"message":"hello"}`},
		{"non-uuid session id", `{"sessionId":"not-a-uuid","message":"hello"}`},
		{"empty message", `{"sessionId":"0b9fe5b7-68cb-4f3a-9e5c-5a9f6f3b2a10","message":""}`},
		{"oversized message", `{"sessionId":"0b9fe5b7-68cb-4f3a-9e5c-5a9f6f3b2a10","message":"` + strings.Repeat("a", 10001) + `"}`},
	}

	app := newTestApp(NewChatHandler(nil, nil), true)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postStream(t, app, tc.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}
