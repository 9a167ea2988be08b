package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
)

// newFakeProvider starts a completion endpoint that streams the given
// fragments. When done is false the stream stops without a [DONE] marker
// and the connection is held open so the idle guard has to fire.
func newFakeProvider(t *testing.T, fragments []string, done bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range fragments {
			fmt.Fprintf(w, "data: {\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", f)
			flusher.Flush()
		}
		if done {
			fmt.Fprint(w, "data: [DONE]\n\n")
			flusher.Flush()
			return
		}
		<-r.Context().Done()
	}))
}

func newTestService(t *testing.T, baseURL string, idleTimeout time.Duration) *Service {
	t.Helper()
	cfg := goopenai.DefaultConfig("test-key")
	cfg.BaseURL = baseURL + "/v1"
	return NewServiceWithClient(goopenai.NewClientWithConfig(cfg), idleTimeout)
}

func TestStreamChatCompletionDeliversFragmentsInOrder(t *testing.T) {
	srv := newFakeProvider(t, []string{"Hola ", "que ", "tal"}, true)
	defer srv.Close()

	svc := newTestService(t, srv.URL, 5*time.Second)

	var got []string
	err := svc.StreamChatCompletion(context.Background(), []goopenai.ChatCompletionMessage{
		{Role: goopenai.ChatMessageRoleUser, Content: "hi"},
	}, DefaultStreamConfig(), func(fragment string) error {
		got = append(got, fragment)
		return nil
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	if strings.Join(got, "") != "Hola que tal" {
		t.Errorf("fragments out of order or lost: %q", got)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 fragments, got %d", len(got))
	}
}

func TestStreamChatCompletionUnavailableBeforeFirstFragment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := newTestService(t, srv.URL, 5*time.Second)

	err := svc.StreamChatCompletion(context.Background(), nil, DefaultStreamConfig(), func(string) error {
		t.Fatal("callback must not run when the provider rejects the request")
		return nil
	})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestStreamChatCompletionInterruptedAfterFragments(t *testing.T) {
	srv := newFakeProvider(t, []string{"partial "}, false)
	defer srv.Close()

	svc := newTestService(t, srv.URL, 200*time.Millisecond)

	var got []string
	err := svc.StreamChatCompletion(context.Background(), nil, DefaultStreamConfig(), func(fragment string) error {
		got = append(got, fragment)
		return nil
	})
	if !errors.Is(err, ErrUpstreamInterrupted) {
		t.Fatalf("expected ErrUpstreamInterrupted, got %v", err)
	}
	if len(got) != 1 || got[0] != "partial " {
		t.Errorf("fragments before the drop must still be delivered, got %q", got)
	}
}

func TestStreamChatCompletionCallbackErrorPropagates(t *testing.T) {
	srv := newFakeProvider(t, []string{"a", "b", "c"}, true)
	defer srv.Close()

	svc := newTestService(t, srv.URL, 5*time.Second)

	sentinel := errors.New("client went away")
	err := svc.StreamChatCompletion(context.Background(), nil, DefaultStreamConfig(), func(string) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("callback error must propagate unchanged, got %v", err)
	}
}

func TestStreamChatCompletionStopsReceiverOnIdleTimeout(t *testing.T) {
	srv := newFakeProvider(t, []string{"first "}, false)
	defer srv.Close()

	svc := newTestService(t, srv.URL, 100*time.Millisecond)

	before := runtime.NumGoroutine()
	for i := 0; i < 5; i++ {
		err := svc.StreamChatCompletion(context.Background(), nil, DefaultStreamConfig(), func(string) error { return nil })
		if !errors.Is(err, ErrUpstreamInterrupted) {
			t.Fatalf("expected ErrUpstreamInterrupted, got %v", err)
		}
	}

	// The receive goroutines must unwind once the calls return
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before+2 {
		if time.Now().After(deadline) {
			t.Fatalf("receiver goroutines leaked: %d running, started with %d",
				runtime.NumGoroutine(), before)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStreamChatCompletionCancellation(t *testing.T) {
	srv := newFakeProvider(t, []string{"first "}, false)
	defer srv.Close()

	svc := newTestService(t, srv.URL, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	err := svc.StreamChatCompletion(ctx, nil, DefaultStreamConfig(), func(string) error {
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
