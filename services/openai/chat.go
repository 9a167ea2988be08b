// Package openai wraps the completion provider behind a callback streaming
// API so handlers never touch the provider SDK directly.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
)

var (
	// ErrUpstreamUnavailable means the provider rejected the request or could
	// not be reached before any fragment was emitted. Safe to retry the turn.
	ErrUpstreamUnavailable = errors.New("completion service unavailable")

	// ErrUpstreamInterrupted means the stream dropped after fragments were
	// emitted. Fragments already delivered stay valid; the turn must not be
	// retried automatically or fragments would duplicate.
	ErrUpstreamInterrupted = errors.New("completion stream interrupted")
)

// DefaultIdleTimeout is how long the adapter waits between fragments before
// treating the stream as dead.
const DefaultIdleTimeout = 60 * time.Second

// StreamConfig holds per-request completion parameters
type StreamConfig struct {
	Model            string
	Temperature      float32
	MaxTokens        int
	PresencePenalty  float32
	FrequencyPenalty float32
}

// DefaultStreamConfig returns the parameters used for agent turns
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Model:            "gpt-4-turbo-preview",
		Temperature:      0.7,
		MaxTokens:        2000,
		PresencePenalty:  0.1,
		FrequencyPenalty: 0.1,
	}
}

// Service is the completion stream adapter
type Service struct {
	client      *goopenai.Client
	idleTimeout time.Duration
}

// NewService creates an adapter talking to the OpenAI API
func NewService(apiKey string) *Service {
	return &Service{
		client:      goopenai.NewClient(apiKey),
		idleTimeout: DefaultIdleTimeout,
	}
}

// NewServiceWithClient creates an adapter around an existing provider client.
// Used by tests to point at a local server.
func NewServiceWithClient(client *goopenai.Client, idleTimeout time.Duration) *Service {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Service{client: client, idleTimeout: idleTimeout}
}

type recvResult struct {
	resp goopenai.ChatCompletionStreamResponse
	err  error
}

// StreamChatCompletion opens a streaming completion and invokes callback for
// every text fragment, in arrival order, as soon as it arrives. A non-nil
// callback error aborts the stream and is returned unchanged, so callers can
// use it to detect their own write failures. Cancelling ctx tears down the
// upstream connection.
func (s *Service) StreamChatCompletion(ctx context.Context, messages []goopenai.ChatCompletionMessage, config StreamConfig, callback func(fragment string) error) error {
	// The receive goroutine below must not outlive this call, so every
	// return path cancels.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req := goopenai.ChatCompletionRequest{
		Model:            config.Model,
		Messages:         messages,
		Temperature:      config.Temperature,
		MaxTokens:        config.MaxTokens,
		PresencePenalty:  config.PresencePenalty,
		FrequencyPenalty: config.FrequencyPenalty,
		Stream:           true,
	}

	stream, err := s.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer stream.Close()

	// Recv blocks with no deadline of its own, so it runs in a goroutine and
	// the select below enforces the idle window.
	results := make(chan recvResult)
	go func() {
		for {
			resp, recvErr := stream.Recv()
			select {
			case results <- recvResult{resp: resp, err: recvErr}:
			case <-ctx.Done():
				return
			}
			if recvErr != nil {
				return
			}
		}
	}()

	emitted := false
	idle := time.NewTimer(s.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-idle.C:
			if emitted {
				return fmt.Errorf("%w: no data for %s", ErrUpstreamInterrupted, s.idleTimeout)
			}
			return fmt.Errorf("%w: no data for %s", ErrUpstreamUnavailable, s.idleTimeout)

		case result := <-results:
			if result.err != nil {
				if errors.Is(result.err, io.EOF) {
					return nil
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if emitted {
					return fmt.Errorf("%w: %v", ErrUpstreamInterrupted, result.err)
				}
				return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, result.err)
			}

			if len(result.resp.Choices) > 0 {
				if fragment := result.resp.Choices[0].Delta.Content; fragment != "" {
					emitted = true
					if cbErr := callback(fragment); cbErr != nil {
						return cbErr
					}
				}
			}

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.idleTimeout)
		}
	}
}
