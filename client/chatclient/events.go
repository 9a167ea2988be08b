package chatclient

import (
	"bufio"
	"encoding/json"
	"io"
	"log"
	"strings"
)

// Event type constants of the chat stream protocol
const (
	EventChunk = "chunk"
	EventEnd   = "end"
	EventError = "error"
)

// StreamEvent is one decoded record of the chat stream
type StreamEvent struct {
	Type       string `json:"type"`
	Chunk      string `json:"chunk,omitempty"`
	TokenCount int    `json:"tokenCount,omitempty"`
	Cost       int    `json:"cost,omitempty"`
	Error      string `json:"error,omitempty"`
}

// EventReader incrementally decodes newline-delimited "data: <json>" records
// from a response body. Events come back strictly in arrival order; records
// that fail to decode are skipped with a warning so one garbled line cannot
// kill an otherwise healthy stream.
type EventReader struct {
	scanner *bufio.Scanner
}

// NewEventReader wraps a stream body
func NewEventReader(r io.Reader) *EventReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &EventReader{scanner: scanner}
}

// Next returns the next event, or io.EOF when the stream is exhausted
func (r *EventReader) Next() (*StreamEvent, error) {
	for r.scanner.Scan() {
		line := strings.TrimRight(r.scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		var event StreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.Printf("Warning: skipping malformed stream record: %v", err)
			continue
		}
		switch event.Type {
		case EventChunk, EventEnd, EventError:
			return &event, nil
		default:
			log.Printf("Warning: skipping stream record with unknown type %q", event.Type)
		}
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
