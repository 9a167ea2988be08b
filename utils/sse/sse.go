package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
)

// Send writes a single event payload as a "data:" line followed by a blank
// line and flushes immediately so the client sees it without buffering delay.
func Send(w *bufio.Writer, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write stream event: %w", err)
	}

	return w.Flush()
}

// SendChunk forwards one text fragment
func SendChunk(w *bufio.Writer, chunk string) error {
	return Send(w, map[string]interface{}{
		"type":  "chunk",
		"chunk": chunk,
	})
}

// SendEnd terminates the stream successfully with final accounting
func SendEnd(w *bufio.Writer, tokenCount, costCents int) error {
	return Send(w, map[string]interface{}{
		"type":       "end",
		"tokenCount": tokenCount,
		"cost":       costCents,
	})
}

// SendError terminates the stream with a failure
func SendError(w *bufio.Writer, message string) error {
	return Send(w, map[string]interface{}{
		"type":  "error",
		"error": message,
	})
}
