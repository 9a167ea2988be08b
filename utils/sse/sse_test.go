package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestSendChunkWireFormat(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	if err := SendChunk(w, "Hola "); err != nil {
		t.Fatalf("SendChunk failed: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "data: ") {
		t.Errorf("expected data: prefix, got %q", out)
	}
	if !strings.HasSuffix(out, "\n\n") {
		t.Errorf("expected trailing blank line, got %q", out)
	}

	var event map[string]interface{}
	payload := strings.TrimSuffix(strings.TrimPrefix(out, "data: "), "\n\n")
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if event["type"] != "chunk" || event["chunk"] != "Hola " {
		t.Errorf("unexpected event payload: %v", event)
	}
}

func TestSendEndCarriesZeroCounts(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	if err := SendEnd(w, 0, 0); err != nil {
		t.Fatalf("SendEnd failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"tokenCount":0`) || !strings.Contains(out, `"cost":0`) {
		t.Errorf("end event must always carry tokenCount and cost: %q", out)
	}
}

func TestSendErrorWireFormat(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	if err := SendError(w, "upstream connection lost"); err != nil {
		t.Fatalf("SendError failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"type":"error"`) {
		t.Errorf("expected error event, got %q", out)
	}
	if !strings.Contains(out, "upstream connection lost") {
		t.Errorf("expected error message in payload, got %q", out)
	}
}
