package domain

import (
	"encoding/json"
	"fmt"
)

// Typed event payloads. The wire format carries Data as an opaque JSON
// object; consumers decode it into the schema fixed by the event type
// instead of poking at the raw map.

// SnapshotData is the payload of a code.snapshot event.
type SnapshotData struct {
	FilePath     string `json:"filePath,omitempty"`
	LinesAdded   int    `json:"linesAdded"`
	LinesDeleted int    `json:"linesDeleted"`
	ContentHash  string `json:"contentHash,omitempty"`
}

// ChatData is the payload of a chat.message event. Role mirrors the event
// origin for archived streams that are consumed without origin metadata.
type ChatData struct {
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	TokensIn  int    `json:"tokensIn,omitempty"`
	TokensOut int    `json:"tokensOut,omitempty"`
	LatencyMs int64  `json:"latencyMs,omitempty"`
}

// TestResultData is the payload of a test.result event.
type TestResultData struct {
	Name       string `json:"name,omitempty"`
	Passed     bool   `json:"passed"`
	DurationMs int64  `json:"durationMs,omitempty"`
}

// TerminalData is the payload of a terminal.command event.
type TerminalData struct {
	Command  string `json:"command"`
	ExitCode int    `json:"exitCode,omitempty"`
}

// DecodeData unmarshals an event's opaque payload into the typed schema for
// its category. Unknown fields are ignored; missing fields are zero-valued.
func DecodeData[T any](e *Event) (T, error) {
	var out T
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return out, fmt.Errorf("domain.DecodeData: marshal: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("domain.DecodeData: unmarshal %s: %w", e.EventType, err)
	}
	return out, nil
}
