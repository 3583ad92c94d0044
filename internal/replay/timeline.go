// Package replay rebuilds ordered timelines and aggregate statistics from a
// session's event stream. Everything here is a pure reduction: identical
// input always yields identical output, recomputed on demand.
package replay

import (
	"sort"

	"github.com/vetta-ai/vetta/internal/domain"
)

// ChatTurn pairs a user message with the assistant message that answered
// it. Assistant is nil for a trailing unanswered user message.
type ChatTurn struct {
	User      *domain.Event `json:"user"`
	Assistant *domain.Event `json:"assistant,omitempty"`
}

// Timeline is the reconstructed view of one session.
type Timeline struct {
	Categories map[string][]*domain.Event `json:"categories"`
	ChatTurns  []ChatTurn                 `json:"chatTurns"`
}

// BuildTimeline groups events by category preserving sequence order and
// reconstructs chat turns by first-fit forward association: each user
// message is paired with the next unpaired assistant message.
func BuildTimeline(events []*domain.Event) *Timeline {
	ordered := sortedCopy(events)

	tl := &Timeline{Categories: make(map[string][]*domain.Event)}
	for _, e := range ordered {
		tl.Categories[e.Category] = append(tl.Categories[e.Category], e)
	}

	for _, e := range tl.Categories["chat"] {
		switch e.Origin {
		case domain.OriginUser:
			tl.ChatTurns = append(tl.ChatTurns, ChatTurn{User: e})
		case domain.OriginAI:
			for i := range tl.ChatTurns {
				if tl.ChatTurns[i].Assistant == nil {
					tl.ChatTurns[i].Assistant = e
					break
				}
			}
		case domain.OriginSystem:
			// System chatter carries no turn structure.
		}
	}

	return tl
}

// sortedCopy returns the events in ascending sequence order without
// mutating the caller's slice.
func sortedCopy(events []*domain.Event) []*domain.Event {
	out := make([]*domain.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SequenceNumber < out[j].SequenceNumber
	})
	return out
}
