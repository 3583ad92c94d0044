package replay

import "github.com/vetta-ai/vetta/internal/domain"

// FileChangeStats aggregates code.snapshot events.
type FileChangeStats struct {
	TotalSnapshots    int `json:"totalSnapshots"`
	TotalLinesAdded   int `json:"totalLinesAdded"`
	TotalLinesDeleted int `json:"totalLinesDeleted"`
}

// ChatStats aggregates assistant exchanges over chat events.
type ChatStats struct {
	TotalInteractions int   `json:"totalInteractions"`
	TotalTokensIn     int   `json:"totalTokensIn"`
	TotalTokensOut    int   `json:"totalTokensOut"`
	FastResponses     int   `json:"fastResponses"`   // latency < 2s
	SlowResponses     int   `json:"slowResponses"`   // latency >= 2s
	MaxLatencyMs      int64 `json:"maxLatencyMs"`
}

// TerminalStats aggregates terminal.command events.
type TerminalStats struct {
	TotalCommands int `json:"totalCommands"`
}

// TestStats aggregates test.result events.
type TestStats struct {
	TotalTests      int   `json:"totalTests"`
	PassedTests     int   `json:"passedTests"`
	FailedTests     int   `json:"failedTests"`
	TotalDurationMs int64 `json:"totalDurationMs"`
}

// SessionStats is the full aggregate view of one session's stream.
type SessionStats struct {
	TotalEvents        int             `json:"totalEvents"`
	CheckpointCount    int             `json:"checkpointCount"`
	EventsByCategory   map[string]int  `json:"eventsByCategory"`
	FileChanges        FileChangeStats `json:"fileChanges"`
	ClaudeInteractions ChatStats       `json:"claudeInteractions"`
	TerminalActivity   TerminalStats   `json:"terminalActivity"`
	TestExecution      TestStats       `json:"testExecution"`
}

const slowLatencyMs = 2000

// BuildStats reduces the event stream into aggregate statistics. Payloads
// are decoded through the per-category schemas; events with undecodable
// payloads still count toward totals but contribute no metric sums.
func BuildStats(events []*domain.Event) *SessionStats {
	stats := &SessionStats{EventsByCategory: make(map[string]int)}

	for _, e := range sortedCopy(events) {
		stats.TotalEvents++
		stats.EventsByCategory[e.Category]++
		if e.Checkpoint {
			stats.CheckpointCount++
		}

		switch e.EventType {
		case domain.TypeCodeSnapshot:
			stats.FileChanges.TotalSnapshots++
			if data, err := domain.DecodeData[domain.SnapshotData](e); err == nil {
				stats.FileChanges.TotalLinesAdded += data.LinesAdded
				stats.FileChanges.TotalLinesDeleted += data.LinesDeleted
			}

		case domain.TypeChatMessage:
			stats.ClaudeInteractions.TotalInteractions++
			if data, err := domain.DecodeData[domain.ChatData](e); err == nil {
				stats.ClaudeInteractions.TotalTokensIn += data.TokensIn
				stats.ClaudeInteractions.TotalTokensOut += data.TokensOut
				if e.Origin == domain.OriginAI {
					if data.LatencyMs >= slowLatencyMs {
						stats.ClaudeInteractions.SlowResponses++
					} else {
						stats.ClaudeInteractions.FastResponses++
					}
					if data.LatencyMs > stats.ClaudeInteractions.MaxLatencyMs {
						stats.ClaudeInteractions.MaxLatencyMs = data.LatencyMs
					}
				}
			}

		case domain.TypeTerminalCommand:
			stats.TerminalActivity.TotalCommands++

		case domain.TypeTestResult:
			stats.TestExecution.TotalTests++
			if data, err := domain.DecodeData[domain.TestResultData](e); err == nil {
				if data.Passed {
					stats.TestExecution.PassedTests++
				} else {
					stats.TestExecution.FailedTests++
				}
				stats.TestExecution.TotalDurationMs += data.DurationMs
			}
		}
	}

	return stats
}
