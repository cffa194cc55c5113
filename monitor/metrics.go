package monitor

import "time"

// Observation is the outcome of one pipeline operation.
type Observation struct {
	Op       string        `json:"op"`
	Tokens   int           `json:"tokens"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
}

// OperationMetrics aggregates every observation recorded for one operation.
type OperationMetrics struct {
	Op            string        `json:"op"`
	Count         int64         `json:"count"`
	Failures      int64         `json:"failures"`
	TotalTokens   int64         `json:"total_tokens"`
	TotalChunks   int64         `json:"total_chunks"`
	TotalDuration time.Duration `json:"total_duration"`
	LastError     string        `json:"last_error,omitempty"`
	LastSeen      time.Time     `json:"last_seen"`
}

// MeanDuration is TotalDuration over Count, zero when nothing was recorded.
func (m OperationMetrics) MeanDuration() time.Duration {
	if m.Count == 0 {
		return 0
	}
	return m.TotalDuration / time.Duration(m.Count)
}

type Snapshot struct {
	Since      time.Time                   `json:"since"`
	Taken      time.Time                   `json:"taken"`
	Operations map[string]OperationMetrics `json:"operations"`
}
