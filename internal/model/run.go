package model

import "time"

// RunStatus represents the state of one source lane's run.
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
	RunStatusInterrupted RunStatus = "interrupted"
)

// Run is a ledger entry for one source lane.
type Run struct {
	ID        string      `json:"id"`
	Source    string      `json:"source"`
	Status    RunStatus   `json:"status"`
	Queries   int         `json:"queries"`
	Resumed   bool        `json:"resumed"`
	Summary   *RunSummary `json:"summary,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RunSummary holds the final counts of a lane.
type RunSummary struct {
	Source         string `json:"source"`
	Total          int    `json:"total"`
	Completed      int    `json:"completed"`
	Failed         int    `json:"failed"`
	Skipped        int    `json:"skipped"`
	Remaining      int    `json:"remaining"`
	Records        int    `json:"records"`
	SessionMissing bool   `json:"session_missing,omitempty"`
	Error          string `json:"error,omitempty"`
}
