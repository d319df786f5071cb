package model

import "time"

// RunStatus represents the current state of a full extraction run.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusLoggingIn   RunStatus = "logging_in"
	RunStatusDiscovering RunStatus = "discovering"
	RunStatusFetching    RunStatus = "fetching"
	RunStatusSyncing     RunStatus = "syncing"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// Run is one ledger entry for a full login+discover+fetch+sync execution.
type Run struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id,omitempty"`
	Trigger   string     `json:"trigger"` // "schedule", "manual", "cli", "peer"
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run. HandedOff marks runs whose
// fetch phase was delegated to a peer service; the peer records its own run
// with the candidate-level detail.
type RunResult struct {
	SessionID     string      `json:"session_id"`
	EndpointsSeen int         `json:"endpoints_seen"`
	Tabs          []TabResult `json:"tabs"`
	Candidates    int         `json:"candidates"`
	Documents     int         `json:"documents"`
	FormsParsed   int         `json:"forms_parsed"`
	Failures      []string    `json:"failures,omitempty"`
	Sync          *SyncResult `json:"sync,omitempty"`
	HandedOff     bool        `json:"handed_off,omitempty"`
	DurationMS    int64       `json:"duration_ms"`
	Error         string      `json:"error,omitempty"`
}

// TabResult summarizes one report-tab export.
type TabResult struct {
	Tab    string       `json:"tab"`
	Rows   int          `json:"rows"`
	Source ResultSource `json:"source"`
	Error  string       `json:"error,omitempty"`
}

// SyncResult summarizes one sheet merge.
type SyncResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Audited int `json:"audited"`
}

// CandidateOutcome is the ledger row for one candidate within a run. Every
// candidate ends up here: synced, or failed with a recorded error. None
// disappear silently.
type CandidateOutcome struct {
	RunID       string       `json:"run_id"`
	CandidateID string       `json:"candidate_id"`
	Name        string       `json:"name"`
	Tab         string       `json:"tab"`
	Source      ResultSource `json:"source"`
	Documents   int          `json:"documents"`
	FormParsed  bool         `json:"form_parsed"`
	Error       string       `json:"error,omitempty"`
	RecordedAt  time.Time    `json:"recorded_at"`
}

// FetchSummary aggregates what one pipeline run produced.
type FetchSummary struct {
	SessionID   string             `json:"session_id"`
	OutDir      string             `json:"out_dir"`
	Tabs        []TabResult        `json:"tabs"`
	Exports     []TabExport        `json:"-"`
	Outcomes    []CandidateOutcome `json:"outcomes"`
	Documents   int                `json:"documents"`
	FormsParsed int                `json:"forms_parsed"`
	Failures    []string           `json:"failures,omitempty"`
}
