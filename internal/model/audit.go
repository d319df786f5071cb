package model

import "time"

// AuditAction labels what a sync write did to a row or cell.
type AuditAction string

const (
	AuditAdded   AuditAction = "added"
	AuditUpdated AuditAction = "updated"
	AuditSummary AuditAction = "summary"
)

// AuditEntry is one append-only row in the audit sheet. Entries are never
// mutated or deleted by the system.
type AuditEntry struct {
	Timestamp   time.Time   `json:"timestamp"`
	Tab         string      `json:"tab"`
	CandidateID string      `json:"candidate_id"`
	Action      AuditAction `json:"action"`
	Column      string      `json:"column,omitempty"`
	OldValue    string      `json:"old_value,omitempty"`
	NewValue    string      `json:"new_value,omitempty"`
}

// SheetRow renders the entry in the audit sheet's column order.
func (a AuditEntry) SheetRow() []string {
	return []string{
		a.Timestamp.UTC().Format(time.RFC3339),
		a.Tab,
		a.CandidateID,
		string(a.Action),
		a.Column,
		a.OldValue,
		a.NewValue,
	}
}

// AuditHeader is the header row of the audit sheet.
func AuditHeader() []string {
	return []string{"Timestamp", "Tab Name", "Candidate ID", "Action", "Column", "Old Value", "New Value"}
}
