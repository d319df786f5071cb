package model

import "time"

// Endpoint is one observed network call against the portal's internal API.
type Endpoint struct {
	URL    string `json:"url"`
	Method string `json:"method"`
	Path   string `json:"path"`
	Query  string `json:"query,omitempty"`
}

// EndpointMap groups the endpoints discovered during one authenticated
// session into export, candidate, and document buckets, each keyed by a
// semantic tag (report-tab token) or raw path. Unmatched API calls are kept
// in Endpoints for operator inspection. A map is immutable once finalized
// and is persisted per session id, never overwritten.
type EndpointMap struct {
	SessionID          string              `json:"session_id"`
	GeneratedAt        time.Time           `json:"generated_at"`
	ExportEndpoints    map[string]Endpoint `json:"export_endpoints"`
	CandidateEndpoints map[string]Endpoint `json:"candidate_endpoints"`
	DocumentEndpoints  map[string]Endpoint `json:"document_endpoints"`
	Endpoints          []Endpoint          `json:"endpoints"`
}

// NewEndpointMap returns an empty map for the given session.
func NewEndpointMap(sessionID string) *EndpointMap {
	return &EndpointMap{
		SessionID:          sessionID,
		GeneratedAt:        time.Now().UTC(),
		ExportEndpoints:    make(map[string]Endpoint),
		CandidateEndpoints: make(map[string]Endpoint),
		DocumentEndpoints:  make(map[string]Endpoint),
	}
}

// Total returns the number of classified endpoints plus unclassified ones.
func (m *EndpointMap) Total() int {
	return len(m.ExportEndpoints) + len(m.CandidateEndpoints) + len(m.DocumentEndpoints) + len(m.Endpoints)
}
