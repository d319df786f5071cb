package model

// ResultSource tags how a piece of data was obtained: direct API call,
// browser-driven fallback, or not at all. Downstream consumers treat the
// three variants uniformly instead of branching on error types.
type ResultSource string

const (
	SourceAPI     ResultSource = "api"
	SourceBrowser ResultSource = "browser"
	SourceFailed  ResultSource = "failed"
)

// CandidateRecord is one row exported from a report tab.
type CandidateRecord struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Tab    string            `json:"tab"`
	Fields map[string]string `json:"fields"`
}

// TabExport is the result of exporting one report tab: the column header in
// sheet order plus the candidate rows, tagged with how the export was won.
type TabExport struct {
	Tab    string            `json:"tab"`
	Header []string          `json:"header"`
	Rows   []CandidateRecord `json:"rows"`
	Source ResultSource      `json:"source"`
}

// Row returns the candidate's field values in header order.
func (e *TabExport) Row(c CandidateRecord) []string {
	row := make([]string, len(e.Header))
	for i, h := range e.Header {
		row[i] = c.Fields[h]
	}
	return row
}

// DocumentArtifact is one file downloaded for a candidate. The PIF variant
// additionally carries the path of the structured JSON derived from it.
type DocumentArtifact struct {
	CandidateID string       `json:"candidate_id"`
	Name        string       `json:"name"`
	Path        string       `json:"path"`
	Bytes       int64        `json:"bytes"`
	Source      ResultSource `json:"source"`
	FormPath    string       `json:"form_path,omitempty"`
}

// FormData is the structured output of PIF extraction: the raw text (capped)
// plus whatever labeled fields the parser recognized. No schema is enforced;
// extraction is best-effort capture, not a guaranteed form-field mapping.
type FormData struct {
	RawText string            `json:"raw_text"`
	Parsed  map[string]string `json:"parsed"`
}
