package observer

import (
	"net/url"
	"strings"
)

// Kind is the endpoint group a request classifies into.
type Kind string

const (
	KindExport       Kind = "export"
	KindCandidate    Kind = "candidate"
	KindDocument     Kind = "document"
	KindUnclassified Kind = "unclassified"
)

// apiMarker is the path convention that separates portal API traffic from
// page assets.
const apiMarker = "/api/"

// tabTokens is the fixed vocabulary of report-tab names used to key export
// endpoints. workinprogress sits ahead of inprogress so the longer token
// wins the substring scan.
var tabTokens = []string{
	"todays",
	"notstarted",
	"draft",
	"rejected",
	"submitted",
	"workinprogress",
	"bgvclosed",
	"inprogress",
}

// Classify buckets one observed request URL. Rules run in order and the
// first match wins: export keywords beat candidate, candidate beats
// document. Export endpoints key by the first tab token found in the path,
// falling back to the raw path; candidate and document endpoints key by raw
// path. Non-API traffic returns KindUnclassified with an empty key.
func Classify(rawURL string) (Kind, string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return KindUnclassified, ""
	}
	path := strings.ToLower(u.Path)
	if !strings.Contains(path, apiMarker) {
		return KindUnclassified, ""
	}

	switch {
	case containsAny(path, "export", "download", "excel"):
		return KindExport, exportKey(path, u.Path)
	case strings.Contains(path, "candidate"):
		return KindCandidate, u.Path
	case strings.Contains(path, "doc"):
		return KindDocument, u.Path
	}
	return KindUnclassified, u.Path
}

func exportKey(lowerPath, rawPath string) string {
	for _, tok := range tabTokens {
		if strings.Contains(lowerPath, tok) {
			return tok
		}
	}
	return rawPath
}

// TabToken maps a human tab label such as "Work in progress" to its
// endpoint vocabulary token, or "" when the label matches none.
func TabToken(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	norm := b.String()
	for _, tok := range tabTokens {
		if strings.Contains(norm, tok) {
			return tok
		}
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
