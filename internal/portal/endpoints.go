package portal

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/talentops/bgvsync/internal/model"
	"github.com/talentops/bgvsync/internal/observer"
)

// ExportURL resolves the export endpoint for a tab: the discovered endpoint
// for its vocabulary token when the map has one, else the portal's stock
// TabData export.
func ExportURL(base string, m *model.EndpointMap, tab string) string {
	if m != nil {
		if tok := observer.TabToken(tab); tok != "" {
			if ep, ok := m.ExportEndpoints[tok]; ok {
				return ep.URL
			}
		}
	}
	return fmt.Sprintf("%s/api/export/TabData?tabName=%s", base, url.QueryEscape(tab))
}

// profileURLs returns candidate-profile URLs to try, discovered candidate
// endpoints generalized to this candidate first.
func profileURLs(m *model.EndpointMap, base, candidateID string) []string {
	var urls []string
	if m != nil {
		for _, ep := range sortedEndpoints(m.CandidateEndpoints) {
			lower := strings.ToLower(ep.Path)
			if strings.Contains(lower, "doc") || strings.Contains(lower, "export") {
				continue
			}
			if filled, ok := fillIDs(ep.Path, candidateID); ok {
				urls = append(urls, base+filled)
				continue
			}
			if q, ok := fillQueryID(ep.Query, candidateID); ok {
				urls = append(urls, base+ep.Path+"?"+q)
			}
		}
	}
	urls = append(urls,
		fmt.Sprintf("%s/api/candidate/%s", base, url.PathEscape(candidateID)),
		fmt.Sprintf("%s/api/candidate/details?candidateId=%s", base, url.QueryEscape(candidateID)),
	)
	return dedupe(urls)
}

// documentListURLs returns document-list URLs to try for one candidate,
// most specific first: discovered endpoints generalized to this candidate,
// then the portal's conventional paths.
func documentListURLs(m *model.EndpointMap, base, candidateID string) []string {
	var urls []string
	if m != nil {
		for _, ep := range sortedEndpoints(m.CandidateEndpoints, m.DocumentEndpoints) {
			if !strings.Contains(strings.ToLower(ep.Path), "doc") {
				continue
			}
			if filled, ok := fillIDs(ep.Path, candidateID); ok {
				urls = append(urls, base+filled)
				continue
			}
			if q, ok := fillQueryID(ep.Query, candidateID); ok {
				urls = append(urls, base+ep.Path+"?"+q)
			}
		}
	}
	urls = append(urls,
		fmt.Sprintf("%s/api/candidate/%s/documents", base, url.PathEscape(candidateID)),
		fmt.Sprintf("%s/api/document/list?candidateId=%s", base, url.QueryEscape(candidateID)),
	)
	return dedupe(urls)
}

// documentURLs returns download URLs to try for one document, discovered
// endpoint shapes first.
func documentURLs(m *model.EndpointMap, base, candidateID, docID string) []string {
	var urls []string
	if m != nil {
		for _, ep := range sortedEndpoints(m.DocumentEndpoints, m.CandidateEndpoints) {
			if !strings.Contains(strings.ToLower(ep.Path), "doc") {
				continue
			}
			if filled, ok := fillIDs(ep.Path, candidateID, docID); ok {
				urls = append(urls, base+filled)
			}
		}
	}
	cid := url.PathEscape(candidateID)
	did := url.PathEscape(docID)
	urls = append(urls,
		fmt.Sprintf("%s/api/document/%s/%s", base, cid, did),
		fmt.Sprintf("%s/api/candidate/%s/document/%s", base, cid, did),
		fmt.Sprintf("%s/api/candidate/%s/documents/%s/download", base, cid, did),
	)
	return dedupe(urls)
}

// fillIDs substitutes the path's numeric segments with the given ids in
// order. It only succeeds when the segment count matches the id count
// exactly; a leftover numeric segment would leak a foreign id.
func fillIDs(path string, ids ...string) (string, bool) {
	segs := strings.Split(path, "/")
	numeric := 0
	for _, seg := range segs {
		if isDigits(seg) {
			numeric++
		}
	}
	if numeric != len(ids) {
		return "", false
	}
	i := 0
	for j, seg := range segs {
		if isDigits(seg) {
			segs[j] = url.PathEscape(ids[i])
			i++
		}
	}
	return strings.Join(segs, "/"), true
}

// fillQueryID rewrites the candidateId query parameter, when present, to
// the target candidate.
func fillQueryID(query, candidateID string) (string, bool) {
	if query == "" {
		return "", false
	}
	vals, err := url.ParseQuery(query)
	if err != nil {
		return "", false
	}
	for key := range vals {
		if strings.EqualFold(key, "candidateid") {
			vals.Set(key, candidateID)
			return vals.Encode(), true
		}
	}
	return "", false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func sortedEndpoints(maps ...map[string]model.Endpoint) []model.Endpoint {
	var eps []model.Endpoint
	for _, m := range maps {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			eps = append(eps, m[k])
		}
	}
	return eps
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := urls[:0]
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
