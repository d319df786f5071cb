package portal

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/model"
)

// DocRef identifies one downloadable document of a candidate.
type DocRef struct {
	ID   string
	Name string
}

// ListDocuments enumerates a candidate's documents, trying discovered
// endpoint shapes before the portal's conventional paths. The first URL
// that answers with a parseable, non-empty list wins.
func (c *Client) ListDocuments(ctx context.Context, m *model.EndpointMap, candidateID string) ([]DocRef, error) {
	for _, u := range documentListURLs(m, c.base, candidateID) {
		data, err := c.GetBytes(ctx, u)
		if err != nil {
			c.log.Debug("document list endpoint unavailable",
				zap.String("url", u), zap.Error(err))
			continue
		}
		refs, err := parseDocList(data)
		if err != nil {
			c.log.Debug("document list response unparseable",
				zap.String("url", u), zap.Error(err))
			continue
		}
		if len(refs) == 0 {
			continue
		}
		return refs, nil
	}
	return nil, eris.Wrapf(ErrEndpointCall, "no document list endpoint answered for candidate %s", candidateID)
}

// DownloadDocument fetches one document to path, trying endpoint shapes in
// order. It returns the bytes written.
func (c *Client) DownloadDocument(ctx context.Context, m *model.EndpointMap, candidateID string, ref DocRef, path string) (int64, error) {
	var lastErr error
	for _, u := range documentURLs(m, c.base, candidateID, ref.ID) {
		n, err := c.DownloadToFile(ctx, u, path)
		if err != nil {
			lastErr = err
			c.log.Debug("document endpoint unavailable",
				zap.String("url", u), zap.Error(err))
			continue
		}
		return n, nil
	}
	return 0, eris.Wrapf(ErrEndpointCall, "no document endpoint answered for candidate %s document %s: %v",
		candidateID, ref.ID, lastErr)
}

// parseDocList accepts the portal's document list shapes: a bare array or
// an array under a documents/data/items wrapper. Items without an id are
// skipped; items without a name get a synthetic one.
func parseDocList(data []byte) ([]DocRef, error) {
	var arr []map[string]any
	if err := json.Unmarshal(data, &arr); err != nil {
		var wrapper map[string]json.RawMessage
		if werr := json.Unmarshal(data, &wrapper); werr != nil {
			return nil, eris.Wrap(err, "portal: decode document list")
		}
		for _, key := range []string{"documents", "data", "items"} {
			raw, ok := wrapper[key]
			if !ok {
				continue
			}
			if err := json.Unmarshal(raw, &arr); err == nil {
				break
			}
		}
	}

	refs := make([]DocRef, 0, len(arr))
	for _, item := range arr {
		id := stringField(item, "id", "documentId", "docId")
		if id == "" {
			continue
		}
		name := stringField(item, "name", "fileName", "documentName")
		if name == "" {
			name = "document_" + id
		}
		refs = append(refs, DocRef{ID: id, Name: name})
	}
	return refs, nil
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
