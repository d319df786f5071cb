package portal

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/model"
)

// FetchProfile fetches a candidate's profile JSON, trying discovered
// candidate endpoints before the portal's conventional paths. The first URL
// that answers with valid JSON wins; the payload is stored as-is, no schema
// is imposed.
func (c *Client) FetchProfile(ctx context.Context, m *model.EndpointMap, candidateID string) ([]byte, error) {
	for _, u := range profileURLs(m, c.base, candidateID) {
		data, err := c.GetBytes(ctx, u)
		if err != nil {
			c.log.Debug("profile endpoint unavailable",
				zap.String("url", u), zap.Error(err))
			continue
		}
		if !json.Valid(data) {
			c.log.Debug("profile response is not JSON", zap.String("url", u))
			continue
		}
		return data, nil
	}
	return nil, eris.Wrapf(ErrEndpointCall, "no profile endpoint answered for candidate %s", candidateID)
}
