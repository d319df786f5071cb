package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/model"
)

// HandoffPayload is the body POSTed to a peer's /trigger-fetch endpoint. The
// peer rebuilds the session from the storage state and runs the fetch
// pipeline under its own ledger run.
type HandoffPayload struct {
	SessionID    string             `json:"session_id"`
	StorageState model.StorageState `json:"storage_state"`
	APIMap       *model.EndpointMap `json:"api_map"`
}

// PeerClient hands discovered sessions to the peer service hosting the fetch
// pipeline.
type PeerClient struct {
	base string
	hc   *http.Client
	log  *zap.Logger
}

// NewPeerClient builds a client for the peer at base.
func NewPeerClient(base string) *PeerClient {
	return &PeerClient{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 30 * time.Second},
		log:  zap.L().With(zap.String("component", "runner.peer")),
	}
}

// Base returns the peer base URL.
func (p *PeerClient) Base() string {
	return p.base
}

// TriggerFetch POSTs the session and endpoint map to the peer. Any 2xx
// response counts as accepted; the peer reports its progress through its own
// ledger, not this call.
func (p *PeerClient) TriggerFetch(ctx context.Context, sess *model.Session, m *model.EndpointMap) error {
	payload := HandoffPayload{
		SessionID:    sess.ID,
		StorageState: sess.StorageState,
		APIMap:       m,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "runner: marshal handoff payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+"/trigger-fetch", bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "runner: build handoff request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.hc.Do(req)
	if err != nil {
		return eris.Wrap(err, "runner: hand off to peer")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return eris.Errorf("runner: peer rejected handoff: %s", resp.Status)
	}
	p.log.Info("handoff accepted",
		zap.String("peer", p.base),
		zap.String("session_id", sess.ID))
	return nil
}
