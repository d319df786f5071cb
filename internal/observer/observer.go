// Package observer records the portal's API traffic during a scripted
// browser walk and folds it into an endpoint map the fetch pipeline can
// call directly later.
package observer

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/talentops/bgvsync/internal/model"
)

// Collector subscribes to a live browser session's network events and
// classifies every API request it sees. It is passive: nothing is persisted
// until the caller finalizes the map and hands it to the session store.
type Collector struct {
	mu        sync.Mutex
	m         *model.EndpointMap
	seen      map[string]bool
	finalized bool
	log       *zap.Logger
}

func NewCollector(sessionID string) *Collector {
	return &Collector{
		m:    model.NewEndpointMap(sessionID),
		seen: make(map[string]bool),
		log:  zap.L().With(zap.String("component", "observer")),
	}
}

// Attach enables the network domain and subscribes to outbound requests on
// the session context. Call once, before the first navigation of interest.
func (c *Collector) Attach(ctx context.Context) error {
	if err := chromedp.Run(ctx, network.Enable()); err != nil {
		return eris.Wrap(err, "observer: enable network events")
	}
	chromedp.ListenTarget(ctx, func(ev any) {
		if e, ok := ev.(*network.EventRequestWillBeSent); ok {
			c.Record(e.Request.Method, e.Request.URL)
		}
	})
	return nil
}

// Record classifies one request into the map. Duplicate method+URL pairs
// and anything recorded after Finalize are dropped. Safe for concurrent
// use; network events arrive on the browser's event goroutine.
func (c *Collector) Record(method, rawURL string) {
	kind, key := Classify(rawURL)
	if kind == KindUnclassified && key == "" {
		return
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	ep := model.Endpoint{
		URL:    rawURL,
		Method: method,
		Path:   u.Path,
		Query:  u.RawQuery,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return
	}
	dedupe := method + " " + rawURL
	if c.seen[dedupe] {
		return
	}
	c.seen[dedupe] = true

	switch kind {
	case KindExport:
		if _, ok := c.m.ExportEndpoints[key]; !ok {
			c.m.ExportEndpoints[key] = ep
		}
	case KindCandidate:
		if _, ok := c.m.CandidateEndpoints[key]; !ok {
			c.m.CandidateEndpoints[key] = ep
		}
	case KindDocument:
		if _, ok := c.m.DocumentEndpoints[key]; !ok {
			c.m.DocumentEndpoints[key] = ep
		}
	default:
		c.m.Endpoints = append(c.m.Endpoints, ep)
	}
	c.log.Debug("endpoint recorded",
		zap.String("kind", string(kind)),
		zap.String("key", key),
		zap.String("method", method))
}

// Finalize stamps the map and freezes it. Traffic recorded afterwards is
// ignored, so the returned map never changes under its consumers.
func (c *Collector) Finalize() *model.EndpointMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finalized {
		c.finalized = true
		c.m.GeneratedAt = time.Now().UTC()
		c.log.Info("endpoint map finalized",
			zap.String("session_id", c.m.SessionID),
			zap.Int("exports", len(c.m.ExportEndpoints)),
			zap.Int("candidates", len(c.m.CandidateEndpoints)),
			zap.Int("documents", len(c.m.DocumentEndpoints)),
			zap.Int("total", c.m.Total()))
	}
	return c.m
}
