// Package ingest orchestrates the visit pipeline: enrich, score,
// deduplicate the session, merge the visitor profile, and raise alerts.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/copysentry/internal/alerts"
	"github.com/mbd888/copysentry/internal/idgen"
	"github.com/mbd888/copysentry/internal/logging"
	"github.com/mbd888/copysentry/internal/metrics"
	"github.com/mbd888/copysentry/internal/risk"
	"github.com/mbd888/copysentry/internal/session"
	"github.com/mbd888/copysentry/internal/signals"
	"github.com/mbd888/copysentry/internal/syncutil"
	"github.com/mbd888/copysentry/internal/traces"
	"github.com/mbd888/copysentry/internal/validation"
	"github.com/mbd888/copysentry/internal/visitor"
)

// Notifier receives pipeline outcomes for live fan-out. Implementations
// must not block.
type Notifier interface {
	VisitRecorded(event *session.VisitEvent)
	AlertCreated(alert *alerts.Alert)
}

// CollectRequest is one visit event from the tracking snippet.
type CollectRequest struct {
	StoreID       string              `json:"store_id"`
	VisitorID     string              `json:"visitor_id"`
	SessionKey    string              `json:"session_key"`
	Path          string              `json:"path"`
	Timestamp     *time.Time          `json:"timestamp,omitempty"`
	ClientSignals signals.ClientFlags `json:"client_signals"`
}

// Result is the pipeline outcome for one ingested visit.
type Result struct {
	Event        *session.VisitEvent
	IsNewSession bool
	Alert        *alerts.Alert // nil when below threshold
}

// Service runs the ingestion pipeline.
type Service struct {
	provider  signals.Provider
	sessions  session.Store
	visitors  visitor.Store
	alerts    *alerts.Manager
	notifiers []Notifier

	// Two distinct lock pools, always acquired one at a time, so
	// same-key writers serialize without cross-pool deadlock risk.
	sessionLocks syncutil.ShardedMutex
	visitorLocks syncutil.ShardedMutex
}

// NewService creates the ingestion service. Nil notifiers are skipped.
func NewService(provider signals.Provider, sessions session.Store, visitors visitor.Store, alertMgr *alerts.Manager, notifiers ...Notifier) *Service {
	return &Service{
		provider:  provider,
		sessions:  sessions,
		visitors:  visitors,
		alerts:    alertMgr,
		notifiers: notifiers,
	}
}

// Ingest processes one visit event end to end. Enrichment failures
// degrade to a nil bundle and never fail the request; persistence
// failures do. Reprocessing the same event is safe: every aggregation
// step is idempotent or monotonic.
func (s *Service) Ingest(ctx context.Context, req *CollectRequest) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		ts = req.Timestamp.UTC()
	}

	// Enrichment is the only blocking external I/O and must never hold
	// a per-key lock.
	bundle := s.enrich(ctx, req.SessionKey)

	analysis := risk.Analyze(bundle, &req.ClientSignals)

	event := &session.VisitEvent{
		ID:          idgen.WithPrefix("visit_"),
		StoreID:     req.StoreID,
		VisitorID:   req.VisitorID,
		SessionKey:  req.SessionKey,
		Path:        validation.SanitizePath(req.Path),
		Timestamp:   ts,
		ClientFlags: req.ClientSignals,
		Bundle:      bundle,
		Risk:        analysis,
	}

	ctx, span := traces.StartSpan(ctx, "ingest.record",
		traces.StoreID(event.StoreID),
		traces.VisitorID(event.VisitorID),
		traces.SessionKey(event.SessionKey),
		traces.RiskScore(analysis.Score),
		traces.RiskLevel(string(analysis.Level)),
	)
	defer span.End()

	isNew, err := s.recordSession(ctx, event)
	if err != nil {
		return nil, err
	}
	if isNew {
		metrics.SessionsCreatedTotal.Inc()
	}

	// The profile's session count re-derives from the sessions actually
	// recorded, never from isNew: if the profile merge below fails after
	// the session write landed, reprocessing the event converges on the
	// correct count instead of losing the increment.
	sessionCount, err := s.sessions.CountSessionsByVisitor(ctx, event.StoreID, event.VisitorID)
	if err != nil {
		return nil, err
	}

	if err := s.applyVisit(ctx, event, sessionCount); err != nil {
		return nil, err
	}

	alert, err := s.alerts.MaybeAlert(ctx, event)
	if err != nil {
		return nil, err
	}
	if alert != nil {
		metrics.AlertsCreatedTotal.Inc()
		logging.L(ctx).Info("alert created",
			"alert_id", alert.ID,
			"store_id", alert.StoreID,
			"visitor_id", alert.VisitorID,
			"score", alert.Score,
			"level", alert.Level,
		)
	}

	metrics.VisitsIngestedTotal.WithLabelValues(string(analysis.Level)).Inc()

	for _, n := range s.notifiers {
		if n == nil {
			continue
		}
		n.VisitRecorded(event)
		if alert != nil {
			n.AlertCreated(alert)
		}
	}

	return &Result{Event: event, IsNewSession: isNew, Alert: alert}, nil
}

// enrich looks up the signal bundle for the session key. Any failure
// degrades to nil: the visit is still ingested on client signals alone.
func (s *Service) enrich(ctx context.Context, sessionKey string) *signals.Bundle {
	ctx, span := traces.StartSpan(ctx, "ingest.enrich", traces.SessionKey(sessionKey))
	defer span.End()

	start := time.Now()
	bundle, err := s.provider.GetSignals(ctx, sessionKey)
	metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		reason := "lookup_error"
		switch {
		case errors.Is(err, signals.ErrNotConfigured):
			reason = "not_configured"
		case errors.Is(err, signals.ErrNotFound):
			reason = "not_found"
		}
		metrics.EnrichmentFailuresTotal.WithLabelValues(reason).Inc()
		logging.L(ctx).Warn("signal enrichment unavailable, continuing without server signals",
			"session_key", sessionKey,
			"reason", reason,
			"error", err,
		)
		return nil
	}
	return bundle
}

func (s *Service) recordSession(ctx context.Context, event *session.VisitEvent) (bool, error) {
	unlock := s.sessionLocks.Lock(event.SessionKey)
	defer unlock()
	return s.sessions.RecordVisit(ctx, event)
}

func (s *Service) applyVisit(ctx context.Context, event *session.VisitEvent, sessionCount int) error {
	unlock := s.visitorLocks.Lock(event.StoreID + "\x00" + event.VisitorID)
	defer unlock()
	_, err := s.visitors.ApplyVisit(ctx, event, sessionCount)
	return err
}

func (r *CollectRequest) validate() error {
	errs := validation.Validate(
		validation.Required("store_id", r.StoreID),
		validation.Identifier("store_id", r.StoreID),
		validation.Required("visitor_id", r.VisitorID),
		validation.Identifier("visitor_id", r.VisitorID),
		validation.Required("session_key", r.SessionKey),
		validation.Identifier("session_key", r.SessionKey),
		validation.MaxLength("path", r.Path, validation.MaxPathLength),
	)
	if len(errs) > 0 {
		return errs
	}
	return nil
}
