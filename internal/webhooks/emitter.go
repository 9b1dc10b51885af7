package webhooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/copysentry/internal/alerts"
	"github.com/mbd888/copysentry/internal/idgen"
	"github.com/mbd888/copysentry/internal/session"
)

var (
	webhookEmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "copysentry",
		Subsystem: "webhook",
		Name:      "emit_total",
		Help:      "Total webhook emit attempts by event type.",
	}, []string{"event_type"})

	webhookEmitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "copysentry",
		Subsystem: "webhook",
		Name:      "emit_errors_total",
		Help:      "Total webhook emit failures by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(webhookEmitTotal, webhookEmitErrors)
}

// Emitter turns pipeline outcomes into webhook events. All methods are
// fire-and-forget: errors are logged but never returned, so a broken
// subscriber endpoint cannot fail an ingest.
type Emitter struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewEmitter creates a webhook emitter.
func NewEmitter(d *Dispatcher, logger *slog.Logger) *Emitter {
	return &Emitter{d: d, logger: logger}
}

// VisitRecorded emits a visit.flagged event for visits that reach the
// alert threshold. Routine traffic is not delivered.
func (e *Emitter) VisitRecorded(event *session.VisitEvent) {
	if event.Risk.Score < alerts.Threshold {
		return
	}
	e.emit(event.StoreID, EventVisitFlagged, event)
}

// AlertCreated emits an alert.created event.
func (e *Emitter) AlertCreated(alert *alerts.Alert) {
	e.emit(alert.StoreID, EventAlertCreated, alert)
}

func (e *Emitter) emit(storeID string, eventType EventType, data interface{}) {
	if e == nil || e.d == nil {
		return
	}
	webhookEmitTotal.WithLabelValues(string(eventType)).Inc()
	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		Timestamp: time.Now(),
		StoreID:   storeID,
		Data:      data,
	}
	// The subscription lookup may hit the database; keep it off the
	// ingest path.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.d.Dispatch(ctx, event); err != nil {
			webhookEmitErrors.WithLabelValues(string(eventType)).Inc()
			e.logger.Warn("webhook emit failed", "event", eventType, "store_id", storeID, "error", err)
		}
	}()
}
