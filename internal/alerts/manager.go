package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/mbd888/copysentry/internal/idgen"
	"github.com/mbd888/copysentry/internal/risk"
	"github.com/mbd888/copysentry/internal/session"
)

// Manager decides when a visit warrants an alert.
type Manager struct {
	store Store
}

// NewManager creates an alert manager on top of a store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// MaybeAlert creates a new alert when the visit's score reaches the
// threshold. Returns nil without error for visits below it.
func (m *Manager) MaybeAlert(ctx context.Context, event *session.VisitEvent) (*Alert, error) {
	if event.Risk.Score < Threshold {
		return nil, nil
	}

	alert := &Alert{
		ID:        idgen.WithPrefix("alert_"),
		StoreID:   event.StoreID,
		VisitorID: event.VisitorID,
		Score:     event.Risk.Score,
		Level:     event.Risk.Level,
		Factors:   append([]risk.Factor(nil), event.Risk.Factors...),
		Status:    StatusNew,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := m.store.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	return alert, nil
}
