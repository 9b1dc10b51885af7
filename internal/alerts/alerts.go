// Package alerts raises and tracks risk alerts for operator triage.
package alerts

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/copysentry/internal/risk"
)

// Threshold is the score at or above which a visit raises an alert.
const Threshold = 50

// Common errors
var (
	ErrAlertNotFound     = errors.New("alert not found")
	ErrInvalidTransition = errors.New("invalid alert status transition")
)

// Status is the triage state of an alert.
type Status string

const (
	StatusNew       Status = "new"
	StatusReviewed  Status = "reviewed"
	StatusDismissed Status = "dismissed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusReviewed, StatusDismissed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the one-way triage state machine
// permits moving from s to next. Dismissed is terminal.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusNew:
		return next == StatusReviewed || next == StatusDismissed
	case StatusReviewed:
		return next == StatusDismissed
	}
	return false
}

// Alert is one qualifying visit flagged for triage. Every qualifying
// visit produces its own alert; there is no dedup against open alerts
// for the same visitor.
type Alert struct {
	ID        string        `json:"id"`
	StoreID   string        `json:"store_id"`
	VisitorID string        `json:"visitor_id"`
	Score     int           `json:"score"`
	Level     risk.Level    `json:"level"`
	Factors   []risk.Factor `json:"factors"`
	Status    Status        `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Store persists alerts.
type Store interface {
	// Create persists a new alert.
	Create(ctx context.Context, alert *Alert) error

	// Get returns an alert by id, or ErrAlertNotFound.
	Get(ctx context.Context, id string) (*Alert, error)

	// List returns the store's alerts newest first, optionally filtered
	// by status (empty status means all).
	List(ctx context.Context, storeID string, status Status, limit, offset int) ([]*Alert, error)

	// UpdateStatus applies a triage transition. Returns
	// ErrAlertNotFound for unknown ids and ErrInvalidTransition when
	// the state machine forbids the move; an unknown id reports
	// ErrAlertNotFound even when the move would also be forbidden.
	UpdateStatus(ctx context.Context, id string, next Status) (*Alert, error)

	// CountByStatus counts the store's alerts in the given status.
	CountByStatus(ctx context.Context, storeID string, status Status) (int, error)
}
