// Package session tracks browsing sessions and the visit events behind
// them. A session is keyed by the correlation key shared by all page
// views in one browsing session; repeated events merge into the
// existing record instead of creating duplicates.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/copysentry/internal/pagination"
	"github.com/mbd888/copysentry/internal/risk"
	"github.com/mbd888/copysentry/internal/signals"
)

// MaxVisitsPerStore bounds the retained visit audit trail per store.
// Oldest events are evicted first; eviction never touches Session or
// visitor profile aggregates.
const MaxVisitsPerStore = 1000

// ErrSessionNotFound is returned when no session exists for a key.
var ErrSessionNotFound = errors.New("session not found")

// VisitEvent is one observed page view. Immutable once recorded.
type VisitEvent struct {
	ID          string              `json:"id"`
	StoreID     string              `json:"store_id"`
	VisitorID   string              `json:"visitor_id"`
	SessionKey  string              `json:"session_key"`
	Path        string              `json:"path"`
	Timestamp   time.Time           `json:"timestamp"`
	ClientFlags signals.ClientFlags `json:"client_signals"`
	Bundle      *signals.Bundle     `json:"signals,omitempty"`
	Risk        risk.Analysis       `json:"risk"`
}

// Session is the merged record for one browsing session.
type Session struct {
	Key           string    `json:"key"`
	StoreID       string    `json:"store_id"`
	VisitorID     string    `json:"visitor_id"`
	Paths         []string  `json:"paths"` // distinct, in first-visit order
	FirstActivity time.Time `json:"first_activity"`
	LastActivity  time.Time `json:"last_activity"`
}

// Store persists sessions and their visit events.
type Store interface {
	// RecordVisit appends the visit event and merges it into the session
	// for its correlation key, creating the session if absent. The
	// check-and-create is atomic: of N concurrent calls with the same
	// new key, exactly one observes isNewSession = true.
	RecordVisit(ctx context.Context, event *VisitEvent) (isNewSession bool, err error)

	// GetSession returns the session for a correlation key, or
	// ErrSessionNotFound.
	GetSession(ctx context.Context, key string) (*Session, error)

	// CountSessionsByVisitor counts the distinct sessions recorded for
	// one (store, visitor) pair. Sessions are never evicted, so this is
	// the authoritative figure behind a profile's session count.
	CountSessionsByVisitor(ctx context.Context, storeID, visitorID string) (int, error)

	// ListVisitsByVisitor returns the visitor's most recent visit
	// events, newest first.
	ListVisitsByVisitor(ctx context.Context, storeID, visitorID string, limit int) ([]*VisitEvent, error)

	// ListRecentVisits returns the store's recent visit events, newest
	// first, starting strictly after the cursor position.
	ListRecentVisits(ctx context.Context, storeID string, before *pagination.Cursor, limit int) ([]*VisitEvent, error)

	// CountVisitsSince counts the store's retained visit events at or
	// after the given instant.
	CountVisitsSince(ctx context.Context, storeID string, since time.Time) (int, error)
}
