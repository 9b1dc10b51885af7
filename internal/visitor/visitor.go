// Package visitor maintains the long-lived risk profile for each
// (store, visitor) pair by merging visit outcomes.
package visitor

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/copysentry/internal/risk"
	"github.com/mbd888/copysentry/internal/session"
	"github.com/mbd888/copysentry/internal/signals"
)

// ErrVisitorNotFound is returned when no profile exists for the pair.
var ErrVisitorNotFound = errors.New("visitor not found")

// Profile is the durable, continuously merged summary for one visitor
// at one store.
//
// HighestRiskScore is monotonically non-decreasing; RiskLevel and
// RiskFactors always snapshot the single visit that set it (ties keep
// the earlier snapshot). SessionCount counts distinct sessions, never
// raw visit events.
type Profile struct {
	StoreID          string          `json:"store_id"`
	VisitorID        string          `json:"visitor_id"`
	FirstSeen        time.Time       `json:"first_seen"`
	LastSeen         time.Time       `json:"last_seen"`
	SessionCount     int             `json:"session_count"`
	Pages            []string        `json:"pages"` // distinct, in first-visit order
	HighestRiskScore int             `json:"highest_risk_score"`
	RiskLevel        risk.Level      `json:"risk_level"`
	RiskFactors      []risk.Factor   `json:"risk_factors"`
	LatestBundle     *signals.Bundle `json:"latest_signals,omitempty"`
}

// Store persists visitor profiles. Every query is scoped to one store:
// a storefront's dashboard never sees another storefront's visitors.
type Store interface {
	// ApplyVisit merges one visit event into the profile for its
	// (store, visitor) pair, creating the profile if absent, and
	// returns the updated profile. LastSeen, LatestBundle, and Pages
	// update unconditionally; SessionCount merges to the greater of the
	// stored value and sessionCount (the caller's authoritative count
	// of the visitor's distinct sessions), so replaying an event after
	// a partial failure repairs the profile instead of losing the
	// increment; the risk snapshot replaces only on a strictly greater
	// score.
	ApplyVisit(ctx context.Context, event *session.VisitEvent, sessionCount int) (*Profile, error)

	// Get returns the profile for a pair, or ErrVisitorNotFound.
	Get(ctx context.Context, storeID, visitorID string) (*Profile, error)

	// List returns the store's profiles sorted by highest risk score
	// descending, with the total profile count for paging.
	List(ctx context.Context, storeID string, limit, offset int) ([]*Profile, int, error)

	// ListRecentlyActive returns the store's profiles by last-seen
	// descending.
	ListRecentlyActive(ctx context.Context, storeID string, limit int) ([]*Profile, error)

	// ListTopThreats returns the store's highest-scoring profiles at or
	// above minScore, score descending.
	ListTopThreats(ctx context.Context, storeID string, minScore, limit int) ([]*Profile, error)

	// CountAll counts the store's profiles.
	CountAll(ctx context.Context, storeID string) (int, error)

	// CountWithMinScore counts the store's profiles with a highest risk
	// score at or above minScore.
	CountWithMinScore(ctx context.Context, storeID string, minScore int) (int, error)

	// CountWithScoreBetween counts the store's profiles with a highest
	// risk score in [minScore, maxScore).
	CountWithScoreBetween(ctx context.Context, storeID string, minScore, maxScore int) (int, error)
}
