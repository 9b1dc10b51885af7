package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mbd888/copysentry/internal/pagination"
	"github.com/mbd888/copysentry/internal/risk"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session      // session key → session
	visits   map[string][]*VisitEvent // store id → events, oldest first
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		visits:   make(map[string][]*VisitEvent),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) RecordVisit(ctx context.Context, event *VisitEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	isNew := false
	sess, ok := s.sessions[event.SessionKey]
	if !ok {
		isNew = true
		sess = &Session{
			Key:           event.SessionKey,
			StoreID:       event.StoreID,
			VisitorID:     event.VisitorID,
			Paths:         []string{event.Path},
			FirstActivity: event.Timestamp,
			LastActivity:  event.Timestamp,
		}
		s.sessions[event.SessionKey] = sess
	} else {
		if !containsPath(sess.Paths, event.Path) {
			sess.Paths = append(sess.Paths, event.Path)
		}
		if event.Timestamp.After(sess.LastActivity) {
			sess.LastActivity = event.Timestamp
		}
	}

	s.visits[event.StoreID] = append(s.visits[event.StoreID], copyVisit(event))

	// Evict oldest events beyond the per-store window. Sessions are
	// untouched; only the audit trail shrinks.
	if over := len(s.visits[event.StoreID]) - MaxVisitsPerStore; over > 0 {
		s.visits[event.StoreID] = s.visits[event.StoreID][over:]
	}

	return isNew, nil
}

func (s *MemoryStore) GetSession(ctx context.Context, key string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return copySession(sess), nil
}

func (s *MemoryStore) CountSessionsByVisitor(ctx context.Context, storeID, visitorID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sess := range s.sessions {
		if sess.StoreID == storeID && sess.VisitorID == visitorID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ListVisitsByVisitor(ctx context.Context, storeID, visitorID string, limit int) ([]*VisitEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*VisitEvent
	events := s.visits[storeID]
	for i := len(events) - 1; i >= 0 && len(result) < limit; i-- {
		if events[i].VisitorID == visitorID {
			result = append(result, copyVisit(events[i]))
		}
	}
	return result, nil
}

func (s *MemoryStore) ListRecentVisits(ctx context.Context, storeID string, before *pagination.Cursor, limit int) ([]*VisitEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := append([]*VisitEvent(nil), s.visits[storeID]...)

	// Newest first, event ID as tiebreaker for a stable order.
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].Timestamp.After(all[j].Timestamp)
		}
		return all[i].ID > all[j].ID
	})

	result := make([]*VisitEvent, 0, limit)
	for _, e := range all {
		if before != nil && !olderThanCursor(e, before) {
			continue
		}
		result = append(result, copyVisit(e))
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) CountVisitsSince(ctx context.Context, storeID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.visits[storeID] {
		if !e.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

func olderThanCursor(e *VisitEvent, c *pagination.Cursor) bool {
	if e.Timestamp.Before(c.Timestamp) {
		return true
	}
	return e.Timestamp.Equal(c.Timestamp) && e.ID < c.ID
}

func containsPath(paths []string, path string) bool {
	for _, p := range paths {
		if p == path {
			return true
		}
	}
	return false
}

func copyVisit(e *VisitEvent) *VisitEvent {
	out := *e
	if e.Bundle != nil {
		bundle := *e.Bundle
		out.Bundle = &bundle
	}
	out.Risk.Factors = append([]risk.Factor(nil), e.Risk.Factors...)
	return &out
}

func copySession(sess *Session) *Session {
	out := *sess
	out.Paths = append([]string(nil), sess.Paths...)
	return &out
}
