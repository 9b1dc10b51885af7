package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/mbd888/copysentry/internal/risk"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts []*Alert // newest last
	byID   map[string]*Alert
}

// NewMemoryStore creates an in-memory alert store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]*Alert),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Create(ctx context.Context, alert *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := copyAlert(alert)
	s.alerts = append(s.alerts, a)
	s.byID[a.ID] = a
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	return copyAlert(a), nil
}

func (s *MemoryStore) List(ctx context.Context, storeID string, status Status, limit, offset int) ([]*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Alert
	skipped := 0
	for i := len(s.alerts) - 1; i >= 0 && len(result) < limit; i-- {
		a := s.alerts[i]
		if a.StoreID != storeID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		result = append(result, copyAlert(a))
	}
	return result, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, next Status) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	if !a.Status.CanTransitionTo(next) {
		return nil, ErrInvalidTransition
	}
	a.Status = next
	a.UpdatedAt = time.Now().UTC()
	return copyAlert(a), nil
}

func (s *MemoryStore) CountByStatus(ctx context.Context, storeID string, status Status) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, a := range s.alerts {
		if a.StoreID == storeID && a.Status == status {
			count++
		}
	}
	return count, nil
}

func copyAlert(a *Alert) *Alert {
	out := *a
	out.Factors = append([]risk.Factor(nil), a.Factors...)
	return &out
}
