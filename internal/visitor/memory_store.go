package visitor

import (
	"context"
	"sort"
	"sync"

	"github.com/mbd888/copysentry/internal/risk"
	"github.com/mbd888/copysentry/internal/session"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile // storeID + "\x00" + visitorID
}

// NewMemoryStore creates an in-memory visitor profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*Profile),
	}
}

var _ Store = (*MemoryStore)(nil)

func profileKey(storeID, visitorID string) string {
	return storeID + "\x00" + visitorID
}

func (s *MemoryStore) ApplyVisit(ctx context.Context, event *session.VisitEvent, sessionCount int) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := profileKey(event.StoreID, event.VisitorID)
	p, ok := s.profiles[key]
	if !ok {
		p = &Profile{
			StoreID:   event.StoreID,
			VisitorID: event.VisitorID,
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
			RiskLevel: risk.LevelLow,
		}
		s.profiles[key] = p
	}

	if event.Timestamp.After(p.LastSeen) {
		p.LastSeen = event.Timestamp
	}
	if event.Bundle != nil {
		bundle := *event.Bundle
		p.LatestBundle = &bundle
	}
	if !containsPage(p.Pages, event.Path) {
		p.Pages = append(p.Pages, event.Path)
	}
	// Monotone merge keeps the count repairable: a replay after a
	// partial failure lands the same figure instead of skipping it.
	if sessionCount > p.SessionCount {
		p.SessionCount = sessionCount
	}

	// Max-by-score reduction: strictly greater replaces the snapshot,
	// ties keep the earlier one.
	if event.Risk.Score > p.HighestRiskScore {
		p.HighestRiskScore = event.Risk.Score
		p.RiskLevel = event.Risk.Level
		p.RiskFactors = append([]risk.Factor(nil), event.Risk.Factors...)
	}

	return copyProfile(p), nil
}

func (s *MemoryStore) Get(ctx context.Context, storeID, visitorID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[profileKey(storeID, visitorID)]
	if !ok {
		return nil, ErrVisitorNotFound
	}
	return copyProfile(p), nil
}

func (s *MemoryStore) List(ctx context.Context, storeID string, limit, offset int) ([]*Profile, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sortedByScore(storeID)
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	result := make([]*Profile, 0, end-offset)
	for _, p := range all[offset:end] {
		result = append(result, copyProfile(p))
	}
	return result, total, nil
}

func (s *MemoryStore) ListRecentlyActive(ctx context.Context, storeID string, limit int) ([]*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if p.StoreID == storeID {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].LastSeen.Equal(all[j].LastSeen) {
			return all[i].LastSeen.After(all[j].LastSeen)
		}
		return profileKey(all[i].StoreID, all[i].VisitorID) < profileKey(all[j].StoreID, all[j].VisitorID)
	})

	if limit < len(all) {
		all = all[:limit]
	}
	result := make([]*Profile, 0, len(all))
	for _, p := range all {
		result = append(result, copyProfile(p))
	}
	return result, nil
}

func (s *MemoryStore) ListTopThreats(ctx context.Context, storeID string, minScore, limit int) ([]*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Profile
	for _, p := range s.sortedByScore(storeID) {
		if p.HighestRiskScore < minScore {
			break
		}
		result = append(result, copyProfile(p))
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) CountAll(ctx context.Context, storeID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.profiles {
		if p.StoreID == storeID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CountWithMinScore(ctx context.Context, storeID string, minScore int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.profiles {
		if p.StoreID == storeID && p.HighestRiskScore >= minScore {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CountWithScoreBetween(ctx context.Context, storeID string, minScore, maxScore int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.profiles {
		if p.StoreID == storeID && p.HighestRiskScore >= minScore && p.HighestRiskScore < maxScore {
			count++
		}
	}
	return count, nil
}

// sortedByScore returns the store's profiles ordered by score
// descending, then last seen descending. Caller must hold the lock.
func (s *MemoryStore) sortedByScore(storeID string) []*Profile {
	all := make([]*Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if p.StoreID == storeID {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].HighestRiskScore != all[j].HighestRiskScore {
			return all[i].HighestRiskScore > all[j].HighestRiskScore
		}
		if !all[i].LastSeen.Equal(all[j].LastSeen) {
			return all[i].LastSeen.After(all[j].LastSeen)
		}
		return profileKey(all[i].StoreID, all[i].VisitorID) < profileKey(all[j].StoreID, all[j].VisitorID)
	})
	return all
}

func containsPage(pages []string, page string) bool {
	for _, p := range pages {
		if p == page {
			return true
		}
	}
	return false
}

func copyProfile(p *Profile) *Profile {
	out := *p
	out.Pages = append([]string(nil), p.Pages...)
	out.RiskFactors = append([]risk.Factor(nil), p.RiskFactors...)
	if p.LatestBundle != nil {
		bundle := *p.LatestBundle
		out.LatestBundle = &bundle
	}
	return &out
}
