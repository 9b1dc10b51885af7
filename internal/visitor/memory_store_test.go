package visitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mbd888/copysentry/internal/risk"
	"github.com/mbd888/copysentry/internal/session"
	"github.com/mbd888/copysentry/internal/signals"
)

func visitWithScore(storeID, visitorID, key, path string, score int, ts time.Time) *session.VisitEvent {
	level := risk.LevelForScore(score)
	var factors []risk.Factor
	if score > 0 {
		factors = []risk.Factor{{Signal: fmt.Sprintf("sig-%d", score), Severity: risk.SeverityHigh, Detail: "test"}}
	}
	return &session.VisitEvent{
		ID:         fmt.Sprintf("v-%s-%d", key, score),
		StoreID:    storeID,
		VisitorID:  visitorID,
		SessionKey: key,
		Path:       path,
		Timestamp:  ts,
		Risk:       risk.Analysis{Score: score, Level: level, Factors: factors},
	}
}

func TestMemoryStore_ApplyVisit_MaxByScoreReduction(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Scores 15, 45, 30 on three distinct sessions.
	scores := []int{15, 45, 30}
	for i, score := range scores {
		v := visitWithScore("shop", "alice", fmt.Sprintf("s%d", i), fmt.Sprintf("/p%d", i), score, base.Add(time.Duration(i)*time.Minute))
		if _, err := store.ApplyVisit(ctx, v, i+1); err != nil {
			t.Fatalf("ApplyVisit: %v", err)
		}
	}

	p, err := store.Get(ctx, "shop", "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.SessionCount != 3 {
		t.Errorf("SessionCount = %d, want 3", p.SessionCount)
	}
	if p.HighestRiskScore != 45 {
		t.Errorf("HighestRiskScore = %d, want 45 (max, not sum)", p.HighestRiskScore)
	}
	if p.RiskLevel != risk.LevelHigh {
		t.Errorf("RiskLevel = %q, want high", p.RiskLevel)
	}
	if len(p.RiskFactors) != 1 || p.RiskFactors[0].Signal != "sig-45" {
		t.Errorf("RiskFactors = %v, want the snapshot from the 45-score visit", p.RiskFactors)
	}
	if len(p.Pages) != 3 {
		t.Errorf("Pages = %v, want 3 distinct paths", p.Pages)
	}
	if !p.FirstSeen.Equal(base) || !p.LastSeen.Equal(base.Add(2*time.Minute)) {
		t.Errorf("FirstSeen/LastSeen = %v/%v", p.FirstSeen, p.LastSeen)
	}
}

func TestMemoryStore_ApplyVisit_TieKeepsEarlierSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now().UTC()

	first := visitWithScore("shop", "alice", "s1", "/a", 40, base)
	first.Risk.Factors = []risk.Factor{{Signal: "first", Severity: risk.SeverityHigh, Detail: "d"}}
	if _, err := store.ApplyVisit(ctx, first, 1); err != nil {
		t.Fatalf("ApplyVisit: %v", err)
	}

	tied := visitWithScore("shop", "alice", "s2", "/b", 40, base.Add(time.Minute))
	tied.Risk.Factors = []risk.Factor{{Signal: "second", Severity: risk.SeverityHigh, Detail: "d"}}
	if _, err := store.ApplyVisit(ctx, tied, 2); err != nil {
		t.Fatalf("ApplyVisit: %v", err)
	}

	p, err := store.Get(ctx, "shop", "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.HighestRiskScore != 40 {
		t.Errorf("HighestRiskScore = %d, want 40", p.HighestRiskScore)
	}
	if len(p.RiskFactors) != 1 || p.RiskFactors[0].Signal != "first" {
		t.Errorf("tie must keep the earlier snapshot, got %v", p.RiskFactors)
	}
}

func TestMemoryStore_ApplyVisit_SessionCountGuard(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now().UTC()

	if _, err := store.ApplyVisit(ctx, visitWithScore("shop", "alice", "s1", "/a", 10, base), 1); err != nil {
		t.Fatalf("ApplyVisit: %v", err)
	}
	// Two more events in the same session carry the same session count
	for i := 0; i < 2; i++ {
		if _, err := store.ApplyVisit(ctx, visitWithScore("shop", "alice", "s1", "/b", 10, base.Add(time.Minute)), 1); err != nil {
			t.Fatalf("ApplyVisit: %v", err)
		}
	}

	p, err := store.Get(ctx, "shop", "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.SessionCount != 1 {
		t.Errorf("SessionCount = %d, want 1 (sessions, not events)", p.SessionCount)
	}
}

func TestMemoryStore_ApplyVisit_BundleAndPages(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now().UTC()

	vpn := true
	withBundle := visitWithScore("shop", "alice", "s1", "/a", 10, base)
	withBundle.Bundle = &signals.Bundle{VPN: &vpn}
	if _, err := store.ApplyVisit(ctx, withBundle, 1); err != nil {
		t.Fatalf("ApplyVisit: %v", err)
	}

	// Later visit without a bundle keeps the last known one
	noBundle := visitWithScore("shop", "alice", "s2", "/a", 5, base.Add(time.Minute))
	p, err := store.ApplyVisit(ctx, noBundle, 2)
	if err != nil {
		t.Fatalf("ApplyVisit: %v", err)
	}
	if p.LatestBundle == nil || p.LatestBundle.VPN == nil || !*p.LatestBundle.VPN {
		t.Error("LatestBundle should survive a bundle-less visit")
	}
	if len(p.Pages) != 1 {
		t.Errorf("Pages = %v, want deduplicated single entry", p.Pages)
	}
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "shop", "nobody"); err != ErrVisitorNotFound {
		t.Errorf("err = %v, want ErrVisitorNotFound", err)
	}
}

func TestMemoryStore_List_SortedByScoreDesc(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now().UTC()

	for i, score := range []int{30, 80, 55} {
		v := visitWithScore("shop", fmt.Sprintf("visitor-%d", i), fmt.Sprintf("s%d", i), "/p", score, base)
		if _, err := store.ApplyVisit(ctx, v, 1); err != nil {
			t.Fatalf("ApplyVisit: %v", err)
		}
	}

	profiles, total, err := store.List(ctx, "shop", 2, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(profiles) != 2 || profiles[0].HighestRiskScore != 80 || profiles[1].HighestRiskScore != 55 {
		t.Errorf("List page = %v, want scores [80 55]", profiles)
	}

	rest, _, err := store.List(ctx, "shop", 2, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rest) != 1 || rest[0].HighestRiskScore != 30 {
		t.Errorf("offset page = %v, want score [30]", rest)
	}
}

func TestMemoryStore_TopThreatsAndCounts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now().UTC()

	for i, score := range []int{10, 45, 65, 90} {
		v := visitWithScore("shop", fmt.Sprintf("visitor-%d", i), fmt.Sprintf("s%d", i), "/p", score, base.Add(time.Duration(i)*time.Second))
		if _, err := store.ApplyVisit(ctx, v, 1); err != nil {
			t.Fatalf("ApplyVisit: %v", err)
		}
	}

	threats, err := store.ListTopThreats(ctx, "shop", 60, 5)
	if err != nil {
		t.Fatalf("ListTopThreats: %v", err)
	}
	if len(threats) != 2 || threats[0].HighestRiskScore != 90 || threats[1].HighestRiskScore != 65 {
		t.Errorf("ListTopThreats = %v, want scores [90 65]", threats)
	}

	total, err := store.CountAll(ctx, "shop")
	if err != nil || total != 4 {
		t.Errorf("CountAll = %d (%v), want 4", total, err)
	}

	critical, err := store.CountWithMinScore(ctx, "shop", 60)
	if err != nil || critical != 2 {
		t.Errorf("CountWithMinScore(60) = %d (%v), want 2", critical, err)
	}

	high, err := store.CountWithMinScore(ctx, "shop", 40)
	if err != nil || high != 3 {
		t.Errorf("CountWithMinScore(40) = %d (%v), want 3", high, err)
	}
}

func TestMemoryStore_ListRecentlyActive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		v := visitWithScore("shop", fmt.Sprintf("visitor-%d", i), fmt.Sprintf("s%d", i), "/p", 10, base.Add(time.Duration(i)*time.Hour))
		if _, err := store.ApplyVisit(ctx, v, 1); err != nil {
			t.Fatalf("ApplyVisit: %v", err)
		}
	}

	recent, err := store.ListRecentlyActive(ctx, "shop", 2)
	if err != nil {
		t.Fatalf("ListRecentlyActive: %v", err)
	}
	if len(recent) != 2 || recent[0].VisitorID != "visitor-2" || recent[1].VisitorID != "visitor-1" {
		t.Errorf("recent = %v, want [visitor-2 visitor-1]", recent)
	}
}

func TestMemoryStore_ApplyVisit_SessionCountMonotone(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now().UTC()

	// A replayed event carries the same derived count and must land the
	// same figure, not add to it.
	if _, err := store.ApplyVisit(ctx, visitWithScore("shop", "alice", "s1", "/a", 10, base), 1); err != nil {
		t.Fatalf("ApplyVisit: %v", err)
	}
	if _, err := store.ApplyVisit(ctx, visitWithScore("shop", "alice", "s1", "/a", 10, base), 1); err != nil {
		t.Fatalf("ApplyVisit: %v", err)
	}

	p, err := store.Get(ctx, "shop", "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.SessionCount != 1 {
		t.Errorf("SessionCount = %d, want 1 after replay", p.SessionCount)
	}

	// A stale count must never pull the profile backwards.
	if _, err := store.ApplyVisit(ctx, visitWithScore("shop", "alice", "s2", "/b", 10, base.Add(time.Minute)), 2); err != nil {
		t.Fatalf("ApplyVisit: %v", err)
	}
	if _, err := store.ApplyVisit(ctx, visitWithScore("shop", "alice", "s1", "/a", 10, base), 1); err != nil {
		t.Fatalf("ApplyVisit: %v", err)
	}
	p, err = store.Get(ctx, "shop", "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.SessionCount != 2 {
		t.Errorf("SessionCount = %d, want 2 after stale merge", p.SessionCount)
	}
}

func TestMemoryStore_CountWithScoreBetween(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now().UTC()

	for i, score := range []int{10, 40, 45, 59, 60, 90} {
		v := visitWithScore("shop", fmt.Sprintf("visitor-%d", i), fmt.Sprintf("s%d", i), "/p", score, base)
		if _, err := store.ApplyVisit(ctx, v, 1); err != nil {
			t.Fatalf("ApplyVisit: %v", err)
		}
	}

	// Half-open band: 40, 45 and 59 are in, 60 is not.
	count, err := store.CountWithScoreBetween(ctx, "shop", 40, 60)
	if err != nil {
		t.Fatalf("CountWithScoreBetween: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestMemoryStore_QueriesScopedToStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now().UTC()

	if _, err := store.ApplyVisit(ctx, visitWithScore("shop", "alice", "s1", "/a", 70, base), 1); err != nil {
		t.Fatalf("ApplyVisit: %v", err)
	}
	if _, err := store.ApplyVisit(ctx, visitWithScore("other", "bob", "s2", "/a", 80, base), 1); err != nil {
		t.Fatalf("ApplyVisit: %v", err)
	}

	profiles, total, err := store.List(ctx, "shop", 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(profiles) != 1 || profiles[0].VisitorID != "alice" {
		t.Errorf("List = %v (total %d), want only alice", profiles, total)
	}

	count, err := store.CountWithMinScore(ctx, "other", 60)
	if err != nil || count != 1 {
		t.Errorf("CountWithMinScore(other, 60) = %d (%v), want 1", count, err)
	}

	threats, err := store.ListTopThreats(ctx, "shop", 60, 5)
	if err != nil {
		t.Fatalf("ListTopThreats: %v", err)
	}
	if len(threats) != 1 || threats[0].VisitorID != "alice" {
		t.Errorf("ListTopThreats = %v, want only alice", threats)
	}
}
