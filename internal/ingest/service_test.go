package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/mbd888/copysentry/internal/alerts"
	"github.com/mbd888/copysentry/internal/risk"
	"github.com/mbd888/copysentry/internal/session"
	"github.com/mbd888/copysentry/internal/signals"
	"github.com/mbd888/copysentry/internal/visitor"
)

type stubProvider struct {
	bundle *signals.Bundle
	err    error
	calls  int
	mu     sync.Mutex
}

func (p *stubProvider) GetSignals(ctx context.Context, correlationKey string) (*signals.Bundle, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.bundle, p.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	visits []*session.VisitEvent
	alerts []*alerts.Alert
}

func (n *recordingNotifier) VisitRecorded(e *session.VisitEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visits = append(n.visits, e)
}

func (n *recordingNotifier) AlertCreated(a *alerts.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
}

type fixture struct {
	service  *Service
	sessions *session.MemoryStore
	visitors *visitor.MemoryStore
	alerts   *alerts.MemoryStore
	notifier *recordingNotifier
}

func newFixture(provider signals.Provider) *fixture {
	f := &fixture{
		sessions: session.NewMemoryStore(),
		visitors: visitor.NewMemoryStore(),
		alerts:   alerts.NewMemoryStore(),
		notifier: &recordingNotifier{},
	}
	f.service = NewService(provider, f.sessions, f.visitors, alerts.NewManager(f.alerts), f.notifier)
	return f
}

func collectReq(storeID, visitorID, key, path string) *CollectRequest {
	return &CollectRequest{
		StoreID:    storeID,
		VisitorID:  visitorID,
		SessionKey: key,
		Path:       path,
	}
}

func scoreBundle(score float64) *signals.Bundle {
	return &signals.Bundle{SuspectScore: &score}
}

func TestService_Ingest_HappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&stubProvider{bundle: scoreBundle(0.3)})

	result, err := f.service.Ingest(ctx, collectReq("shop", "alice", "sess-1", "/products"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !result.IsNewSession {
		t.Error("first visit should open a new session")
	}
	if result.Event.Risk.Score != 30 {
		t.Errorf("Score = %d, want 30", result.Event.Risk.Score)
	}
	if result.Alert != nil {
		t.Error("score 30 must not alert")
	}

	sess, err := f.sessions.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(sess.Paths) != 1 || sess.Paths[0] != "/products" {
		t.Errorf("session paths = %v", sess.Paths)
	}

	p, err := f.visitors.Get(ctx, "shop", "alice")
	if err != nil {
		t.Fatalf("Get profile: %v", err)
	}
	if p.SessionCount != 1 || p.HighestRiskScore != 30 {
		t.Errorf("profile = count %d score %d, want 1/30", p.SessionCount, p.HighestRiskScore)
	}

	if len(f.notifier.visits) != 1 {
		t.Errorf("notifier saw %d visits, want 1", len(f.notifier.visits))
	}
}

func TestService_Ingest_ProviderFailureDegrades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&stubProvider{err: errors.New("upstream timeout")})

	req := collectReq("shop", "alice", "sess-1", "/products")
	req.ClientSignals.DevtoolsOpen = true

	result, err := f.service.Ingest(ctx, req)
	if err != nil {
		t.Fatalf("provider failure must not fail ingestion: %v", err)
	}
	if result.Event.Bundle != nil {
		t.Error("bundle should be nil after provider failure")
	}
	if result.Event.Risk.Score != risk.DevtoolsFallbackScore {
		t.Errorf("Score = %d, want devtools fallback %d", result.Event.Risk.Score, risk.DevtoolsFallbackScore)
	}
}

func TestService_Ingest_NotConfiguredDegrades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&stubProvider{err: signals.ErrNotConfigured})

	result, err := f.service.Ingest(ctx, collectReq("shop", "alice", "sess-1", "/p"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Event.Risk.Score != 0 || result.Event.Risk.Level != risk.LevelLow {
		t.Errorf("unscored visit = %d/%s, want 0/low", result.Event.Risk.Score, result.Event.Risk.Level)
	}
}

func TestService_Ingest_AlertAtThreshold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&stubProvider{bundle: scoreBundle(0.5)})

	result, err := f.service.Ingest(ctx, collectReq("shop", "alice", "sess-1", "/p"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Alert == nil {
		t.Fatal("score 50 must alert")
	}
	if result.Alert.Status != alerts.StatusNew {
		t.Errorf("alert status = %q, want new", result.Alert.Status)
	}

	count, err := f.alerts.CountByStatus(ctx, "shop", alerts.StatusNew)
	if err != nil || count != 1 {
		t.Errorf("alert count = %d (%v), want 1", count, err)
	}
	if len(f.notifier.alerts) != 1 {
		t.Errorf("notifier saw %d alerts, want 1", len(f.notifier.alerts))
	}
}

func TestService_Ingest_ValidationRejectsBeforeAnyWrite(t *testing.T) {
	ctx := context.Background()
	provider := &stubProvider{bundle: scoreBundle(0.9)}
	f := newFixture(provider)

	cases := []*CollectRequest{
		collectReq("", "alice", "sess-1", "/p"),
		collectReq("shop", "", "sess-1", "/p"),
		collectReq("shop", "alice", "", "/p"),
		collectReq("shop", "alice", "bad key with spaces", "/p"),
	}
	for _, req := range cases {
		if _, err := f.service.Ingest(ctx, req); err == nil {
			t.Errorf("request %+v should fail validation", req)
		}
	}

	if provider.calls != 0 {
		t.Errorf("provider called %d times for invalid requests, want 0", provider.calls)
	}
	if n, _ := f.visitors.CountAll(ctx, "shop"); n != 0 {
		t.Errorf("profiles created for invalid requests: %d", n)
	}
}

func TestService_Ingest_MixedScoreSequence(t *testing.T) {
	// Scores 15, 45, 30 on three distinct sessions: profile keeps the
	// max, one alert below threshold 50 means zero alerts.
	ctx := context.Background()
	provider := &stubProvider{}
	f := newFixture(provider)

	for i, s := range []float64{0.15, 0.45, 0.30} {
		provider.bundle = scoreBundle(s)
		req := collectReq("shop", "v-1", fmt.Sprintf("sess-%d", i), "/p")
		if _, err := f.service.Ingest(ctx, req); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	p, err := f.visitors.Get(ctx, "shop", "v-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.SessionCount != 3 {
		t.Errorf("SessionCount = %d, want 3", p.SessionCount)
	}
	if p.HighestRiskScore != 45 || p.RiskLevel != risk.LevelHigh {
		t.Errorf("profile risk = %d/%s, want 45/high", p.HighestRiskScore, p.RiskLevel)
	}
	count, _ := f.alerts.CountByStatus(ctx, "shop", alerts.StatusNew)
	if count != 0 {
		t.Errorf("alerts = %d, want 0 with threshold %d", count, alerts.Threshold)
	}
}

func TestService_Ingest_ConcurrentDuplicateFirstEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&stubProvider{})

	const n = 20
	var wg sync.WaitGroup
	newSessions := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.service.Ingest(ctx, collectReq("shop", "alice", "sess-dup", "/products"))
			if err != nil {
				t.Errorf("Ingest: %v", err)
				return
			}
			newSessions[i] = result.IsNewSession
		}(i)
	}
	wg.Wait()

	trueCount := 0
	for _, isNew := range newSessions {
		if isNew {
			trueCount++
		}
	}
	if trueCount != 1 {
		t.Errorf("isNewSession true %d times, want exactly 1", trueCount)
	}

	p, err := f.visitors.Get(ctx, "shop", "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.SessionCount != 1 {
		t.Errorf("SessionCount = %d, want 1", p.SessionCount)
	}

	sess, err := f.sessions.GetSession(ctx, "sess-dup")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(sess.Paths) != 1 {
		t.Errorf("paths = %v, want single deduplicated entry", sess.Paths)
	}
}

func TestService_Ingest_PathSanitized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(&stubProvider{})

	result, err := f.service.Ingest(ctx, collectReq("shop", "alice", "s1", "products"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Event.Path != "/products" {
		t.Errorf("Path = %q, want leading slash added", result.Event.Path)
	}
}

type flakyVisitorStore struct {
	visitor.Store
	mu       sync.Mutex
	failures int
}

func (s *flakyVisitorStore) ApplyVisit(ctx context.Context, event *session.VisitEvent, sessionCount int) (*visitor.Profile, error) {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return nil, errors.New("storage unavailable")
	}
	s.mu.Unlock()
	return s.Store.ApplyVisit(ctx, event, sessionCount)
}

func TestService_Ingest_RetryRepairsSessionCount(t *testing.T) {
	ctx := context.Background()
	profiles := visitor.NewMemoryStore()
	flaky := &flakyVisitorStore{Store: profiles, failures: 1}
	svc := NewService(&stubProvider{}, session.NewMemoryStore(), flaky,
		alerts.NewManager(alerts.NewMemoryStore()), &recordingNotifier{})

	// The session write lands, then the profile write fails.
	if _, err := svc.Ingest(ctx, collectReq("shop", "alice", "sess-1", "/products")); err == nil {
		t.Fatal("first attempt should surface the profile write failure")
	}
	if _, err := profiles.Get(ctx, "shop", "alice"); err != visitor.ErrVisitorNotFound {
		t.Fatalf("profile should not exist yet: %v", err)
	}

	// The caller retries the same request. The session already exists so
	// the event no longer looks new, but the count is derived from the
	// sessions on record, not from that flag.
	result, err := svc.Ingest(ctx, collectReq("shop", "alice", "sess-1", "/products"))
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if result.IsNewSession {
		t.Error("retry must not report a new session")
	}

	p, err := profiles.Get(ctx, "shop", "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.SessionCount != 1 {
		t.Errorf("SessionCount after retry = %d, want 1", p.SessionCount)
	}
}
