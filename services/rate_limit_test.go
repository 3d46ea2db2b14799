package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeResolver struct {
	registered map[string]bool
	premium    map[string]bool
	err        error
}

func (f *fakeResolver) IsRegistered(_ context.Context, userID string) (bool, error) {
	return f.registered[userID], f.err
}

func (f *fakeResolver) IsPremium(_ context.Context, userID string) (bool, error) {
	return f.premium[userID], f.err
}

type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (s *failingStore) Increment(context.Context, string, time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 0, errors.New("connection refused")
}

func (s *failingStore) Peek(context.Context, string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 0, errors.New("connection refused")
}

func testClock(start time.Time) (*time.Time, func() time.Time) {
	current := start
	return &current, func() time.Time { return current }
}

func newTestLimiter(resolver QuotaResolver) (*RateLimitService, *MemoryCounterStore, *time.Time) {
	store := NewMemoryCounterStore()
	current, clock := testClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store.SetClock(clock)

	svc := NewRateLimitService(nil, store, resolver)
	return svc, store, current
}

func TestAdmitGuestQuota(t *testing.T) {
	svc, _, current := newTestLimiter(&fakeResolver{})
	ctx := context.Background()

	decision, err := svc.Admit(ctx, "message", "203.0.113.7", false)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("first guest message should be allowed")
	}
	if decision.Limit != 1 || decision.Bracket != "guest" {
		t.Fatalf("expected guest bracket limit 1, got %d/%s", decision.Limit, decision.Bracket)
	}

	decision, err = svc.Admit(ctx, "message", "203.0.113.7", false)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if decision.Allowed {
		t.Fatal("second guest message in the same minute should be rejected")
	}
	if decision.RetryAfterSeconds != 60 {
		t.Fatalf("expected retry after 60s, got %d", decision.RetryAfterSeconds)
	}

	// A fresh window admits again.
	*current = current.Add(61 * time.Second)
	decision, err = svc.Admit(ctx, "message", "203.0.113.7", false)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("guest message in a new window should be allowed")
	}
}

func TestAdmitRegisteredQuota(t *testing.T) {
	resolver := &fakeResolver{registered: map[string]bool{"user-1": true}}
	svc, _, _ := newTestLimiter(resolver)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		decision, err := svc.Admit(ctx, "message", "user-1", true)
		if err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("message %d should be allowed for registered sender", i+1)
		}
		if decision.Bracket != "registered" {
			t.Fatalf("expected registered bracket, got %q", decision.Bracket)
		}
	}

	decision, err := svc.Admit(ctx, "message", "user-1", true)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if decision.Allowed {
		t.Fatal("11th message in the window should be rejected")
	}
}

func TestAdmitAuthenticatedWithoutPlateGetsGuestQuota(t *testing.T) {
	svc, _, _ := newTestLimiter(&fakeResolver{})
	ctx := context.Background()

	decision, err := svc.Admit(ctx, "message", "user-2", true)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if decision.Limit != 1 || decision.Bracket != "guest" {
		t.Fatalf("account without plates should get guest quota, got %d/%s", decision.Limit, decision.Bracket)
	}
}

func TestPremiumSkipsMessagePolicy(t *testing.T) {
	resolver := &fakeResolver{premium: map[string]bool{"vip": true}}
	svc, _, _ := newTestLimiter(resolver)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		decision, err := svc.Admit(ctx, "message", "vip", true)
		if err != nil {
			t.Fatalf("admit: %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("premium sender should never be limited, rejected at %d", i+1)
		}
	}
}

func TestCountersAreNamespaced(t *testing.T) {
	svc, _, _ := newTestLimiter(&fakeResolver{})
	ctx := context.Background()

	if d, _ := svc.Admit(ctx, "message", "10.0.0.1", false); !d.Allowed {
		t.Fatal("first message should be allowed")
	}
	if d, _ := svc.Admit(ctx, "message", "10.0.0.1", false); d.Allowed {
		t.Fatal("second message for same identity should be rejected")
	}

	// Different identity, same policy.
	if d, _ := svc.Admit(ctx, "message", "10.0.0.2", false); !d.Allowed {
		t.Fatal("other identity should have its own counter")
	}

	// Same identity, different policy.
	if d, _ := svc.Admit(ctx, "report", "10.0.0.1", false); !d.Allowed {
		t.Fatal("other policy should have its own counter")
	}
}

func TestInspectDoesNotConsumeQuota(t *testing.T) {
	svc, _, _ := newTestLimiter(&fakeResolver{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		decision, err := svc.Inspect(ctx, "message", "192.0.2.1", false)
		if err != nil {
			t.Fatalf("inspect: %v", err)
		}
		if !decision.Allowed || decision.Remaining != 1 {
			t.Fatalf("inspect must not consume quota, got allowed=%v remaining=%d", decision.Allowed, decision.Remaining)
		}
	}

	if d, _ := svc.Admit(ctx, "message", "192.0.2.1", false); !d.Allowed {
		t.Fatal("admit after inspects should still be allowed")
	}
	if d, _ := svc.Inspect(ctx, "message", "192.0.2.1", false); d.Allowed {
		t.Fatal("inspect at the limit should report rejection")
	}
}

func TestSharedStoreFailureDegradesPermanently(t *testing.T) {
	failing := &failingStore{}
	fallback := NewMemoryCounterStore()
	svc := NewRateLimitService(failing, fallback, &fakeResolver{})
	ctx := context.Background()

	if svc.Degraded() {
		t.Fatal("limiter should start connected")
	}

	decision, err := svc.Admit(ctx, "message", "198.51.100.1", false)
	if err != nil {
		t.Fatalf("admit during failover: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("failover request should be served from the fallback")
	}
	if !svc.Degraded() {
		t.Fatal("limiter should be degraded after a shared store error")
	}

	callsAfterDegrade := failing.calls
	for i := 0; i < 5; i++ {
		if _, err := svc.Admit(ctx, "message", "198.51.100.1", false); err != nil {
			t.Fatalf("admit while degraded: %v", err)
		}
	}
	if failing.calls != callsAfterDegrade {
		t.Fatal("degraded limiter must not retry the shared store")
	}

	// Counting continues on the fallback: the first request used the quota.
	decision, _ = svc.Admit(ctx, "message", "198.51.100.2", false)
	if !decision.Allowed {
		t.Fatal("fresh identity should be allowed on the fallback")
	}
	decision, _ = svc.Admit(ctx, "message", "198.51.100.2", false)
	if decision.Allowed {
		t.Fatal("fallback must enforce the same quotas")
	}
}

func TestUnknownPolicyAllows(t *testing.T) {
	svc, _, _ := newTestLimiter(&fakeResolver{})

	decision, err := svc.Admit(context.Background(), "no_such_policy", "x", false)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !decision.Allowed || decision.Remaining != -1 {
		t.Fatalf("unknown policy should allow without quota, got %+v", decision)
	}
}

func TestResolverErrorFallsBackToGuestBracket(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("db down")}
	svc, _, _ := newTestLimiter(resolver)

	decision, err := svc.Admit(context.Background(), "message", "user-3", true)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if decision.Limit != 1 || decision.Bracket != "guest" {
		t.Fatalf("resolver failure should degrade to guest bracket, got %d/%s", decision.Limit, decision.Bracket)
	}
}
