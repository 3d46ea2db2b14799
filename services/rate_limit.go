package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/platevoice/plate_api/dto"
	"github.com/platevoice/plate_api/shared"
)

// CounterStore is the counter backend contract: fixed-window counters keyed
// by (policy, identity), reset by TTL.
type CounterStore interface {
	// Increment bumps the window counter and returns the new count. The
	// first hit in a window arms the expiry.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	// Peek returns the current count without consuming quota.
	Peek(ctx context.Context, key string) (int64, error)
}

// QuotaResolver decides the per-request quota bracket for dynamic policies.
// Kept as a capability object so tests can fake it and production can cache
// behind it instead of doing per-request I/O.
type QuotaResolver interface {
	IsRegistered(ctx context.Context, userID string) (bool, error)
	IsPremium(ctx context.Context, userID string) (bool, error)
}

type RateLimitPolicy struct {
	Name        string
	MaxRequests int
	WindowSize  time.Duration
	// Dynamic policies resolve the quota per request through the
	// QuotaResolver (guest vs registered bracket).
	Dynamic bool
	// SkipPremium exempts premium senders from this policy.
	SkipPremium bool
	Message     string
	Description string
	IsActive    bool
}

// Store backend selection is an explicit two-state machine. Degradation is
// permanent for the process lifetime so an unhealthy Redis cannot cause a
// retry storm.
const (
	storeConnected int32 = iota
	storeDegraded
)

const (
	counterKeyPrefix = "ratelimit"
	storeCallTimeout = 500 * time.Millisecond

	guestMessageQuota      = 1
	registeredMessageQuota = 10
)

type RateLimitService struct {
	appContext.DefaultService

	policies map[string]*RateLimitPolicy
	mutex    sync.RWMutex

	shared   CounterStore
	fallback CounterStore
	resolver QuotaResolver

	state       atomic.Int32
	degradeOnce sync.Once

	redisSvc    *RedisService
	identitySvc *IdentityService
}

const RATE_LIMIT_SVC = "rate_limit_svc"

func (svc RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

// NewRateLimitService wires a limiter outside the service framework; tests
// and the seeder use this.
func NewRateLimitService(sharedStore CounterStore, fallback CounterStore, resolver QuotaResolver) *RateLimitService {
	svc := &RateLimitService{
		shared:   sharedStore,
		fallback: fallback,
		resolver: resolver,
	}
	if fallback == nil {
		svc.fallback = NewMemoryCounterStore()
	}
	if sharedStore == nil {
		svc.state.Store(storeDegraded)
	}
	svc.initDefaultPolicies()
	return svc
}

func (svc *RateLimitService) Configure(ctx *appContext.Context) error {
	svc.policies = make(map[string]*RateLimitPolicy)
	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	svc.redisSvc = svc.Service(REDIS_SVC).(*RedisService)
	svc.identitySvc = svc.Service(IDENTITY_SVC).(*IdentityService)
	svc.resolver = svc.identitySvc
	svc.fallback = NewMemoryCounterStore()
	svc.initDefaultPolicies()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.redisSvc.Ping(ctx); err != nil {
		svc.markDegraded(err)
	} else {
		svc.shared = newRedisCounterStore(svc.redisSvc.GetClient())
	}

	return nil
}

// ==================== POLICY TABLE ====================

func (svc *RateLimitService) initDefaultPolicies() {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	svc.policies = map[string]*RateLimitPolicy{
		// Combined guest/registered policy for the send-message endpoint.
		// Quota resolved per request: guests 1/min, registered 10/min.
		"message": {
			Name:        "message",
			WindowSize:  time.Minute,
			Dynamic:     true,
			SkipPremium: true,
			Message:     "Too many messages. Please try again later.",
			Description: "Message send rate limit (guest/registered brackets)",
			IsActive:    true,
		},
		"report": {
			Name:        "report",
			MaxRequests: 5,
			WindowSize:  time.Hour,
			Message:     "Too many reports. Please try again later.",
			Description: "Report submission rate limit",
			IsActive:    true,
		},
		"escalate": {
			Name:        "escalate",
			MaxRequests: 10,
			WindowSize:  time.Hour,
			Message:     "Too many escalations. Please try again later.",
			Description: "Manual escalation rate limit",
			IsActive:    true,
		},
		"login": {
			Name:        "login",
			MaxRequests: 10,
			WindowSize:  15 * time.Minute,
			Message:     "Too many login attempts. Please try again later.",
			Description: "Login attempts rate limit",
			IsActive:    true,
		},
		"register": {
			Name:        "register",
			MaxRequests: 5,
			WindowSize:  15 * time.Minute,
			Message:     "Too many registration attempts. Please try again later.",
			Description: "Registration rate limit",
			IsActive:    true,
		},
		"plate_create": {
			Name:        "plate_create",
			MaxRequests: 10,
			WindowSize:  24 * time.Hour,
			Message:     "Too many plate registrations. Please try again later.",
			Description: "Plate registration rate limit",
			IsActive:    true,
		},
	}
}

func (svc *RateLimitService) Policy(name string) (*RateLimitPolicy, bool) {
	svc.mutex.RLock()
	defer svc.mutex.RUnlock()
	p, ok := svc.policies[name]
	return p, ok
}

func (svc *RateLimitService) Policies() map[string]*RateLimitPolicy {
	svc.mutex.RLock()
	defer svc.mutex.RUnlock()
	out := make(map[string]*RateLimitPolicy, len(svc.policies))
	for k, v := range svc.policies {
		out[k] = v
	}
	return out
}

// ==================== CORE DECISION ====================

// Admit consumes one unit of quota for (policy, identity) and decides.
// Counter-store failures never reject: the shared store degrades to the
// in-process fallback, and a fallback failure fails open with a warning.
func (svc *RateLimitService) Admit(ctx context.Context, policyName, identity string, authenticated bool) (*dto.RateLimitDecision, error) {
	policy, exists := svc.Policy(policyName)
	if !exists || !policy.IsActive {
		return &dto.RateLimitDecision{Allowed: true, Remaining: -1}, nil
	}

	if policy.SkipPremium && authenticated && svc.resolver != nil {
		premium, err := svc.resolver.IsPremium(ctx, identity)
		if err == nil && premium {
			return &dto.RateLimitDecision{Allowed: true, Remaining: -1, Bracket: "premium"}, nil
		}
	}

	limit, bracket := svc.resolveQuota(ctx, policy, identity, authenticated)

	key := counterKey(policyName, identity)
	count, err := svc.increment(ctx, key, policy.WindowSize)
	if err != nil {
		log.WithError(err).WithField("policy", policyName).Warn("Rate limit counters unavailable, allowing request")
		return &dto.RateLimitDecision{Allowed: true, Limit: limit, Remaining: -1, Bracket: bracket}, nil
	}

	decision := &dto.RateLimitDecision{
		Limit:   limit,
		Bracket: bracket,
	}
	if count <= int64(limit) {
		decision.Allowed = true
		decision.Remaining = limit - int(count)
	} else {
		decision.Allowed = false
		decision.Remaining = 0
		decision.RetryAfterSeconds = int(policy.WindowSize.Seconds())
		decision.Message = svc.rejectionMessage(policy, bracket, limit)
	}

	recordRateLimitDecision(policyName, decision.Allowed)
	return decision, nil
}

// Inspect reports the current window state without consuming quota, backing
// the checkRateLimit surface.
func (svc *RateLimitService) Inspect(ctx context.Context, policyName, identity string, authenticated bool) (*dto.RateLimitDecision, error) {
	policy, exists := svc.Policy(policyName)
	if !exists || !policy.IsActive {
		return &dto.RateLimitDecision{Allowed: true, Remaining: -1}, nil
	}

	limit, bracket := svc.resolveQuota(ctx, policy, identity, authenticated)

	count, err := svc.peek(ctx, counterKey(policyName, identity))
	if err != nil {
		return &dto.RateLimitDecision{Allowed: true, Limit: limit, Remaining: -1, Bracket: bracket}, nil
	}

	decision := &dto.RateLimitDecision{
		Limit:   limit,
		Bracket: bracket,
	}
	if count < int64(limit) {
		decision.Allowed = true
		decision.Remaining = limit - int(count)
	} else {
		decision.Remaining = 0
		decision.RetryAfterSeconds = int(policy.WindowSize.Seconds())
		decision.Message = svc.rejectionMessage(policy, bracket, limit)
	}
	return decision, nil
}

func (svc *RateLimitService) resolveQuota(ctx context.Context, policy *RateLimitPolicy, identity string, authenticated bool) (int, string) {
	if !policy.Dynamic {
		return policy.MaxRequests, ""
	}

	if !authenticated || svc.resolver == nil {
		return guestMessageQuota, "guest"
	}

	registered, err := svc.resolver.IsRegistered(ctx, identity)
	if err != nil {
		// Advisory lookup: degrade to the restrictive bracket rather than
		// failing the request path.
		log.WithError(err).WithField("identity", identity).Warn("Quota resolution failed, using guest bracket")
		return guestMessageQuota, "guest"
	}
	if registered {
		return registeredMessageQuota, "registered"
	}
	return guestMessageQuota, "guest"
}

func (svc *RateLimitService) rejectionMessage(policy *RateLimitPolicy, bracket string, limit int) string {
	if policy.Dynamic && bracket != "" {
		window := formatWindow(policy.WindowSize)
		return fmt.Sprintf("Rate limit exceeded for %s senders (%d per %s). Please try again later.", bracket, limit, window)
	}
	if policy.Message != "" {
		return policy.Message
	}
	return "Too many requests. Please try again later."
}

func formatWindow(d time.Duration) string {
	switch {
	case d%time.Hour == 0 && d >= time.Hour:
		if d == time.Hour {
			return "hour"
		}
		return fmt.Sprintf("%d hours", int(d.Hours()))
	case d%time.Minute == 0 && d >= time.Minute:
		if d == time.Minute {
			return "minute"
		}
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	default:
		return d.String()
	}
}

// ==================== STORE FAILOVER ====================

func (svc *RateLimitService) increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	if svc.state.Load() == storeConnected && svc.shared != nil {
		callCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
		count, err := svc.shared.Increment(callCtx, key, window)
		cancel()
		if err == nil {
			return count, nil
		}
		svc.markDegraded(err)
	}
	return svc.fallback.Increment(ctx, key, window)
}

func (svc *RateLimitService) peek(ctx context.Context, key string) (int64, error) {
	if svc.state.Load() == storeConnected && svc.shared != nil {
		callCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
		count, err := svc.shared.Peek(callCtx, key)
		cancel()
		if err == nil {
			return count, nil
		}
		svc.markDegraded(err)
	}
	return svc.fallback.Peek(ctx, key)
}

// markDegraded flips Connected -> Degraded for the rest of the process
// lifetime and logs exactly once.
func (svc *RateLimitService) markDegraded(cause error) {
	svc.state.Store(storeDegraded)
	svc.degradeOnce.Do(func() {
		log.WithError(cause).Warn("Shared rate limit store unavailable, falling back to in-process counters for the remainder of the process")
	})
}

// Degraded reports whether the limiter has abandoned the shared store.
func (svc *RateLimitService) Degraded() bool {
	return svc.state.Load() == storeDegraded
}

func counterKey(policy, identity string) string {
	return fmt.Sprintf("%s:%s:%s", counterKeyPrefix, policy, identity)
}

// ==================== MIDDLEWARE ====================

// RateLimit guards a route with the named policy. Identity is the
// authenticated user when present, otherwise the normalized client IP.
func (svc *RateLimitService) RateLimit(policyName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, authenticated := RequestIdentity(c)

		decision, err := svc.Admit(c.Context(), policyName, identity, authenticated)
		if err != nil {
			log.WithError(err).WithField("policy", policyName).Warn("Rate limit check error, allowing request")
			return c.Next()
		}

		addRateLimitHeaders(c, decision)

		if !decision.Allowed {
			return shared.NewRateLimitError(decision.Message, decision.RetryAfterSeconds)
		}

		return c.Next()
	}
}

// RequestIdentity picks the limiter key for a request: user ID for
// authenticated callers, normalized remote IP for everyone else.
func RequestIdentity(c *fiber.Ctx) (string, bool) {
	if userID, ok := c.Locals(shared.UserID).(string); ok && userID != "" {
		return userID, true
	}
	return shared.NormalizeIP(clientIP(c)), false
}

func clientIP(c *fiber.Ctx) string {
	forwarded := c.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if ip != "" {
				return ip
			}
		}
	}

	if realIP := c.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	return c.IP()
}

func addRateLimitHeaders(c *fiber.Ctx, decision *dto.RateLimitDecision) {
	if decision == nil {
		return
	}
	if decision.Limit > 0 {
		c.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	}
	if decision.Remaining >= 0 {
		c.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}
	if decision.RetryAfterSeconds > 0 {
		c.Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds))
	}
}

// ==================== COUNTER STORES ====================

// redisCounterStore keeps one INCR-ed key per (policy, identity), expiring
// with the window. A single INCR per request means a racing pair can
// overcount by one, which the contract tolerates.
type redisCounterStore struct {
	client *redis.Client
}

func newRedisCounterStore(client *redis.Client) *redisCounterStore {
	return &redisCounterStore{client: client}
}

func (s *redisCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	count := incr.Val()
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (s *redisCounterStore) Peek(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// MemoryCounterStore is the in-process fallback: same keys, same window
// semantics, expiry by timestamp check instead of TTL.
type MemoryCounterStore struct {
	mutex   sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	count       int64
	windowStart time.Time
	window      time.Duration
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *MemoryCounterStore) SetClock(now func() time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.now = now
}

func (s *MemoryCounterStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	w, exists := s.windows[key]
	if !exists || now.Sub(w.windowStart) >= w.window {
		s.windows[key] = &memoryWindow{count: 1, windowStart: now, window: window}
		return 1, nil
	}

	w.count++
	return w.count, nil
}

func (s *MemoryCounterStore) Peek(_ context.Context, key string) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	w, exists := s.windows[key]
	if !exists || s.now().Sub(w.windowStart) >= w.window {
		return 0, nil
	}
	return w.count, nil
}

// Reset clears a single counter, used by the admin surface.
func (s *MemoryCounterStore) Reset(key string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.windows, key)
}

// ResetRateLimit clears the counter for (policy, identity) on whichever
// store is active.
func (svc *RateLimitService) ResetRateLimit(ctx context.Context, policyName, identity string) error {
	key := counterKey(policyName, identity)
	if svc.state.Load() == storeConnected && svc.redisSvc != nil {
		callCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
		defer cancel()
		return svc.redisSvc.Delete(callCtx, key)
	}
	if mem, ok := svc.fallback.(*MemoryCounterStore); ok {
		mem.Reset(key)
	}
	return nil
}
