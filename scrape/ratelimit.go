package scrape

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// minRate is the floor for a domain's request rate. Failures halve the rate
// but never push it below this value, so a misbehaving domain is still
// probed occasionally rather than starved forever.
const minRate = 0.1

// RateLimitError reports that a domain is in cooldown and must not be
// contacted until the cooldown elapses.
type RateLimitError struct {
	Domain    string
	Remaining time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("domain %s is in cooldown for another %s",
		e.Domain, e.Remaining.Round(time.Second))
}

// LimiterConfig configures per-domain pacing.
type LimiterConfig struct {
	// RequestsPerSecond is both the starting rate for a new domain and the
	// ceiling that successful requests ramp back up to.
	RequestsPerSecond float64
	// BurstSize caps how many requests may land inside a single rate window.
	BurstSize int
	// CooldownPeriod is the default suspension applied by AddCooldown when
	// no explicit duration is given.
	CooldownPeriod time.Duration
}

// DefaultLimiterConfig returns the stock pacing configuration.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		RequestsPerSecond: 2.0,
		BurstSize:         5,
		CooldownPeriod:    5 * time.Minute,
	}
}

// domainState tracks pacing for a single domain. Created lazily on first
// request and guarded by the limiter's mutex.
type domainState struct {
	currentRate   float64
	recent        []time.Time
	cooldownUntil time.Time // zero means no cooldown
}

// RateLimiter paces outbound requests per domain. Rates adapt to observed
// outcomes: successes ramp a domain's rate up gradually, failures cut it
// sharply, and explicit cooldowns suspend a domain entirely for a while.
//
// All state lives in memory for the life of the process; nothing is
// persisted across runs.
type RateLimiter struct {
	cfg LimiterConfig
	log *zap.Logger
	clk clock

	mu      sync.Mutex
	domains map[string]*domainState
}

// NewRateLimiter creates a limiter with the given configuration. Zero-value
// config fields fall back to defaults. A nil logger is replaced with a nop
// logger.
func NewRateLimiter(cfg LimiterConfig, log *zap.Logger) *RateLimiter {
	def := DefaultLimiterConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = def.BurstSize
	}
	if cfg.CooldownPeriod <= 0 {
		cfg.CooldownPeriod = def.CooldownPeriod
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &RateLimiter{
		cfg:     cfg,
		log:     log,
		clk:     realClock{},
		domains: make(map[string]*domainState),
	}
}

// stateLocked returns the state for domain, creating it on first use. The
// caller must hold rl.mu.
func (rl *RateLimiter) stateLocked(domain string) *domainState {
	st, ok := rl.domains[domain]
	if !ok {
		st = &domainState{currentRate: rl.cfg.RequestsPerSecond}
		rl.domains[domain] = st
	}
	return st
}

// window returns the pacing window for the state's current rate. The rate
// is always positive, so the window is always finite.
func (st *domainState) window() time.Duration {
	return time.Duration(float64(time.Second) / st.currentRate)
}

// Wait blocks until it is safe to issue a request to domain, enforcing both
// the burst cap and the steady-state interval derived from the domain's
// current rate. If the domain is in cooldown it returns a *RateLimitError
// immediately without sleeping; callers should skip the domain rather than
// block until the cooldown ends.
func (rl *RateLimiter) Wait(domain string) error {
	rl.mu.Lock()
	st := rl.stateLocked(domain)
	now := rl.clk.Now()

	if !st.cooldownUntil.IsZero() {
		if now.Before(st.cooldownUntil) {
			remaining := st.cooldownUntil.Sub(now)
			rl.mu.Unlock()
			return &RateLimitError{Domain: domain, Remaining: remaining}
		}
		// Cooldown elapsed: clear it and give the domain a clean slate.
		st.cooldownUntil = time.Time{}
		st.currentRate = rl.cfg.RequestsPerSecond
	}

	window := st.window()
	st.recent = pruneBefore(st.recent, now.Add(-window))

	var sleep time.Duration
	if len(st.recent) >= rl.cfg.BurstSize {
		sleep = window
	} else if n := len(st.recent); n > 0 {
		if elapsed := now.Sub(st.recent[n-1]); elapsed < window {
			sleep = window - elapsed
		}
	}
	rl.mu.Unlock()

	if sleep > 0 {
		rl.clk.Sleep(sleep)
	}

	rl.mu.Lock()
	st.recent = append(st.recent, rl.clk.Now())
	rl.mu.Unlock()
	return nil
}

// AdjustRate updates a domain's rate after a completed attempt. Successes
// ramp the rate up gradually (x1.1, capped at the configured ceiling) to
// avoid oscillation; failures cut it sharply (x0.5, floored at minRate) so
// a struggling domain gets immediate relief.
func (rl *RateLimiter) AdjustRate(domain string, success bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	st := rl.stateLocked(domain)
	if success {
		st.currentRate = min(st.currentRate*1.1, rl.cfg.RequestsPerSecond)
	} else {
		st.currentRate = max(st.currentRate*0.5, minRate)
	}
}

// AddCooldown suspends a domain for d. A non-positive d uses the configured
// default cooldown period. The domain's rate is reset to the configured
// default so it starts fresh once the cooldown expires.
func (rl *RateLimiter) AddCooldown(domain string, d time.Duration) {
	if d <= 0 {
		d = rl.cfg.CooldownPeriod
	}

	rl.mu.Lock()
	st := rl.stateLocked(domain)
	st.cooldownUntil = rl.clk.Now().Add(d)
	st.currentRate = rl.cfg.RequestsPerSecond
	rl.mu.Unlock()

	rl.log.Warn("domain placed in cooldown",
		zap.String("domain", domain),
		zap.Duration("duration", d))
}

// DomainStatus is a read-only snapshot of a domain's pacing state.
type DomainStatus struct {
	CurrentRate       float64
	RecentRequests    int
	CoolingDown       bool
	CooldownRemaining time.Duration
}

// Status reports the current pacing state for a domain without mutating it.
func (rl *RateLimiter) Status(domain string) DomainStatus {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	st, ok := rl.domains[domain]
	if !ok {
		return DomainStatus{CurrentRate: rl.cfg.RequestsPerSecond}
	}

	now := rl.clk.Now()
	status := DomainStatus{CurrentRate: st.currentRate}

	// Count in-window requests without pruning the stored slice.
	cutoff := now.Add(-st.window())
	for _, t := range st.recent {
		if !t.Before(cutoff) {
			status.RecentRequests++
		}
	}

	if !st.cooldownUntil.IsZero() && now.Before(st.cooldownUntil) {
		status.CoolingDown = true
		status.CooldownRemaining = st.cooldownUntil.Sub(now)
	}

	return status
}

// pruneBefore drops timestamps strictly older than cutoff. Timestamps are
// appended in order, so a single scan for the first survivor suffices.
func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	for i, t := range times {
		if !t.Before(cutoff) {
			return times[i:]
		}
	}
	return times[:0]
}
