package scrape

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: create a rate limiter with a fake clock
func createTestLimiter(t *testing.T, cfg LimiterConfig) (*RateLimiter, *fakeClock) {
	t.Helper()
	limiter := NewRateLimiter(cfg, nil)
	clk := newFakeClock()
	limiter.clk = clk
	return limiter, clk
}

// TestAdjustRate_NeverExceedsMaximum verifies repeated successes cap at the
// configured maximum rate
func TestAdjustRate_NeverExceedsMaximum(t *testing.T) {
	limiter, _ := createTestLimiter(t, LimiterConfig{RequestsPerSecond: 2.0})

	for i := 0; i < 100; i++ {
		limiter.AdjustRate("example.com", true)
	}

	status := limiter.Status("example.com")
	assert.LessOrEqual(t, status.CurrentRate, 2.0, "rate should never exceed configured maximum")
	assert.Positive(t, status.CurrentRate)
}

// TestAdjustRate_NeverBelowFloor verifies repeated failures floor at 0.1
func TestAdjustRate_NeverBelowFloor(t *testing.T) {
	limiter, _ := createTestLimiter(t, LimiterConfig{RequestsPerSecond: 2.0})

	for i := 0; i < 100; i++ {
		limiter.AdjustRate("example.com", false)
	}

	status := limiter.Status("example.com")
	assert.InDelta(t, minRate, status.CurrentRate, 1e-9, "rate should floor at 0.1 req/s")
}

// TestAdjustRate_SuccessRampsBackGradually verifies recovery after failures
func TestAdjustRate_SuccessRampsBackGradually(t *testing.T) {
	limiter, _ := createTestLimiter(t, LimiterConfig{RequestsPerSecond: 2.0})

	limiter.AdjustRate("example.com", false)
	lowered := limiter.Status("example.com").CurrentRate
	assert.InDelta(t, 1.0, lowered, 1e-9, "failure should halve the rate")

	limiter.AdjustRate("example.com", true)
	raised := limiter.Status("example.com").CurrentRate
	assert.InDelta(t, 1.1, raised, 1e-9, "success should raise the rate by 10%")
}

// TestWait_FirstRequestDoesNotBlock verifies a fresh domain proceeds
// immediately
func TestWait_FirstRequestDoesNotBlock(t *testing.T) {
	limiter, clk := createTestLimiter(t, LimiterConfig{})

	err := limiter.Wait("example.com")

	require.NoError(t, err)
	assert.Empty(t, clk.slept, "first request should not sleep")
}

// TestWait_CooldownRejectsWithoutSleeping verifies calls during cooldown
// fail fast with a RateLimitError
func TestWait_CooldownRejectsWithoutSleeping(t *testing.T) {
	limiter, clk := createTestLimiter(t, LimiterConfig{})

	limiter.AddCooldown("blocked.org", 60*time.Second)

	err := limiter.Wait("blocked.org")
	require.Error(t, err)

	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "blocked.org", rle.Domain)
	assert.InDelta(t, 60, rle.Remaining.Seconds(), 1, "should report remaining cooldown")
	assert.Empty(t, clk.slept, "cooldown rejection should not sleep")
}

// TestWait_CooldownExpirySucceedsAndResetsRate verifies the domain gets a
// clean slate once the cooldown has elapsed
func TestWait_CooldownExpirySucceedsAndResetsRate(t *testing.T) {
	limiter, clk := createTestLimiter(t, LimiterConfig{RequestsPerSecond: 2.0})

	limiter.AddCooldown("blocked.org", 60*time.Second)
	limiter.AdjustRate("blocked.org", false) // failure while cooling down

	clk.Advance(61 * time.Second)

	err := limiter.Wait("blocked.org")
	require.NoError(t, err, "wait should succeed after cooldown elapses")

	status := limiter.Status("blocked.org")
	assert.False(t, status.CoolingDown)
	assert.InDelta(t, 2.0, status.CurrentRate, 1e-9, "rate should reset to default")
}

// TestWait_BurstCapBlocks verifies the request beyond the burst cap blocks
// for at least one window
func TestWait_BurstCapBlocks(t *testing.T) {
	limiter, clk := createTestLimiter(t, LimiterConfig{
		RequestsPerSecond: 2.0,
		BurstSize:         5,
	})

	// Six rapid calls; the fake clock does not advance, so all requests
	// land inside one window.
	for i := 0; i < 6; i++ {
		require.NoError(t, limiter.Wait("example.com"), "burst pacing should block, not error")
	}

	window := 500 * time.Millisecond // 1 / 2.0 req/s
	assert.GreaterOrEqual(t, clk.lastSleep(), window,
		"request beyond the burst cap should block for at least one window")
	assert.Equal(t, 6, limiter.Status("example.com").RecentRequests)
}

// TestWait_PacesSteadyStateInterval verifies back-to-back requests are
// spaced by the rate window
func TestWait_PacesSteadyStateInterval(t *testing.T) {
	limiter, clk := createTestLimiter(t, LimiterConfig{RequestsPerSecond: 2.0})

	require.NoError(t, limiter.Wait("example.com"))
	require.NoError(t, limiter.Wait("example.com"))

	require.Len(t, clk.slept, 1)
	assert.Equal(t, 500*time.Millisecond, clk.slept[0],
		"second immediate request should wait out the remaining window")
}

// TestWait_DomainsAreIndependent verifies pacing one domain does not affect
// another
func TestWait_DomainsAreIndependent(t *testing.T) {
	limiter, clk := createTestLimiter(t, LimiterConfig{})

	require.NoError(t, limiter.Wait("a.example.com"))
	require.NoError(t, limiter.Wait("b.example.com"))

	assert.Empty(t, clk.slept, "first request per domain should not sleep")
}

// TestAddCooldown_DefaultDuration verifies the configured default cooldown
// is applied when no duration is given
func TestAddCooldown_DefaultDuration(t *testing.T) {
	limiter, _ := createTestLimiter(t, LimiterConfig{CooldownPeriod: 2 * time.Minute})

	limiter.AddCooldown("slow.org", 0)

	status := limiter.Status("slow.org")
	assert.True(t, status.CoolingDown)
	assert.InDelta(t, 120, status.CooldownRemaining.Seconds(), 1)
}

// TestStatus_UnknownDomain verifies a never-seen domain reports defaults
func TestStatus_UnknownDomain(t *testing.T) {
	limiter, _ := createTestLimiter(t, LimiterConfig{RequestsPerSecond: 2.0})

	status := limiter.Status("never-seen.org")

	assert.InDelta(t, 2.0, status.CurrentRate, 1e-9)
	assert.Zero(t, status.RecentRequests)
	assert.False(t, status.CoolingDown)
}

// TestStatus_DoesNotMutate verifies diagnostics leave pacing state alone
func TestStatus_DoesNotMutate(t *testing.T) {
	limiter, _ := createTestLimiter(t, LimiterConfig{})

	require.NoError(t, limiter.Wait("example.com"))

	first := limiter.Status("example.com")
	second := limiter.Status("example.com")
	assert.Equal(t, first, second)
}

// TestRateLimitError_Message verifies the error names the domain and the
// remaining time
func TestRateLimitError_Message(t *testing.T) {
	err := &RateLimitError{Domain: "example.com", Remaining: 90 * time.Second}

	assert.Contains(t, err.Error(), "example.com")
	assert.Contains(t, err.Error(), "1m30s")
}
