package antiban

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noon on an arbitrary weekday, well clear of the default night window
var testBase = time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC)

type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *testClock) Set(t time.Time)         { c.t = t }

func newTestGuard(t *testing.T, policy Policy) (*Guard, *testClock) {
	t.Helper()

	g, err := NewGuard(policy)
	require.NoError(t, err)

	clock := &testClock{t: testBase}
	g.now = clock.Now
	g.randn = func(n int64) int64 { return 0 } // deterministic: always the range minimum
	return g, clock
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.NightMode = false
	return p
}

func TestDecideNightModeWrapAround(t *testing.T) {
	p := testPolicy()
	p.NightMode = true
	p.NightStartHour = 22
	p.NightEndHour = 6

	tests := []struct {
		hour   int
		active bool
	}{
		{23, true},
		{2, true},
		{22, true},
		{6, false},
		{10, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("hour_%d", tt.hour), func(t *testing.T) {
			g, clock := newTestGuard(t, p)
			clock.Set(time.Date(2024, 5, 14, tt.hour, 30, 0, 0, time.UTC))

			d := g.Decide("acct", CategorySearch)
			if tt.active {
				assert.Equal(t, ActionStop, d.Action)
				assert.Equal(t, "night mode active", d.Reason)
			} else {
				assert.NotEqual(t, ActionStop, d.Action)
			}
		})
	}
}

func TestDecideGlobalPause(t *testing.T) {
	g, clock := newTestGuard(t, testPolicy())

	g.ForcePause(5 * time.Minute)
	assert.True(t, g.GloballyPaused())

	d := g.Decide("acct", CategorySearch)
	assert.Equal(t, ActionPause, d.Action)
	assert.Equal(t, 5*time.Minute, d.Wait)
	assert.Equal(t, "global pause active", d.Reason)

	// Expiry is cleared lazily on the next decide
	clock.Advance(6 * time.Minute)
	d = g.Decide("acct", CategorySearch)
	assert.NotEqual(t, ActionPause, d.Action)
	assert.False(t, g.GloballyPaused())
}

func TestDecideGlobalPauseResume(t *testing.T) {
	g, _ := newTestGuard(t, testPolicy())

	g.ForcePause(time.Hour)
	g.Resume()

	d := g.Decide("acct", CategorySearch)
	assert.NotEqual(t, ActionPause, d.Action)
}

func TestHourRolloverExactlyOnce(t *testing.T) {
	g, clock := newTestGuard(t, testPolicy())

	for i := 0; i < 3; i++ {
		g.RecordSuccess("acct", CategorySearch)
	}

	// Any number of decides inside the same hour never resets counters
	for i := 0; i < 5; i++ {
		g.Decide("acct", CategorySearch)
		clock.Advance(time.Minute)
	}
	s, ok := g.Session("acct")
	require.True(t, ok)
	assert.Equal(t, 3, s.SearchesThisHour)
	assert.Equal(t, 3, s.RequestsThisHour)

	// Crossing the boundary resets hour-scoped counters to exactly 0,
	// no matter how late the first post-boundary call lands
	clock.Advance(2 * time.Hour)
	g.Decide("acct", CategorySearch)
	s, ok = g.Session("acct")
	require.True(t, ok)
	assert.Equal(t, 0, s.SearchesThisHour)
	assert.Equal(t, 0, s.RequestsThisHour)
	assert.Equal(t, 0, s.ErrorsThisHour)
	assert.Equal(t, clock.Now(), s.HourStart)
}

func TestDayRolloverAnchorsAtMidnight(t *testing.T) {
	g, clock := newTestGuard(t, testPolicy())

	g.RecordSuccess("acct", CategoryAction)
	s, _ := g.Session("acct")
	assert.Equal(t, 1, s.RequestsToday)

	clock.Advance(25 * time.Hour)
	g.Decide("acct", CategoryAction)

	s, ok := g.Session("acct")
	require.True(t, ok)
	assert.Equal(t, 0, s.RequestsToday)

	now := clock.Now()
	wantDayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	assert.Equal(t, wantDayStart, s.DayStart)
}

func TestSearchQuotaExhaustion(t *testing.T) {
	p := testPolicy()
	p.MaxSearchesPerHour = 5
	p.SearchDelay = DelayRange{Min: time.Second, Max: 2 * time.Second}
	g, _ := newTestGuard(t, p)

	for i := 0; i < 5; i++ {
		g.RecordSuccess("acct", CategorySearch)
	}

	d := g.Decide("acct", CategorySearch)
	assert.Equal(t, ActionPause, d.Action)
	assert.Contains(t, d.Reason, "5/5")
	assert.Greater(t, d.Wait, time.Duration(0))
	assert.Equal(t, RiskHigh, d.Risk)

	// Once exhausted, decide never answers proceed or delay again this hour
	for i := 0; i < 3; i++ {
		d = g.Decide("acct", CategorySearch)
		assert.Equal(t, ActionPause, d.Action)
	}
}

func TestHourlyPauseAlignsToWallClock(t *testing.T) {
	p := testPolicy()
	p.MaxRequestsPerHour = 1
	g, clock := newTestGuard(t, p)

	g.RecordSuccess("acct", CategoryAction)

	// minute 0: the full hour remains
	d := g.Decide("acct", CategoryAction)
	require.Equal(t, ActionPause, d.Action)
	assert.Equal(t, 60*time.Minute, d.Wait)

	// minute 59: one minute remains, seconds ignored by design
	clock.Set(time.Date(2024, 5, 14, 12, 59, 59, 0, time.UTC))
	d = g.Decide("acct", CategoryAction)
	require.Equal(t, ActionPause, d.Action)
	assert.Equal(t, time.Minute, d.Wait)
}

func TestDailyQuotaIsHardStop(t *testing.T) {
	p := testPolicy()
	p.MaxRequestsPerDay = 3
	g, _ := newTestGuard(t, p)

	for i := 0; i < 3; i++ {
		g.RecordSuccess("acct", CategoryAction)
	}

	d := g.Decide("acct", CategoryAction)
	assert.Equal(t, ActionPause, d.Action)
	assert.Equal(t, RiskCritical, d.Risk)
	assert.Contains(t, d.Reason, "3/3")
	// No remaining-seconds computed for the daily breach
	assert.Equal(t, time.Duration(0), d.Wait)
}

func TestPurchaseQuota(t *testing.T) {
	p := testPolicy()
	p.MaxPurchasesPerHour = 2
	g, _ := newTestGuard(t, p)

	g.RecordSuccess("acct", CategoryPurchase)
	g.RecordSuccess("acct", CategoryPurchase)

	d := g.Decide("acct", CategoryPurchase)
	assert.Equal(t, ActionPause, d.Action)
	assert.Contains(t, d.Reason, "2/2")

	// Other categories are not blocked by the purchase cap
	d = g.Decide("acct", CategoryAction)
	assert.NotEqual(t, ActionPause, d.Action)
}

func TestCyclePause(t *testing.T) {
	p := testPolicy()
	p.PauseAfterSearches = 3
	p.CyclePause = DelayRange{Min: 2 * time.Minute, Max: 5 * time.Minute}
	p.SearchDelay = DelayRange{Min: 0, Max: 0}
	g, clock := newTestGuard(t, p)

	for i := 0; i < 3; i++ {
		g.RecordSuccess("acct", CategorySearch)
		clock.Advance(time.Second)
	}

	d := g.Decide("acct", CategorySearch)
	require.Equal(t, ActionPause, d.Action)
	assert.Contains(t, d.Reason, "cycle pause")
	assert.GreaterOrEqual(t, d.Wait, p.CyclePause.Min)
	assert.LessOrEqual(t, d.Wait, p.CyclePause.Max)

	// Counter was reset when the pause was issued
	s, _ := g.Session("acct")
	assert.Equal(t, 0, s.SearchesSinceLastPause)

	d = g.Decide("acct", CategorySearch)
	assert.NotEqual(t, ActionPause, d.Action)
}

func TestCyclePauseSearchOnly(t *testing.T) {
	p := testPolicy()
	p.PauseAfterSearches = 1
	g, _ := newTestGuard(t, p)

	g.RecordSuccess("acct", CategorySearch)

	// Purchases and generic actions never trip the cycle pause
	d := g.Decide("acct", CategoryPurchase)
	assert.NotContains(t, d.Reason, "cycle pause")
	d = g.Decide("acct", CategoryAction)
	assert.NotContains(t, d.Reason, "cycle pause")
}

func TestSessionDurationPause(t *testing.T) {
	p := testPolicy()
	p.SessionDuration = 2 * time.Hour
	p.PauseBetweenSessions = 30 * time.Minute
	g, clock := newTestGuard(t, p)

	g.InitSession("acct")
	clock.Advance(2*time.Hour + time.Minute)

	d := g.Decide("acct", CategorySearch)
	require.Equal(t, ActionPause, d.Action)
	assert.Equal(t, 30*time.Minute, d.Wait)
	assert.Equal(t, "session duration exceeded", d.Reason)
	assert.Equal(t, RiskMedium, d.Risk)

	// The pause begins a fresh session; the next decide is not paused again
	clock.Advance(30 * time.Minute)
	d = g.Decide("acct", CategorySearch)
	assert.NotEqual(t, ActionPause, d.Action)
}

func TestDelayFloorSatisfied(t *testing.T) {
	p := testPolicy()
	p.SearchDelay = DelayRange{Min: 7 * time.Second, Max: 15 * time.Second}
	g, clock := newTestGuard(t, p)

	g.RecordSuccess("acct", CategorySearch)
	clock.Advance(10 * time.Second)

	// 10s elapsed >= 7s floor: no extra wait
	d := g.Decide("acct", CategorySearch)
	assert.Equal(t, ActionProceed, d.Action)
	assert.Equal(t, time.Duration(0), d.Wait)
}

func TestDelaySubtractsElapsed(t *testing.T) {
	p := testPolicy()
	p.SearchDelay = DelayRange{Min: 7 * time.Second, Max: 15 * time.Second}
	g, clock := newTestGuard(t, p)

	g.RecordSuccess("acct", CategorySearch)
	clock.Advance(2 * time.Second)

	// randn pinned to 0, so the target is the 7s minimum at low risk
	d := g.Decide("acct", CategorySearch)
	assert.Equal(t, ActionDelay, d.Action)
	assert.Equal(t, 5*time.Second, d.Wait)
}

func TestDelayScalesWithRisk(t *testing.T) {
	p := testPolicy()
	p.SearchDelay = DelayRange{Min: 10 * time.Second, Max: 10 * time.Second}
	p.MaxRequestsPerHour = 100
	g, clock := newTestGuard(t, p)

	// Drive usage to the high-risk band: 70/100 requests = 70%
	for i := 0; i < 70; i++ {
		g.RecordSuccess("acct", CategoryAction)
	}
	g.RecordSuccess("acct", CategorySearch)
	clock.Advance(time.Second)

	d := g.Decide("acct", CategorySearch)
	require.Equal(t, ActionDelay, d.Action)
	assert.Equal(t, RiskHigh, d.Risk)
	// 10s target x2 multiplier minus 1s elapsed
	assert.Equal(t, 19*time.Second, d.Wait)
}

func TestFreshSessionProceedsImmediately(t *testing.T) {
	g, _ := newTestGuard(t, testPolicy())

	// No lastRequestTime yet: elapsed is effectively infinite
	d := g.Decide("acct", CategorySearch)
	assert.Equal(t, ActionProceed, d.Action)
	assert.Equal(t, RiskLow, d.Risk)
}

func TestRecordSuccessClearsErrorStreak(t *testing.T) {
	g, _ := newTestGuard(t, testPolicy())

	g.RecordError("acct", 500)
	g.RecordError("acct", 500)
	s, _ := g.Session("acct")
	require.Equal(t, 2, s.ConsecutiveErrors)

	// Any success clears the streak, regardless of category
	g.RecordSuccess("acct", CategoryAction)
	s, _ = g.Session("acct")
	assert.Equal(t, 0, s.ConsecutiveErrors)

	// recordError never resets it
	g.RecordError("acct", 500)
	g.RecordError("acct", 502)
	s, _ = g.Session("acct")
	assert.Equal(t, 2, s.ConsecutiveErrors)
}

func TestRecordErrorForcedStopCode(t *testing.T) {
	g, _ := newTestGuard(t, testPolicy())

	// 429 is in the default stop list: stop on the very first error of a
	// brand-new session
	d := g.RecordError("acct", 429)
	assert.Equal(t, ActionStop, d.Action)
	assert.Equal(t, RiskCritical, d.Risk)
	assert.Contains(t, d.Reason, "429")

	s, _ := g.Session("acct")
	assert.Equal(t, 1, s.ConsecutiveErrors)
	assert.Equal(t, RiskCritical, s.RiskLevel)
}

func TestRecordErrorLinearBackoff(t *testing.T) {
	p := testPolicy()
	p.MaxConsecutiveErrors = 20
	g, _ := newTestGuard(t, p)

	wants := []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second}
	for _, want := range wants {
		d := g.RecordError("acct", 500)
		assert.Equal(t, ActionPause, d.Action)
		assert.Equal(t, want, d.Wait)
	}

	// Cap at one minute
	for i := 0; i < 10; i++ {
		g.RecordError("acct", 500)
	}
	d := g.RecordError("acct", 500)
	assert.Equal(t, time.Minute, d.Wait)
}

func TestRecordErrorStreakLimit(t *testing.T) {
	p := testPolicy()
	p.MaxConsecutiveErrors = 3
	g, _ := newTestGuard(t, p)

	g.RecordError("acct", 500)
	g.RecordError("acct", 500)
	d := g.RecordError("acct", 500)
	assert.Equal(t, ActionStop, d.Action)
	assert.Equal(t, RiskCritical, d.Risk)
	assert.Contains(t, d.Reason, "3 consecutive errors")

	// Subsequent decides keep stopping until the streak is cleared
	d = g.Decide("acct", CategorySearch)
	assert.Equal(t, ActionStop, d.Action)
}

func TestMissingSessionDegradesGracefully(t *testing.T) {
	g, _ := newTestGuard(t, testPolicy())

	// Neither call panics or errors on an unknown account; a fresh
	// session is created on the fly
	d := g.Decide("ghost", CategorySearch)
	assert.Equal(t, ActionProceed, d.Action)

	g.RemoveSession("ghost")
	d = g.RecordError("ghost", 500)
	assert.Equal(t, ActionPause, d.Action)
	_, ok := g.Session("ghost")
	assert.True(t, ok)
}

func TestInitSessionOverwrites(t *testing.T) {
	g, _ := newTestGuard(t, testPolicy())

	g.RecordSuccess("acct", CategorySearch)
	g.RecordError("acct", 500)

	s := g.InitSession("acct")
	assert.Equal(t, 0, s.RequestsThisHour)
	assert.Equal(t, 0, s.ConsecutiveErrors)
	assert.Equal(t, RiskLow, s.RiskLevel)
}

func TestRiskPercentage(t *testing.T) {
	p := testPolicy()
	p.MaxRequestsPerHour = 100
	p.MaxSearchesPerHour = 10
	p.MaxPurchasesPerHour = 10
	g, _ := newTestGuard(t, p)

	assert.Equal(t, float64(0), g.RiskPercentage("acct"))

	// 5/10 searches dominates 5/100 requests
	for i := 0; i < 5; i++ {
		g.RecordSuccess("acct", CategorySearch)
	}
	assert.InDelta(t, 50, g.RiskPercentage("acct"), 0.001)

	// Each error this hour adds a flat 5 points
	g.RecordError("acct", 500)
	g.RecordError("acct", 500)
	assert.InDelta(t, 60, g.RiskPercentage("acct"), 0.001)
}

func TestRiskMonotonicInUsage(t *testing.T) {
	p := testPolicy()
	g, _ := newTestGuard(t, p)

	prev := float64(-1)
	for i := 0; i < 30; i++ {
		g.RecordSuccess("acct", CategorySearch)
		pct := g.RiskPercentage("acct")
		assert.GreaterOrEqual(t, pct, prev)
		prev = pct
	}
	for i := 0; i < 5; i++ {
		g.RecordError("acct", 500)
		pct := g.RiskPercentage("acct")
		assert.GreaterOrEqual(t, pct, prev)
		prev = pct
	}
	assert.LessOrEqual(t, prev, float64(100))
}

func TestUpdatePolicy(t *testing.T) {
	g, _ := newTestGuard(t, testPolicy())

	n := 7
	err := g.UpdatePolicy(PolicyOverrides{MaxSearchesPerHour: &n})
	require.NoError(t, err)
	assert.Equal(t, 7, g.Policy().MaxSearchesPerHour)

	// Invalid overrides are rejected and leave the policy untouched
	bad := -1
	err = g.UpdatePolicy(PolicyOverrides{MaxRequestsPerDay: &bad})
	assert.Error(t, err)
	assert.Equal(t, DefaultPolicy().MaxRequestsPerDay, g.Policy().MaxRequestsPerDay)
}

func TestListenerNotifications(t *testing.T) {
	var statsCalls, criticalCalls int
	var lastReason string

	g, _ := newTestGuard(t, testPolicy())
	g.AddListener(ListenerFuncs{
		OnStats:    func(key string, s SessionState) { statsCalls++ },
		OnCritical: func(key, reason string) { criticalCalls++; lastReason = reason },
	})

	g.RecordSuccess("acct", CategorySearch)
	assert.Equal(t, 1, statsCalls)
	assert.Equal(t, 0, criticalCalls)

	g.RecordError("acct", 458)
	assert.Equal(t, 1, criticalCalls)
	assert.Contains(t, lastReason, "458")
}
