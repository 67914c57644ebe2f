package antiban

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"
)

// Guard is the admission controller: every outbound marketplace request
// asks it first, obeys the verdict, performs the call, then reports the
// outcome back via RecordSuccess/RecordError.
//
// Guard owns all mutation of session state; callers in other goroutines
// (account loops, admin handlers) must go through its methods.
type Guard struct {
	mu     sync.Mutex
	policy Policy
	store  *Store

	// Process-wide pause shared by every account, cleared lazily once
	// the expiry passes
	globalPause      bool
	globalPauseUntil time.Time

	listeners []Listener

	// Injected for tests; defaults to wall clock and math/rand
	now   func() time.Time
	randn func(n int64) int64
}

// NewGuard builds an admission controller for the given policy.
// Listeners receive stats-updated and critical-stop notifications.
func NewGuard(policy Policy, listeners ...Listener) (*Guard, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid anti-ban policy: %w", err)
	}

	return &Guard{
		policy:    policy,
		store:     NewStore(),
		listeners: listeners,
		now:       time.Now,
		randn:     rand.Int63n,
	}, nil
}

// AddListener registers an additional notification listener
func (g *Guard) AddListener(l Listener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, l)
}

// Decide returns the verdict for performing one operation of the given
// category right now. It never increments usage counters; that happens
// in RecordSuccess/RecordError after the operation ran.
func (g *Guard) Decide(accountKey string, category Category) Decision {
	g.mu.Lock()
	now := g.now()

	// 1. Night mode is an unconditional curfew, independent of account state
	if g.policy.NightMode && inHourRange(now.Hour(), g.policy.NightStartHour, g.policy.NightEndHour) {
		state := g.ensureLocked(accountKey, now)
		d := Decision{Action: ActionStop, Reason: "night mode active", Risk: state.RiskLevel, State: snapOf(state)}
		g.mu.Unlock()
		return d
	}

	// 2. Global pause halts all accounts at once
	if g.globalPause {
		if now.Before(g.globalPauseUntil) {
			state := g.ensureLocked(accountKey, now)
			d := Decision{
				Action: ActionPause,
				Wait:   g.globalPauseUntil.Sub(now),
				Reason: "global pause active",
				Risk:   state.RiskLevel,
				State:  snapOf(state),
			}
			g.mu.Unlock()
			return d
		}
		g.globalPause = false
	}

	state := g.ensureLocked(accountKey, now)
	state.rolloverIfDue(now)

	// 3. Error streak at the limit: hard stop until an operator intervenes
	if state.ConsecutiveErrors >= g.policy.MaxConsecutiveErrors {
		state.RiskLevel = RiskCritical
		d := Decision{
			Action: ActionStop,
			Reason: fmt.Sprintf("%d consecutive errors", state.ConsecutiveErrors),
			Risk:   RiskCritical,
			State:  snapOf(state),
		}
		g.mu.Unlock()
		return d
	}

	// 4. Session ran long enough; rest before the next one
	if now.Sub(state.StartedAt) >= g.policy.SessionDuration {
		// The rest starts a fresh session
		state.StartedAt = now
		d := Decision{
			Action: ActionPause,
			Wait:   g.policy.PauseBetweenSessions,
			Reason: "session duration exceeded",
			Risk:   RiskMedium,
			State:  snapOf(state),
		}
		g.mu.Unlock()
		return d
	}

	// 5. Quotas: daily total, hourly total, then the category's own cap
	if state.RequestsToday >= g.policy.MaxRequestsPerDay {
		// Daily breach is a hard stop until the day rolls; no wait computed
		state.RiskLevel = RiskCritical
		d := Decision{
			Action: ActionPause,
			Reason: fmt.Sprintf("daily request limit reached (%d/%d)", state.RequestsToday, g.policy.MaxRequestsPerDay),
			Risk:   RiskCritical,
			State:  snapOf(state),
		}
		g.mu.Unlock()
		return d
	}
	if state.RequestsThisHour >= g.policy.MaxRequestsPerHour {
		d := g.hourlyPauseLocked(state, now,
			fmt.Sprintf("hourly request limit reached (%d/%d)", state.RequestsThisHour, g.policy.MaxRequestsPerHour))
		g.mu.Unlock()
		return d
	}
	switch category {
	case CategorySearch:
		if state.SearchesThisHour >= g.policy.MaxSearchesPerHour {
			d := g.hourlyPauseLocked(state, now,
				fmt.Sprintf("search limit reached (%d/%d)", state.SearchesThisHour, g.policy.MaxSearchesPerHour))
			g.mu.Unlock()
			return d
		}
	case CategoryPurchase:
		if state.PurchasesThisHr >= g.policy.MaxPurchasesPerHour {
			d := g.hourlyPauseLocked(state, now,
				fmt.Sprintf("purchase limit reached (%d/%d)", state.PurchasesThisHr, g.policy.MaxPurchasesPerHour))
			g.mu.Unlock()
			return d
		}
	}

	// 6. Cycle pause: a run of searches earns a forced break even when
	// quotas still have headroom
	if category == CategorySearch && state.SearchesSinceLastPause >= g.policy.PauseAfterSearches {
		count := state.SearchesSinceLastPause
		state.SearchesSinceLastPause = 0
		g.policy.recomputeRisk(state)
		d := Decision{
			Action: ActionPause,
			Wait:   g.randRange(g.policy.CyclePause),
			Reason: fmt.Sprintf("cycle pause after %d searches", count),
			Risk:   state.RiskLevel,
			State:  snapOf(state),
		}
		g.mu.Unlock()
		return d
	}

	// 7. Plain pacing delay
	g.policy.recomputeRisk(state)
	wait := g.delayLocked(state, category, now)
	d := Decision{Action: ActionDelay, Wait: wait, Risk: state.RiskLevel, State: snapOf(state)}
	if wait == 0 {
		d.Action = ActionProceed
	}
	g.mu.Unlock()
	return d
}

// hourlyPauseLocked builds the quota-exhausted verdict: pause until the
// top of the wall-clock hour, where the window rollover will zero the
// counters. The minute-of-hour approximation ignores seconds on purpose.
func (g *Guard) hourlyPauseLocked(state *SessionState, now time.Time, reason string) Decision {
	return Decision{
		Action: ActionPause,
		Wait:   time.Duration(60-now.Minute()) * time.Minute,
		Reason: reason,
		Risk:   RiskHigh,
		State:  snapOf(state),
	}
}

// delayLocked computes the pacing wait for one request. If the caller's
// natural latency already covered the category floor, no extra wait is
// added; otherwise a random target in [min,max] scaled by the risk
// multiplier, minus time already elapsed.
func (g *Guard) delayLocked(state *SessionState, category Category, now time.Time) time.Duration {
	r := g.policy.delayRange(category)

	if state.LastRequestAt == nil {
		return 0
	}
	elapsed := now.Sub(*state.LastRequestAt)
	if elapsed >= r.Min {
		return 0
	}

	target := r.Min
	if span := int64(r.Max - r.Min); span > 0 {
		target += time.Duration(g.randn(span + 1))
	}
	target = time.Duration(float64(target) * state.RiskLevel.delayMultiplier())

	wait := target - elapsed
	if wait < 0 {
		wait = 0
	}
	return wait
}

// RecordSuccess reports a completed operation. Any success clears the
// consecutive-error streak, regardless of category.
func (g *Guard) RecordSuccess(accountKey string, category Category) {
	g.mu.Lock()
	now := g.now()
	state := g.ensureLocked(accountKey, now)
	state.rolloverIfDue(now)

	state.RequestsThisHour++
	state.RequestsToday++
	t := now
	state.LastRequestAt = &t

	switch category {
	case CategorySearch:
		state.SearchesThisHour++
		state.SearchesSinceLastPause++
		state.LastSearchAt = &t
	case CategoryPurchase:
		state.PurchasesThisHr++
		state.LastPurchaseAt = &t
	}

	state.ConsecutiveErrors = 0
	g.policy.recomputeRisk(state)
	snap := state.snapshot()
	g.mu.Unlock()

	g.notifyStats(accountKey, snap)
}

// RecordError reports a failed operation and returns what to do next.
// Forced-stop status codes bypass the consecutive-error threshold.
func (g *Guard) RecordError(accountKey string, status int) Decision {
	g.mu.Lock()
	now := g.now()
	state := g.ensureLocked(accountKey, now)
	state.rolloverIfDue(now)

	state.ErrorsThisHour++
	state.ConsecutiveErrors++

	if g.policy.isStopStatus(status) {
		state.RiskLevel = RiskCritical
		reason := fmt.Sprintf("forced stop: status %d", status)
		d := Decision{Action: ActionStop, Reason: reason, Risk: RiskCritical, State: snapOf(state)}
		snap := state.snapshot()
		g.mu.Unlock()

		log.Printf("[Guard] 🚨 %s: %s", accountKey, reason)
		g.notifyCritical(accountKey, reason)
		g.notifyStats(accountKey, snap)
		return d
	}

	if state.ConsecutiveErrors >= g.policy.MaxConsecutiveErrors {
		state.RiskLevel = RiskCritical
		reason := fmt.Sprintf("%d consecutive errors", state.ConsecutiveErrors)
		d := Decision{Action: ActionStop, Reason: reason, Risk: RiskCritical, State: snapOf(state)}
		snap := state.snapshot()
		g.mu.Unlock()

		log.Printf("[Guard] 🚨 %s: %s", accountKey, reason)
		g.notifyCritical(accountKey, reason)
		g.notifyStats(accountKey, snap)
		return d
	}

	g.policy.recomputeRisk(state)

	// Linear backoff capped at one minute
	wait := time.Duration(state.ConsecutiveErrors) * 10 * time.Second
	if wait > time.Minute {
		wait = time.Minute
	}
	d := Decision{
		Action: ActionPause,
		Wait:   wait,
		Reason: fmt.Sprintf("backing off after %d consecutive errors", state.ConsecutiveErrors),
		Risk:   state.RiskLevel,
		State:  snapOf(state),
	}
	snap := state.snapshot()
	g.mu.Unlock()

	g.notifyStats(accountKey, snap)
	return d
}

// ForcePause halts every account until now+d. Used for platform-wide
// signals like a 429 seen on any account.
func (g *Guard) ForcePause(d time.Duration) {
	g.mu.Lock()
	g.globalPause = true
	g.globalPauseUntil = g.now().Add(d)
	until := g.globalPauseUntil
	g.mu.Unlock()

	log.Printf("[Guard] ⏸️  Global pause until %s", until.Format("15:04:05"))
}

// Resume clears a global pause early
func (g *Guard) Resume() {
	g.mu.Lock()
	g.globalPause = false
	g.mu.Unlock()

	log.Printf("[Guard] ▶️  Global pause cleared")
}

// GloballyPaused reports whether a global pause is in effect
func (g *Guard) GloballyPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.globalPause && g.now().Before(g.globalPauseUntil)
}

// InitSession creates (or resets) the account's session state
func (g *Guard) InitSession(accountKey string) SessionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.Init(accountKey, g.now()).snapshot()
}

// RemoveSession drops the account's state on removal/deauthorization
func (g *Guard) RemoveSession(accountKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.store.Remove(accountKey)
}

// Session returns a copy of the account's state, if it exists
func (g *Guard) Session(accountKey string) (SessionState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state := g.store.sessions[accountKey]
	if state == nil {
		return SessionState{}, false
	}
	state.rolloverIfDue(g.now())
	return state.snapshot(), true
}

// Sessions returns copies of all live session states
func (g *Guard) Sessions() []SessionState {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	out := make([]SessionState, 0, len(g.store.sessions))
	for _, s := range g.store.sessions {
		s.rolloverIfDue(now)
		out = append(out, s.snapshot())
	}
	return out
}

// RiskPercentage returns the account's current risk score in [0,100]
func (g *Guard) RiskPercentage(accountKey string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	state := g.store.sessions[accountKey]
	if state == nil {
		return 0
	}
	state.rolloverIfDue(g.now())
	return g.policy.riskPercentage(state)
}

// Policy returns a copy of the active policy
func (g *Guard) Policy() Policy {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.policy
}

// UpdatePolicy merges partial overrides into the active policy, e.g. an
// operator tightening limits at runtime
func (g *Guard) UpdatePolicy(o PolicyOverrides) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	updated := g.policy
	o.apply(&updated)
	if err := updated.Validate(); err != nil {
		return fmt.Errorf("invalid policy override: %w", err)
	}

	g.policy = updated
	log.Printf("[Guard] Policy updated: searches=%d/hr purchases=%d/hr requests=%d/hr %d/day",
		updated.MaxSearchesPerHour, updated.MaxPurchasesPerHour,
		updated.MaxRequestsPerHour, updated.MaxRequestsPerDay)
	return nil
}

// ensureLocked fetches the account's state, lazily initializing a fresh
// session so a missing session never fails the caller's loop
func (g *Guard) ensureLocked(accountKey string, now time.Time) *SessionState {
	if state := g.store.sessions[accountKey]; state != nil {
		return state
	}
	return g.store.Init(accountKey, now)
}

// snapOf copies the session so decisions never alias live state
func snapOf(s *SessionState) *SessionState {
	c := s.snapshot()
	return &c
}

// randRange draws a uniform duration from [r.Min, r.Max]
func (g *Guard) randRange(r DelayRange) time.Duration {
	span := int64(r.Max - r.Min)
	if span <= 0 {
		return r.Min
	}
	return r.Min + time.Duration(g.randn(span+1))
}
