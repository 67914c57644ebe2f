package antiban

import (
	"time"
)

// SessionState tracks one account's usage inside the current windows.
// One instance per account key, created on first use and removed on
// logout/deauthorization.
type SessionState struct {
	AccountKey string    `json:"account_key"`
	StartedAt  time.Time `json:"started_at"`

	// Rolling hour window
	HourStart        time.Time `json:"hour_start"`
	RequestsThisHour int       `json:"requests_this_hour"`
	SearchesThisHour int       `json:"searches_this_hour"`
	PurchasesThisHr  int       `json:"purchases_this_hour"`
	ErrorsThisHour   int       `json:"errors_this_hour"`

	// Rolling day window
	DayStart      time.Time `json:"day_start"`
	RequestsToday int       `json:"requests_today"`

	// Resets to 0 when a cycle pause is issued
	SearchesSinceLastPause int `json:"searches_since_last_pause"`

	// Resets to 0 on any successful operation
	ConsecutiveErrors int `json:"consecutive_errors"`

	LastRequestAt  *time.Time `json:"last_request_at,omitempty"`
	LastSearchAt   *time.Time `json:"last_search_at,omitempty"`
	LastPurchaseAt *time.Time `json:"last_purchase_at,omitempty"`

	RiskLevel RiskLevel `json:"risk_level"`
}

// rolloverIfDue advances the hour and day windows when their boundaries
// have been crossed. The two windows are checked independently on every
// call, so an account that was idle across a boundary gets exactly one
// bulk reset on its first use afterwards.
func (s *SessionState) rolloverIfDue(now time.Time) {
	if now.Sub(s.HourStart) >= time.Hour {
		s.RequestsThisHour = 0
		s.SearchesThisHour = 0
		s.PurchasesThisHr = 0
		s.ErrorsThisHour = 0
		s.HourStart = now
	}

	if now.Sub(s.DayStart) >= 24*time.Hour {
		s.RequestsToday = 0
		// Day window anchors at local midnight, not at the rollover moment
		s.DayStart = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	}
}

// snapshot returns a copy safe to hand to listeners outside the lock
func (s *SessionState) snapshot() SessionState {
	return *s
}

// Store holds per-account session state in memory. It does no locking
// of its own: the Guard owns it exclusively and serializes all access,
// since rollover is a read-then-write on counters.
type Store struct {
	sessions map[string]*SessionState
}

// NewStore creates an empty session store
func NewStore() *Store {
	return &Store{sessions: make(map[string]*SessionState)}
}

// Init creates fresh state for an account with all counters zeroed.
// Re-initializing an existing account overwrites its state.
func (st *Store) Init(accountKey string, now time.Time) *SessionState {
	state := &SessionState{
		AccountKey: accountKey,
		StartedAt:  now,
		HourStart:  now,
		DayStart:   now,
		RiskLevel:  RiskLow,
	}
	st.sessions[accountKey] = state
	return state
}

// Get returns the account's state, or nil if it was never initialized
func (st *Store) Get(accountKey string) *SessionState {
	return st.sessions[accountKey]
}

// Remove deletes the account's state; used on account removal or logout
func (st *Store) Remove(accountKey string) {
	delete(st.sessions, accountKey)
}

// Keys returns the account keys with live sessions
func (st *Store) Keys() []string {
	keys := make([]string, 0, len(st.sessions))
	for k := range st.sessions {
		keys = append(keys, k)
	}
	return keys
}
