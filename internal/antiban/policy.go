package antiban

import (
	"fmt"
	"time"
)

// Category classifies outbound requests for delay/quota selection
type Category string

const (
	CategorySearch   Category = "search"
	CategoryPurchase Category = "purchase"
	CategoryAction   Category = "action"
)

// DelayRange is a min/max bound for randomized waits
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// Policy holds the anti-ban limits applied to every account.
// Loaded once at startup; runtime changes go through Guard.UpdatePolicy.
type Policy struct {
	// Delay ranges between requests, per category
	SearchDelay   DelayRange
	PurchaseDelay DelayRange
	ActionDelay   DelayRange

	// Hourly quotas
	MaxSearchesPerHour  int
	MaxPurchasesPerHour int
	MaxRequestsPerHour  int

	// Daily quota
	MaxRequestsPerDay int

	// Session length cap and the mandatory rest between sessions
	SessionDuration      time.Duration
	PauseBetweenSessions time.Duration

	// Cycle pause: after this many searches without a break, force a
	// random pause drawn from CyclePause
	PauseAfterSearches int
	CyclePause         DelayRange

	// Night mode: refuse all operations in [NightStartHour, NightEndHour)
	// local time. Supports wrap-around (e.g. 22 -> 6).
	NightMode      bool
	NightStartHour int
	NightEndHour   int

	// HTTP status codes that force an immediate stop (captcha, market ban)
	StopStatusCodes []int

	// Consecutive operation failures before a forced stop
	MaxConsecutiveErrors int

	// Risk percentage thresholds for bucketing into medium/high/critical
	MediumRiskThreshold   float64
	HighRiskThreshold     float64
	CriticalRiskThreshold float64
}

// DefaultPolicy returns conservative limits tuned against market-side
// bot detection
func DefaultPolicy() Policy {
	return Policy{
		SearchDelay:   DelayRange{Min: 3 * time.Second, Max: 8 * time.Second},
		PurchaseDelay: DelayRange{Min: 200 * time.Millisecond, Max: 800 * time.Millisecond},
		ActionDelay:   DelayRange{Min: 1 * time.Second, Max: 3 * time.Second},

		MaxSearchesPerHour:  500,
		MaxPurchasesPerHour: 60,
		MaxRequestsPerHour:  800,
		MaxRequestsPerDay:   5000,

		SessionDuration:      2 * time.Hour,
		PauseBetweenSessions: 30 * time.Minute,

		PauseAfterSearches: 50,
		CyclePause:         DelayRange{Min: 2 * time.Minute, Max: 5 * time.Minute},

		NightMode:      true,
		NightStartHour: 2,
		NightEndHour:   6,

		StopStatusCodes:      []int{426, 429, 458},
		MaxConsecutiveErrors: 5,

		MediumRiskThreshold:   30,
		HighRiskThreshold:     60,
		CriticalRiskThreshold: 85,
	}
}

// Validate checks invariants: ranges satisfy min <= max, quotas are
// positive, night-mode hours are in [0,24)
func (p *Policy) Validate() error {
	ranges := map[string]DelayRange{
		"search_delay":   p.SearchDelay,
		"purchase_delay": p.PurchaseDelay,
		"action_delay":   p.ActionDelay,
		"cycle_pause":    p.CyclePause,
	}
	for name, r := range ranges {
		if r.Min < 0 || r.Max < r.Min {
			return fmt.Errorf("invalid %s range: min=%v max=%v", name, r.Min, r.Max)
		}
	}

	quotas := map[string]int{
		"max_searches_per_hour":  p.MaxSearchesPerHour,
		"max_purchases_per_hour": p.MaxPurchasesPerHour,
		"max_requests_per_hour":  p.MaxRequestsPerHour,
		"max_requests_per_day":   p.MaxRequestsPerDay,
		"pause_after_searches":   p.PauseAfterSearches,
		"max_consecutive_errors": p.MaxConsecutiveErrors,
	}
	for name, q := range quotas {
		if q <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, q)
		}
	}

	if p.NightStartHour < 0 || p.NightStartHour >= 24 {
		return fmt.Errorf("night_start_hour out of range: %d", p.NightStartHour)
	}
	if p.NightEndHour < 0 || p.NightEndHour >= 24 {
		return fmt.Errorf("night_end_hour out of range: %d", p.NightEndHour)
	}

	if p.SessionDuration <= 0 || p.PauseBetweenSessions <= 0 {
		return fmt.Errorf("session durations must be positive")
	}

	if !(p.MediumRiskThreshold < p.HighRiskThreshold && p.HighRiskThreshold < p.CriticalRiskThreshold) {
		return fmt.Errorf("risk thresholds must be strictly increasing: %.0f/%.0f/%.0f",
			p.MediumRiskThreshold, p.HighRiskThreshold, p.CriticalRiskThreshold)
	}

	return nil
}

// delayRange selects the base delay range for a category
func (p *Policy) delayRange(category Category) DelayRange {
	switch category {
	case CategorySearch:
		return p.SearchDelay
	case CategoryPurchase:
		return p.PurchaseDelay
	default:
		return p.ActionDelay
	}
}

// isStopStatus reports whether the HTTP status is in the forced-stop list
func (p *Policy) isStopStatus(status int) bool {
	for _, code := range p.StopStatusCodes {
		if code == status {
			return true
		}
	}
	return false
}

// PolicyOverrides carries a partial policy update. Nil fields keep the
// current value.
type PolicyOverrides struct {
	MaxSearchesPerHour   *int  `json:"max_searches_per_hour,omitempty"`
	MaxPurchasesPerHour  *int  `json:"max_purchases_per_hour,omitempty"`
	MaxRequestsPerHour   *int  `json:"max_requests_per_hour,omitempty"`
	MaxRequestsPerDay    *int  `json:"max_requests_per_day,omitempty"`
	PauseAfterSearches   *int  `json:"pause_after_searches,omitempty"`
	MaxConsecutiveErrors *int  `json:"max_consecutive_errors,omitempty"`
	NightMode            *bool `json:"night_mode,omitempty"`
	NightStartHour       *int  `json:"night_start_hour,omitempty"`
	NightEndHour         *int  `json:"night_end_hour,omitempty"`
}

// apply merges the overrides into p
func (o *PolicyOverrides) apply(p *Policy) {
	if o.MaxSearchesPerHour != nil {
		p.MaxSearchesPerHour = *o.MaxSearchesPerHour
	}
	if o.MaxPurchasesPerHour != nil {
		p.MaxPurchasesPerHour = *o.MaxPurchasesPerHour
	}
	if o.MaxRequestsPerHour != nil {
		p.MaxRequestsPerHour = *o.MaxRequestsPerHour
	}
	if o.MaxRequestsPerDay != nil {
		p.MaxRequestsPerDay = *o.MaxRequestsPerDay
	}
	if o.PauseAfterSearches != nil {
		p.PauseAfterSearches = *o.PauseAfterSearches
	}
	if o.MaxConsecutiveErrors != nil {
		p.MaxConsecutiveErrors = *o.MaxConsecutiveErrors
	}
	if o.NightMode != nil {
		p.NightMode = *o.NightMode
	}
	if o.NightStartHour != nil {
		p.NightStartHour = *o.NightStartHour
	}
	if o.NightEndHour != nil {
		p.NightEndHour = *o.NightEndHour
	}
}

// inHourRange reports whether hour h falls in [start, end), supporting
// wrap-around past midnight
func inHourRange(h, start, end int) bool {
	start = ((start % 24) + 24) % 24
	end = ((end % 24) + 24) % 24
	h = ((h % 24) + 24) % 24

	if start < end {
		return h >= start && h < end
	}
	// wrap
	return h >= start || h < end
}
