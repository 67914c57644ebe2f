package antiban

import "time"

// Action is the verdict returned for an admission request
type Action string

const (
	ActionProceed Action = "proceed"
	ActionDelay   Action = "delay"
	ActionPause   Action = "pause"
	ActionStop    Action = "stop"
)

// RiskLevel is a coarse bucket derived from usage percentage plus error penalty
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// delayMultiplier scales base delays as risk rises, so pacing tightens
// without a separate escalation path
func (r RiskLevel) delayMultiplier() float64 {
	switch r {
	case RiskMedium:
		return 1.5
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 1
	}
}

// Decision tells the caller what to do before (or after) an operation.
// Policy violations are never errors; they come back as decisions with a
// readable reason.
type Decision struct {
	Action Action        `json:"action"`
	Wait   time.Duration `json:"wait"`
	Reason string        `json:"reason,omitempty"`
	Risk   RiskLevel     `json:"risk"`

	// State is a copy of the session the decision was made against
	State *SessionState `json:"-"`
}

// OK reports whether the caller may perform the operation now
func (d Decision) OK() bool {
	return d.Action == ActionProceed || (d.Action == ActionDelay && d.Wait == 0)
}
