package sniper

import "time"

// Stats accumulates one account's trading results for the current run
type Stats struct {
	StartedAt       *time.Time `json:"started_at,omitempty"`
	TotalSearches   int        `json:"total_searches"`
	TotalPurchases  int        `json:"total_purchases"`
	TotalSales      int        `json:"total_sales"`
	TotalSpent      int        `json:"total_spent"`
	TotalEarned     int        `json:"total_earned"`
	FailedPurchases int        `json:"failed_purchases"`
}

// Profit is coins earned minus coins spent
func (s Stats) Profit() int {
	return s.TotalEarned - s.TotalSpent
}

// ROI is profit relative to spend, as a percentage
func (s Stats) ROI() float64 {
	if s.TotalSpent == 0 {
		return 0
	}
	return float64(s.Profit()) / float64(s.TotalSpent) * 100
}
