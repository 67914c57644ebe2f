package sniper

import (
	"sort"

	"transfer-sniper/internal/market"
)

// SnipeTarget is one card the sniper hunts for
type SnipeTarget struct {
	Name        string              `json:"name" yaml:"name"`
	Filter      market.SearchFilter `json:"filter" yaml:"filter"`
	MaxBuyPrice int                 `json:"max_buy_price" yaml:"max_buy_price"`

	// SellPrice of 0 means derive from the buy price and markup
	SellPrice int  `json:"sell_price,omitempty" yaml:"sell_price"`
	Enabled   bool `json:"enabled" yaml:"enabled"`
	Priority  int  `json:"priority" yaml:"priority"` // higher runs first

	// Per-target counters
	Searches int `json:"searches"`
	Found    int `json:"found"`
	Bought   int `json:"bought"`
}

// sortTargets orders targets by descending priority
func sortTargets(targets []*SnipeTarget) {
	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].Priority > targets[j].Priority
	})
}
