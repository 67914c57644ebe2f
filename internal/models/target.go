package models

import "time"

// Target is a persisted snipe target. The filter is stored as the
// search parameters the marketplace accepts, so a row maps one-to-one
// onto a market search.
type Target struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	AccountKey string `gorm:"type:varchar(64);not null;index" json:"account_key"`
	Name       string `gorm:"type:varchar(100);not null" json:"name"`

	// Search filter
	PlayerID  int64  `gorm:"not null;default:0" json:"player_id"`
	Quality   string `gorm:"type:varchar(20)" json:"quality,omitempty"`
	Position  string `gorm:"type:varchar(10)" json:"position,omitempty"`
	Nation    int    `gorm:"not null;default:0" json:"nation,omitempty"`
	League    int    `gorm:"not null;default:0" json:"league,omitempty"`
	Club      int    `gorm:"not null;default:0" json:"club,omitempty"`
	MaxBuyNow int    `gorm:"not null" json:"max_buy_now"`

	// Trading parameters
	SellPrice int  `gorm:"not null;default:0" json:"sell_price"` // 0 derives from markup
	Priority  int  `gorm:"not null;default:0;index" json:"priority"`
	Enabled   bool `gorm:"not null;default:true" json:"enabled"`

	CreatedAt time.Time `gorm:"type:datetime;not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:datetime;not null;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (Target) TableName() string {
	return "targets"
}
