package models

import "time"

// Trade is one executed purchase or sale, the audit trail behind the
// profit numbers the admin API reports
type Trade struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AccountKey string    `gorm:"type:varchar(64);not null;index" json:"account_key"`
	Side       TradeSide `gorm:"type:varchar(10);not null;index" json:"side"`

	TradeID    int64  `gorm:"not null;default:0" json:"trade_id"` // marketplace auction id
	PlayerName string `gorm:"type:varchar(100)" json:"player_name,omitempty"`
	ResourceID int64  `gorm:"not null;default:0" json:"resource_id,omitempty"`
	Rating     int    `gorm:"not null;default:0" json:"rating,omitempty"`

	Price int `gorm:"not null" json:"price"` // coins paid or received

	CreatedAt time.Time `gorm:"type:datetime;not null;autoCreateTime;index:idx_trades_created,sort:desc" json:"created_at"`
}

// TradeSide distinguishes buys from sells
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// TableName specifies the table name
func (Trade) TableName() string {
	return "trades"
}
