package models

import "time"

// Account is one trading account with its captured web-app session.
// Session acquisition happens outside this service; rows arrive with
// the SID and cookie blob already filled in.
type Account struct {
	Key      string `gorm:"type:varchar(64);primaryKey" json:"key"`
	Platform string `gorm:"type:varchar(10);not null;default:'pc'" json:"platform"`

	// Captured session material
	SID     string `gorm:"type:varchar(128)" json:"-"`
	Cookies string `gorm:"type:text" json:"-"` // JSON object of cookie name/value pairs

	Status   AccountStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	BannedAt *time.Time    `gorm:"type:datetime" json:"banned_at,omitempty"`

	LastSeenAt *time.Time `gorm:"type:datetime" json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `gorm:"type:datetime;not null;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"type:datetime;not null;autoUpdateTime" json:"updated_at"`
}

// AccountStatus is the account lifecycle state
type AccountStatus string

const (
	AccountStatusActive  AccountStatus = "active"
	AccountStatusStopped AccountStatus = "stopped"
	AccountStatusBanned  AccountStatus = "banned"
	AccountStatusExpired AccountStatus = "expired" // session needs refreshing
)

// TableName specifies the table name
func (Account) TableName() string {
	return "accounts"
}

// IsTradable reports whether this account may run a sniper loop
func (a *Account) IsTradable() bool {
	return a.Status == AccountStatusActive
}

// MarkBanned flags the account as transfer-banned
func (a *Account) MarkBanned() {
	a.Status = AccountStatusBanned
	now := time.Now()
	a.BannedAt = &now
}

// MarkExpired flags the session as needing a refresh
func (a *Account) MarkExpired() {
	a.Status = AccountStatusExpired
}

// Touch records account activity
func (a *Account) Touch() {
	now := time.Now()
	a.LastSeenAt = &now
}
