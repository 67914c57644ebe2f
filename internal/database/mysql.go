package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"transfer-sniper/internal/models"
)

type GormDB struct {
	db *gorm.DB
}

func NewGormDB(host, port, user, password, dbname string) (*GormDB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbname)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	return &GormDB{db: db}, nil
}

// NewGormDBFromDB creates a GormDB wrapper from an existing gorm.DB instance
func NewGormDBFromDB(db *gorm.DB) *GormDB {
	return &GormDB{db: db}
}

// DB returns the underlying gorm.DB instance
func (gdb *GormDB) DB() *gorm.DB {
	return gdb.db
}

func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InitSchema creates tables using GORM AutoMigrate
func (gdb *GormDB) InitSchema() error {
	return gdb.db.AutoMigrate(
		&models.Account{},
		&models.Target{},
		&models.Trade{},
	)
}

// SaveAccount upserts an account by key
func (gdb *GormDB) SaveAccount(a *models.Account) error {
	var existing models.Account
	result := gdb.db.Where("`key` = ?", a.Key).First(&existing)

	if result.Error == gorm.ErrRecordNotFound {
		if a.Status == "" {
			a.Status = models.AccountStatusActive
		}
		return gdb.db.Create(a).Error
	} else if result.Error != nil {
		return result.Error
	}

	// Keep original CreatedAt on update
	a.CreatedAt = existing.CreatedAt
	return gdb.db.Save(a).Error
}

// GetAccounts retrieves all accounts
func (gdb *GormDB) GetAccounts() ([]models.Account, error) {
	var accounts []models.Account
	err := gdb.db.Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}

// GetTradableAccounts retrieves accounts allowed to run a sniper loop
func (gdb *GormDB) GetTradableAccounts() ([]models.Account, error) {
	var accounts []models.Account
	err := gdb.db.Where("status = ?", models.AccountStatusActive).Find(&accounts).Error
	return accounts, err
}

// GetAccount retrieves one account by key
func (gdb *GormDB) GetAccount(key string) (*models.Account, error) {
	var account models.Account
	if err := gdb.db.Where("`key` = ?", key).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// UpdateAccountStatus sets an account's lifecycle state
func (gdb *GormDB) UpdateAccountStatus(key string, status models.AccountStatus) error {
	updates := map[string]interface{}{"status": status}
	if status == models.AccountStatusBanned {
		now := time.Now()
		updates["banned_at"] = &now
	}
	return gdb.db.Model(&models.Account{}).Where("`key` = ?", key).Updates(updates).Error
}

// TouchAccount records account activity
func (gdb *GormDB) TouchAccount(key string) error {
	now := time.Now()
	return gdb.db.Model(&models.Account{}).Where("`key` = ?", key).
		Update("last_seen_at", &now).Error
}

// SaveTarget creates or updates a snipe target
func (gdb *GormDB) SaveTarget(t *models.Target) error {
	return gdb.db.Save(t).Error
}

// GetTargets retrieves an account's targets, highest priority first
func (gdb *GormDB) GetTargets(accountKey string) ([]models.Target, error) {
	var targets []models.Target
	err := gdb.db.Where("account_key = ?", accountKey).
		Order("priority DESC").Find(&targets).Error
	return targets, err
}

// DeleteTarget removes a target by id
func (gdb *GormDB) DeleteTarget(id uint) error {
	return gdb.db.Delete(&models.Target{}, id).Error
}

// SetTargetEnabled toggles a target without deleting its history
func (gdb *GormDB) SetTargetEnabled(id uint, enabled bool) error {
	return gdb.db.Model(&models.Target{}).Where("id = ?", id).
		Update("enabled", enabled).Error
}

// RecordTrade appends one trade to the audit trail
func (gdb *GormDB) RecordTrade(t *models.Trade) error {
	return gdb.db.Create(t).Error
}

// GetTrades retrieves an account's most recent trades
func (gdb *GormDB) GetTrades(accountKey string, limit int) ([]models.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	var trades []models.Trade
	err := gdb.db.Where("account_key = ?", accountKey).
		Order("created_at DESC").Limit(limit).Find(&trades).Error
	return trades, err
}

// ProfitSummary sums coins spent and earned for one account
func (gdb *GormDB) ProfitSummary(accountKey string) (spent, earned int, err error) {
	type row struct {
		Side  models.TradeSide
		Total int
	}
	var rows []row
	err = gdb.db.Model(&models.Trade{}).
		Select("side, COALESCE(SUM(price), 0) AS total").
		Where("account_key = ?", accountKey).
		Group("side").Scan(&rows).Error
	if err != nil {
		return 0, 0, err
	}
	for _, r := range rows {
		switch r.Side {
		case models.TradeSideBuy:
			spent = r.Total
		case models.TradeSideSell:
			earned = r.Total
		}
	}
	return spent, earned, nil
}
