package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"transfer-sniper/internal/sniper"
)

// Config sets the maintenance job intervals
type Config struct {
	SettleInterval    time.Duration `yaml:"settle_interval"`    // clear sold / relist sweep
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"` // session refresh ping
	SummaryTime       string        `yaml:"summary_time"`       // HH:MM for the daily summary log
}

// DefaultConfig returns sensible maintenance intervals
func DefaultConfig() Config {
	return Config{
		SettleInterval:    5 * time.Minute,
		KeepaliveInterval: 10 * time.Minute,
		SummaryTime:       "08:00",
	}
}

// Scheduler runs periodic fleet maintenance: settling sales, relisting
// expired auctions, keeping sessions alive and a daily profit summary
type Scheduler struct {
	cron      *cron.Cron
	manager   *sniper.Manager
	config    Config
	ctx       context.Context
	isRunning bool
}

// NewScheduler creates a new scheduler around the fleet manager
func NewScheduler(ctx context.Context, mgr *sniper.Manager, cfg Config) *Scheduler {
	if cfg.SettleInterval <= 0 {
		cfg.SettleInterval = 5 * time.Minute
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 10 * time.Minute
	}
	return &Scheduler{
		cron:    cron.New(),
		manager: mgr,
		config:  cfg,
		ctx:     ctx,
	}
}

// Start registers and starts the maintenance jobs
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(everySpec(s.config.SettleInterval), func() {
		log.Println("Scheduler: Running settle/relist sweep...")
		s.manager.SettleAll(s.ctx)
	})
	if err != nil {
		return err
	}

	_, err = s.cron.AddFunc(everySpec(s.config.KeepaliveInterval), func() {
		s.manager.KeepaliveAll(s.ctx)
	})
	if err != nil {
		return err
	}

	_, err = s.cron.AddFunc(parseDailyTime(s.config.SummaryTime), s.logDailySummary)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.isRunning = true
	log.Printf("Scheduler: Started (settle every %v, keepalive every %v, summary at %s)",
		s.config.SettleInterval, s.config.KeepaliveInterval, s.config.SummaryTime)

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	if s.isRunning {
		s.cron.Stop()
		s.isRunning = false
		log.Println("Scheduler: Stopped")
	}
}

// RunSettleNow immediately runs the settle/relist sweep (manual trigger)
func (s *Scheduler) RunSettleNow() {
	log.Println("Scheduler: Manual trigger - running settle/relist sweep...")
	s.manager.SettleAll(s.ctx)
}

// logDailySummary prints each account's running totals
func (s *Scheduler) logDailySummary() {
	for _, st := range s.manager.Status() {
		stats := st.Stats
		log.Printf("Scheduler: 📊 %s: %d bought / %d sold, spent %d, earned %d, profit %d (risk %.0f%%)",
			st.AccountKey, stats.TotalPurchases, stats.TotalSales,
			stats.TotalSpent, stats.TotalEarned, stats.Profit(), st.Risk)
	}
}

// everySpec converts an interval into a cron @every spec
func everySpec(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

// parseDailyTime converts HH:MM format to cron specification
// Example: "08:00" -> "0 8 * * *" (run at 8:00 AM every day)
func parseDailyTime(timeStr string) string {
	var hour, minute int
	n, _ := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute)
	if n == 2 && hour >= 0 && hour < 24 && minute >= 0 && minute < 60 {
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}

	// Default to 8:00 AM if parsing fails
	log.Printf("Scheduler: Failed to parse time '%s', using default 08:00", timeStr)
	return "0 8 * * *"
}
