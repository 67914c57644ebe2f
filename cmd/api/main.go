package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"transfer-sniper/internal/antiban"
	"transfer-sniper/internal/config"
	"transfer-sniper/internal/database"
	"transfer-sniper/internal/handlers"
	"transfer-sniper/internal/market"
	"transfer-sniper/internal/models"
	"transfer-sniper/internal/pricing"
	"transfer-sniper/internal/scheduler"
	"transfer-sniper/internal/sniper"
)

var (
	gormDB        *database.GormDB
	appConfig     *config.Config
	guard         *antiban.Guard
	fleet         *sniper.Manager
	appScheduler  *scheduler.Scheduler
	tradeRecorder *scheduler.TradeRecorder
)

func main() {
	// Load configuration
	configPath := getEnv("CONFIG_PATH", "config/sniper.yaml")
	var err error
	appConfig, err = config.LoadConfig(configPath)
	if err != nil {
		log.Printf("Warning: Failed to load config from %s: %v. Using defaults.", configPath, err)
		appConfig = config.DefaultConfig()
	} else {
		log.Printf("Loaded configuration from %s", configPath)
	}

	// Initialize database
	mysqlCfg := appConfig.Database.MySQL
	portStr := ""
	if mysqlCfg.Port > 0 {
		portStr = fmt.Sprintf("%d", mysqlCfg.Port)
	}

	gormDB, err = database.NewGormDB(
		getEnvOrConfig(mysqlCfg.Host, "DB_HOST", "mysql"),
		getEnvOrConfig(portStr, "DB_PORT", "3306"),
		getEnvOrConfig(mysqlCfg.User, "DB_USER", "sniper"),
		getEnvOrConfig(mysqlCfg.Password, "DB_PASSWORD", "sniper_pass"),
		getEnvOrConfig(mysqlCfg.Database, "DB_NAME", "transfer_sniper"),
	)
	if err != nil {
		log.Fatalf("Failed to connect to MySQL: %v", err)
	}
	defer gormDB.Close()

	if err := gormDB.InitSchema(); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	// Initialize the guard that governs every outbound market request
	policy := appConfig.AntiBan.ToPolicy()
	guard, err = antiban.NewGuard(policy)
	if err != nil {
		log.Fatalf("Invalid anti-ban policy: %v", err)
	}
	guard.AddListener(antiban.ListenerFuncs{
		OnCritical: func(key, reason string) {
			log.Printf("🛑 critical stop for %s: %s", key, reason)
			if err := gormDB.UpdateAccountStatus(key, models.AccountStatusStopped); err != nil {
				log.Printf("Failed to flag stopped account %s: %v", key, err)
			}
		},
	})
	log.Printf("Guard initialized: %d searches/h, %d purchases/h, %d requests/day",
		policy.MaxSearchesPerHour, policy.MaxPurchasesPerHour, policy.MaxRequestsPerDay)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Trade recorder persists buys and sells off the loop goroutines
	tradeRecorder = scheduler.NewTradeRecorder(gormDB)
	tradeRecorder.Start()
	defer tradeRecorder.Stop()

	// Fleet manager: one sniper per account, shared guard
	fleet = sniper.NewManager(guard, appConfig.Sniper.ToSniperConfig(), sniper.Callbacks{
		OnPurchase: tradeRecorder.RecordPurchase,
		OnSale: func(key string, earned, profit int) {
			tradeRecorder.RecordSale(key, earned)
		},
		OnError: func(key string, err error) {
			status := models.AccountStatusStopped
			if errors.Is(err, market.ErrTransferBanned) {
				status = models.AccountStatusBanned
			} else if errors.Is(err, market.ErrAuthExpired) {
				status = models.AccountStatusExpired
			}
			if dbErr := gormDB.UpdateAccountStatus(key, status); dbErr != nil {
				log.Printf("Failed to update account %s status: %v", key, dbErr)
			}
		},
	})

	registerAccounts(ctx)

	// Start maintenance jobs: settle/relist sweeps, keepalives, summary
	appScheduler = scheduler.NewScheduler(ctx, fleet, appConfig.Scheduler.ToSchedulerConfig())
	if err := appScheduler.Start(); err != nil {
		log.Printf("Warning: Failed to start scheduler: %v", err)
	}
	defer appScheduler.Stop()

	fleet.StartAll(ctx)
	defer fleet.StopAll()

	// Setup Gin router
	r := gin.Default()

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     appConfig.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
	}))

	r.GET("/health", healthCheck)

	priceGuide := pricing.NewGuide(appConfig.Pricing.ToGuideConfig())
	adminHandler := handlers.NewAdminHandler(ctx, gormDB, fleet, priceGuide)
	adminHandler.RegisterRoutes(r.Group("/api"))
	log.Println("Admin API routes registered at /api/*")

	port := getEnv("PORT", fmt.Sprintf("%d", appConfig.Server.Port))
	srv := &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		log.Printf("Server starting on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Shut the loops down cleanly on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

// registerAccounts loads accounts from config and database, creates
// their snipers and pushes their persisted targets
func registerAccounts(ctx context.Context) {
	clientCfg := appConfig.Market.ToClientConfig()

	// Config-file accounts are upserted into the database first so both
	// sources end up in one place
	for _, ac := range appConfig.Accounts {
		cookies, _ := json.Marshal(ac.Cookies)
		acct := &models.Account{
			Key:      ac.Key,
			Platform: ac.Platform,
			SID:      ac.SID,
			Cookies:  string(cookies),
			Status:   models.AccountStatusActive,
		}
		if err := gormDB.SaveAccount(acct); err != nil {
			log.Printf("Warning: Failed to save account %s: %v", ac.Key, err)
		}
	}

	accounts, err := gormDB.GetTradableAccounts()
	if err != nil {
		log.Fatalf("Failed to load accounts: %v", err)
	}
	if len(accounts) == 0 {
		log.Println("No tradable accounts configured; admin API only")
		return
	}

	for _, acct := range accounts {
		cookies := map[string]string{}
		if acct.Cookies != "" {
			if err := json.Unmarshal([]byte(acct.Cookies), &cookies); err != nil {
				log.Printf("Warning: Bad cookie blob for %s: %v", acct.Key, err)
			}
		}

		creds := market.Credentials{
			Cookies:  cookies,
			SID:      acct.SID,
			Platform: acct.Platform,
		}
		sn, err := fleet.AddAccount(acct.Key, creds, clientCfg)
		if err != nil {
			log.Printf("Warning: Failed to register account %s: %v", acct.Key, err)
			continue
		}

		targets, err := gormDB.GetTargets(acct.Key)
		if err != nil {
			log.Printf("Warning: Failed to load targets for %s: %v", acct.Key, err)
			continue
		}
		for i := range targets {
			sn.AddTarget(handlers.TargetFromModel(&targets[i]))
		}
		log.Printf("Account %s ready with %d targets", acct.Key, len(targets))
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now(),
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrConfig returns config value if set, otherwise falls back to environment variable, then default
func getEnvOrConfig(configValue, envKey, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	return getEnv(envKey, defaultValue)
}
