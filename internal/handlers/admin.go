package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"transfer-sniper/internal/antiban"
	"transfer-sniper/internal/database"
	"transfer-sniper/internal/market"
	"transfer-sniper/internal/models"
	"transfer-sniper/internal/pricing"
	"transfer-sniper/internal/sniper"
)

// AdminHandler exposes fleet control and monitoring endpoints
type AdminHandler struct {
	db      *database.GormDB
	manager *sniper.Manager
	prices  pricing.Source

	// Parent context for loops started via the API
	baseCtx context.Context
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(ctx context.Context, db *database.GormDB, mgr *sniper.Manager, prices pricing.Source) *AdminHandler {
	return &AdminHandler{
		db:      db,
		manager: mgr,
		prices:  prices,
		baseCtx: ctx,
	}
}

// RegisterRoutes mounts all admin endpoints on the given group
func (h *AdminHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/status", h.GetStatus)
	api.GET("/accounts/:key/session", h.GetSession)
	api.GET("/accounts/:key/trades", h.GetTrades)
	api.POST("/accounts/:key/start", h.StartAccount)
	api.POST("/accounts/:key/stop", h.StopAccount)

	api.POST("/pause", h.ForcePause)
	api.POST("/resume", h.Resume)

	api.GET("/policy", h.GetPolicy)
	api.PUT("/policy", h.UpdatePolicy)

	api.GET("/prices/:playerId", h.GetPrice)

	api.GET("/accounts/:key/targets", h.GetTargets)
	api.POST("/accounts/:key/targets", h.CreateTarget)
	api.DELETE("/targets/:id", h.DeleteTarget)
	api.PUT("/targets/:id/enabled", h.SetTargetEnabled)
}

// GetStatus returns every account's loop state, stats and risk view
func (h *AdminHandler) GetStatus(c *gin.Context) {
	guard := h.manager.Guard()

	c.JSON(http.StatusOK, gin.H{
		"globally_paused": guard.GloballyPaused(),
		"accounts":        h.manager.Status(),
	})
}

// GetSession returns the guard's raw session counters for one account
func (h *AdminHandler) GetSession(c *gin.Context) {
	key := c.Param("key")
	session, ok := h.manager.Guard().Session(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown account"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_key":     key,
		"session":         session,
		"risk_percentage": h.manager.Guard().RiskPercentage(key),
	})
}

// StartAccount launches one account's sniper loop
func (h *AdminHandler) StartAccount(c *gin.Context) {
	key := c.Param("key")
	if err := h.manager.StartAccount(h.baseCtx, key); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	log.Printf("[Admin] start requested for %s", key)
	c.JSON(http.StatusAccepted, gin.H{"account_key": key, "status": "starting"})
}

// StopAccount halts one account's sniper loop
func (h *AdminHandler) StopAccount(c *gin.Context) {
	key := c.Param("key")
	if err := h.manager.StopAccount(key); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	log.Printf("[Admin] stop requested for %s", key)
	c.JSON(http.StatusOK, gin.H{"account_key": key, "status": "stopped"})
}

// ForcePause pauses all trading across every account
func (h *AdminHandler) ForcePause(c *gin.Context) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Minutes <= 0 {
		req.Minutes = 15
	}

	d := time.Duration(req.Minutes) * time.Minute
	h.manager.Guard().ForcePause(d)
	log.Printf("[Admin] ⏸️ global pause for %v", d)

	c.JSON(http.StatusOK, gin.H{"paused_for_minutes": req.Minutes})
}

// Resume lifts a global pause
func (h *AdminHandler) Resume(c *gin.Context) {
	h.manager.Guard().Resume()
	log.Printf("[Admin] ▶️ global pause lifted")
	c.JSON(http.StatusOK, gin.H{"status": "resumed"})
}

// GetPolicy returns the active anti-ban policy
func (h *AdminHandler) GetPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.Guard().Policy())
}

// UpdatePolicy applies partial policy overrides at runtime
func (h *AdminHandler) UpdatePolicy(c *gin.Context) {
	var overrides antiban.PolicyOverrides
	if err := c.ShouldBindJSON(&overrides); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.manager.Guard().UpdatePolicy(overrides); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	log.Printf("[Admin] policy updated")
	c.JSON(http.StatusOK, h.manager.Guard().Policy())
}

// GetPrice looks up a player's going rate on the price guide and the
// buy ceiling it suggests for the requested margin
func (h *AdminHandler) GetPrice(c *gin.Context) {
	if h.prices == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "price guide not configured"})
		return
	}

	playerID, err := strconv.ParseInt(c.Param("playerId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
		return
	}

	margin := 0.10
	if m := c.Query("margin"); m != "" {
		if parsed, err := strconv.ParseFloat(m, 64); err == nil && parsed > 0 {
			margin = parsed
		}
	}

	price, err := h.prices.Price(c.Request.Context(), playerID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"price":             price,
		"margin":            margin,
		"suggested_max_buy": price.SuggestedMaxBuy(margin),
	})
}

// GetTargets lists one account's persisted targets
func (h *AdminHandler) GetTargets(c *gin.Context) {
	key := c.Param("key")
	targets, err := h.db.GetTargets(key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_key": key,
		"targets":     targets,
		"count":       len(targets),
	})
}

// CreateTarget persists a target and pushes it to the running sniper
func (h *AdminHandler) CreateTarget(c *gin.Context) {
	key := c.Param("key")

	var target models.Target
	if err := c.ShouldBindJSON(&target); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if target.Name == "" || target.MaxBuyNow <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and max_buy_now are required"})
		return
	}
	target.ID = 0
	target.AccountKey = key
	target.Enabled = true

	if err := h.db.SaveTarget(&target); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if sn, ok := h.manager.Account(key); ok {
		sn.AddTarget(TargetFromModel(&target))
	}

	c.JSON(http.StatusCreated, target)
}

// DeleteTarget removes a persisted target
func (h *AdminHandler) DeleteTarget(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target id"})
		return
	}

	if err := h.db.DeleteTarget(uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// SetTargetEnabled toggles a target on or off
func (h *AdminHandler) SetTargetEnabled(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target id"})
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.SetTargetEnabled(uint(id), req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "enabled": req.Enabled})
}

// GetTrades returns an account's recent trade history with totals
func (h *AdminHandler) GetTrades(c *gin.Context) {
	key := c.Param("key")
	limitStr := c.DefaultQuery("limit", "100")
	limit, _ := strconv.Atoi(limitStr)

	trades, err := h.db.GetTrades(key, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	spent, earned, err := h.db.ProfitSummary(key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_key": key,
		"trades":      trades,
		"count":       len(trades),
		"spent":       spent,
		"earned":      earned,
		"profit":      earned - spent,
	})
}

// TargetFromModel converts a persisted target row into the sniper's
// runtime target
func TargetFromModel(t *models.Target) *sniper.SnipeTarget {
	return &sniper.SnipeTarget{
		Name: t.Name,
		Filter: market.SearchFilter{
			PlayerID:  t.PlayerID,
			Quality:   t.Quality,
			Position:  t.Position,
			Nation:    t.Nation,
			League:    t.League,
			Club:      t.Club,
			MaxBuyNow: t.MaxBuyNow,
		},
		MaxBuyPrice: t.MaxBuyNow,
		SellPrice:   t.SellPrice,
		Enabled:     t.Enabled,
		Priority:    t.Priority,
	}
}
