package pricing

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"transfer-sniper/internal/market"
)

// PlayerPrice is one card's market price picture from a price guide
type PlayerPrice struct {
	PlayerID   int64     `json:"player_id"`
	LowestBIN  int       `json:"lowest_bin"`
	AverageBIN int       `json:"average_bin"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SuggestedMaxBuy is the buy ceiling that leaves room for the desired
// margin after the 5% sales tax, rounded to the platform price tick
func (p PlayerPrice) SuggestedMaxBuy(margin float64) int {
	if p.LowestBIN <= 0 {
		return 0
	}
	max := float64(p.LowestBIN) * 0.95 / (1 + margin)
	return market.RoundPrice(int(max))
}

// Source looks up the going rate for a player card
type Source interface {
	Price(ctx context.Context, playerID int64) (PlayerPrice, error)
}

// GuideConfig tunes the price-guide scraper
type GuideConfig struct {
	BaseURL      string
	Timeout      time.Duration
	RequestDelay time.Duration // minimum gap between guide requests
	CacheTTL     time.Duration
}

// DefaultGuideConfig keeps the guide traffic light: prices move slowly,
// so a generous cache and a polite request gap are fine.
func DefaultGuideConfig() GuideConfig {
	return GuideConfig{
		BaseURL:      "https://www.futbin.com",
		Timeout:      20 * time.Second,
		RequestDelay: 3 * time.Second,
		CacheTTL:     10 * time.Minute,
	}
}

// Guide scrapes a community price-guide site. It is deliberately
// independent of the market client and the guard: guide pages are a
// third-party site with its own politeness rules.
type Guide struct {
	client *http.Client
	cfg    GuideConfig

	mu      sync.Mutex
	cache   map[int64]PlayerPrice
	lastReq time.Time
}

// NewGuide builds a price-guide source
func NewGuide(cfg GuideConfig) *Guide {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGuideConfig().BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	return &Guide{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		cache:  make(map[int64]PlayerPrice),
	}
}

// Price returns the cached price when fresh, otherwise scrapes the
// guide page
func (g *Guide) Price(ctx context.Context, playerID int64) (PlayerPrice, error) {
	g.mu.Lock()
	cached, ok := g.cache[playerID]
	g.mu.Unlock()
	if ok && time.Since(cached.UpdatedAt) < g.cfg.CacheTTL {
		return cached, nil
	}

	price, err := g.fetch(ctx, playerID)
	if err != nil {
		if ok {
			// Stale beats nothing when the guide is flaky
			log.Printf("[Pricing] guide fetch failed, serving stale price for %d: %v", playerID, err)
			return cached, nil
		}
		return PlayerPrice{}, err
	}

	g.mu.Lock()
	g.cache[playerID] = price
	g.mu.Unlock()
	return price, nil
}

func (g *Guide) fetch(ctx context.Context, playerID int64) (PlayerPrice, error) {
	g.waitTurn(ctx)

	reqURL := fmt.Sprintf("%s/player/%d", g.cfg.BaseURL, playerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return PlayerPrice{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := g.client.Do(req)
	if err != nil {
		return PlayerPrice{}, fmt.Errorf("guide request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PlayerPrice{}, fmt.Errorf("guide returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return PlayerPrice{}, fmt.Errorf("failed to parse guide page: %w", err)
	}

	price := PlayerPrice{PlayerID: playerID, UpdatedAt: time.Now()}
	price.LowestBIN = parseCoins(doc.Find(".price-box .lowest-price").First().Text())
	price.AverageBIN = parseCoins(doc.Find(".price-box .average-price").First().Text())

	if price.LowestBIN == 0 {
		return PlayerPrice{}, fmt.Errorf("no price found for player %d", playerID)
	}
	return price, nil
}

// waitTurn enforces the polite gap between guide requests
func (g *Guide) waitTurn(ctx context.Context) {
	g.mu.Lock()
	elapsed := time.Since(g.lastReq)
	g.lastReq = time.Now()
	g.mu.Unlock()

	if g.cfg.RequestDelay > 0 && elapsed < g.cfg.RequestDelay {
		t := time.NewTimer(g.cfg.RequestDelay - elapsed)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
}

// parseCoins turns guide price text like "14,250" or "1.2M" into coins
func parseCoins(text string) int {
	text = strings.TrimSpace(text)
	if text == "" || text == "-" {
		return 0
	}
	text = strings.ReplaceAll(text, ",", "")

	multiplier := 1.0
	switch {
	case strings.HasSuffix(text, "M"):
		multiplier = 1_000_000
		text = strings.TrimSuffix(text, "M")
	case strings.HasSuffix(text, "K"):
		multiplier = 1_000
		text = strings.TrimSuffix(text, "K")
	}

	var value float64
	if _, err := fmt.Sscanf(text, "%f", &value); err != nil {
		return 0
	}
	return int(value * multiplier)
}
