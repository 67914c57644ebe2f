package sniper

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"transfer-sniper/internal/market"
)

// State of one account's sniper loop
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateError   State = "error"
)

// Config tunes one account's sniper behavior. Request pacing is not
// configured here; the guard owns all of that.
type Config struct {
	MaxPurchases   int `yaml:"max_purchases"`
	MaxActiveSales int `yaml:"max_active_sales"`
	MinCoinReserve int `yaml:"min_coin_reserve"`

	AutoSell     bool    `yaml:"auto_sell"`
	SellMarkup   float64 `yaml:"sell_markup"`   // 1.10 = 10% over buy price
	SellDuration int     `yaml:"sell_duration"` // auction length in seconds

	// Idle wait between sweeps that found nothing
	IdleInterval time.Duration `yaml:"-"`
}

// DefaultConfig mirrors a cautious flipping setup
func DefaultConfig() Config {
	return Config{
		MaxPurchases:   100,
		MaxActiveSales: 50,
		MinCoinReserve: 10000,
		AutoSell:       true,
		SellMarkup:     1.10,
		SellDuration:   market.DurationHour,
		IdleInterval:   5 * time.Second,
	}
}

// Callbacks let the owning layer (chat bot, admin UI) observe trades.
// All fields are optional and run synchronously on the loop goroutine.
type Callbacks struct {
	OnPurchase func(accountKey string, card market.Card, price int)
	OnSale     func(accountKey string, earned, profit int)
	OnError    func(accountKey string, err error)
}

// Sniper runs the search/buy/sell loop for a single account. All
// request pacing, quotas and stop conditions are enforced by the guard
// inside the market client; the loop just obeys the errors it gets back.
type Sniper struct {
	client *market.Client
	cfg    Config
	cb     Callbacks

	mu      sync.Mutex
	state   State
	stats   Stats
	targets []*SnipeTarget
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a sniper for one account's market client
func New(client *market.Client, cfg Config, cb Callbacks) *Sniper {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 5 * time.Second
	}
	return &Sniper{
		client: client,
		cfg:    cfg,
		cb:     cb,
		state:  StateStopped,
	}
}

// AddTarget registers a target; the list stays priority-ordered
func (s *Sniper) AddTarget(t *SnipeTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = append(s.targets, t)
	sortTargets(s.targets)
	log.Printf("[Sniper] %s: target added: %s (max %d)", s.client.AccountKey(), t.Name, t.MaxBuyPrice)
}

// RemoveTarget drops a target by name
func (s *Sniper) RemoveTarget(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.targets[:0]
	for _, t := range s.targets {
		if t.Name != name {
			kept = append(kept, t)
		}
	}
	s.targets = kept
}

// Targets returns a copy of the current target list
func (s *Sniper) Targets() []SnipeTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SnipeTarget, 0, len(s.targets))
	for _, t := range s.targets {
		out = append(out, *t)
	}
	return out
}

// State returns the loop state
func (s *Sniper) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a copy of the run statistics
func (s *Sniper) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Start launches the snipe loop. No-op when already running.
func (s *Sniper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning || s.state == StatePaused {
		return
	}
	if len(s.targets) == 0 {
		log.Printf("[Sniper] %s: no targets configured, not starting", s.client.AccountKey())
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = StateRunning
	now := time.Now()
	s.stats = Stats{StartedAt: &now}

	log.Printf("[Sniper] %s: started with %d targets", s.client.AccountKey(), len(s.targets))
	go s.run(loopCtx)
}

// Stop cancels the loop and waits for it to exit
func (s *Sniper) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	log.Printf("[Sniper] %s: stopped", s.client.AccountKey())
}

// Pause suspends searching without tearing the loop down
func (s *Sniper) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		s.state = StatePaused
	}
}

// Resume continues after Pause
func (s *Sniper) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePaused {
		s.state = StateRunning
	}
}

func (s *Sniper) run(ctx context.Context) {
	defer close(s.done)

	for {
		if ctx.Err() != nil {
			return
		}

		if s.State() == StatePaused {
			if err := sleepCtx(ctx, time.Second); err != nil {
				return
			}
			continue
		}

		ok, err := s.withinLimits(ctx)
		if err != nil {
			if s.handleLoopError(err) {
				return
			}
		}
		if !ok {
			if err := sleepCtx(ctx, s.cfg.IdleInterval); err != nil {
				return
			}
			continue
		}

		bought := false
		for _, target := range s.snapshotTargets() {
			if ctx.Err() != nil {
				return
			}
			if !target.Enabled {
				continue
			}

			ok, err := s.searchAndBuy(ctx, target)
			if err != nil {
				if s.handleLoopError(err) {
					return
				}
				break
			}
			bought = bought || ok
		}

		if !bought {
			if err := sleepCtx(ctx, s.cfg.IdleInterval); err != nil {
				return
			}
		}
	}
}

// handleLoopError reports the error and decides whether the loop dies.
// Fatal platform signals (ban, captcha, stop verdicts) halt the account
// until a human restarts it; everything else is survivable.
func (s *Sniper) handleLoopError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if market.IsFatal(err) {
		s.mu.Lock()
		s.state = StateError
		s.mu.Unlock()
		log.Printf("[Sniper] %s: ❌ fatal: %v", s.client.AccountKey(), err)
		if s.cb.OnError != nil {
			s.cb.OnError(s.client.AccountKey(), err)
		}
		return true
	}

	log.Printf("[Sniper] %s: loop error: %v", s.client.AccountKey(), err)
	return false
}

// withinLimits checks purchase and tradepile caps before a sweep
func (s *Sniper) withinLimits(ctx context.Context) (bool, error) {
	s.mu.Lock()
	purchases := s.stats.TotalPurchases
	s.mu.Unlock()

	if purchases >= s.cfg.MaxPurchases {
		log.Printf("[Sniper] %s: purchase limit reached (%d)", s.client.AccountKey(), purchases)
		return false, nil
	}

	tradepile, err := s.client.Tradepile(ctx)
	if err != nil {
		return false, err
	}
	if len(tradepile) >= s.cfg.MaxActiveSales {
		log.Printf("[Sniper] %s: tradepile full (%d/%d)", s.client.AccountKey(), len(tradepile), s.cfg.MaxActiveSales)
		return false, nil
	}

	return true, nil
}

func (s *Sniper) snapshotTargets() []*SnipeTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*SnipeTarget(nil), s.targets...)
}

// searchAndBuy runs one search for the target and buys the first
// affordable hit. Returns whether something was bought.
func (s *Sniper) searchAndBuy(ctx context.Context, target *SnipeTarget) (bool, error) {
	cards, err := s.client.Search(ctx, target.Filter, 0)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	target.Searches++
	s.stats.TotalSearches++
	s.mu.Unlock()

	var hits []market.Card
	for _, c := range cards {
		if c.BuyNowPrice > 0 && c.BuyNowPrice <= target.MaxBuyPrice {
			hits = append(hits, c)
		}
	}
	if len(hits) == 0 {
		return false, nil
	}

	s.mu.Lock()
	target.Found += len(hits)
	s.mu.Unlock()
	log.Printf("[Sniper] %s: 🎯 %d hits for %q", s.client.AccountKey(), len(hits), target.Name)

	for _, card := range hits {
		coins, err := s.client.Credits(ctx)
		if err != nil {
			return false, err
		}
		if coins < card.BuyNowPrice+s.cfg.MinCoinReserve {
			log.Printf("[Sniper] %s: insufficient coins (%d) for %s at %d", s.client.AccountKey(), coins, card.Name, card.BuyNowPrice)
			return false, nil
		}

		ok, err := s.client.BuyNow(ctx, card.TradeID, card.BuyNowPrice)
		if err != nil {
			return false, err
		}
		if !ok {
			s.mu.Lock()
			s.stats.FailedPurchases++
			s.mu.Unlock()
			continue
		}

		s.mu.Lock()
		target.Bought++
		s.stats.TotalPurchases++
		s.stats.TotalSpent += card.BuyNowPrice
		s.mu.Unlock()

		log.Printf("[Sniper] %s: ✅ bought %s (%d) for %d coins", s.client.AccountKey(), card.Name, card.Rating, card.BuyNowPrice)
		if s.cb.OnPurchase != nil {
			s.cb.OnPurchase(s.client.AccountKey(), card, card.BuyNowPrice)
		}

		if s.cfg.AutoSell {
			if err := s.autoSell(ctx, card, target); err != nil {
				log.Printf("[Sniper] %s: auto-sell failed for %s: %v", s.client.AccountKey(), card.Name, err)
			}
		}
		return true, nil
	}

	return false, nil
}

// autoSell moves the freshly bought card to the trade pile and lists it
// at the target's sell price, or buy price plus markup
func (s *Sniper) autoSell(ctx context.Context, card market.Card, target *SnipeTarget) error {
	unassigned, err := s.client.Unassigned(ctx)
	if err != nil {
		return err
	}

	for _, item := range unassigned {
		if item.ResourceID != card.ResourceID {
			continue
		}

		if err := s.client.SendToTradepile(ctx, item.ID); err != nil {
			return err
		}

		sellPrice := target.SellPrice
		if sellPrice == 0 {
			sellPrice = int(float64(card.BuyNowPrice) * s.cfg.SellMarkup)
		}
		sellPrice = market.RoundPrice(sellPrice)
		startPrice := market.RoundPrice(sellPrice * 9 / 10)

		tradeID, err := s.client.ListItem(ctx, item.ID, startPrice, sellPrice, s.cfg.SellDuration)
		if err != nil {
			return err
		}
		if tradeID != 0 {
			log.Printf("[Sniper] %s: 📤 listed %s for %d (expected profit %d)",
				s.client.AccountKey(), card.Name, sellPrice, sellPrice-card.BuyNowPrice)
		}
		return nil
	}

	return nil
}

// SettleSales clears sold items, credits earnings to the stats, and
// relists expired auctions. Called periodically by the scheduler.
func (s *Sniper) SettleSales(ctx context.Context) error {
	earned, err := s.client.ClearSold(ctx)
	if err != nil {
		return err
	}
	if earned > 0 {
		s.mu.Lock()
		s.stats.TotalEarned += earned
		s.stats.TotalSales++
		profit := s.stats.Profit()
		s.mu.Unlock()

		log.Printf("[Sniper] %s: 💰 sold for %d coins (profit %d)", s.client.AccountKey(), earned, profit)
		if s.cb.OnSale != nil {
			s.cb.OnSale(s.client.AccountKey(), earned, profit)
		}
	}

	relisted, err := s.client.RelistAll(ctx)
	if err != nil {
		return err
	}
	if relisted > 0 {
		log.Printf("[Sniper] %s: 🔄 relisted %d expired auctions", s.client.AccountKey(), relisted)
	}
	return nil
}

// Keepalive refreshes the account's session
func (s *Sniper) Keepalive(ctx context.Context) error {
	return s.client.Keepalive(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
