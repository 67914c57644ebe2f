package sniper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transfer-sniper/internal/antiban"
	"transfer-sniper/internal/market"
)

// quietPolicy removes time-based friction so tests never sleep
func quietPolicy() antiban.Policy {
	p := antiban.DefaultPolicy()
	p.NightMode = false
	p.SearchDelay = antiban.DelayRange{}
	p.PurchaseDelay = antiban.DelayRange{}
	p.ActionDelay = antiban.DelayRange{}
	return p
}

func newTestSniper(t *testing.T, handler http.Handler, cfg Config, cb Callbacks) (*Sniper, *antiban.Guard) {
	t.Helper()

	guard, err := antiban.NewGuard(quietPolicy())
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	clientCfg := market.DefaultClientConfig()
	clientCfg.BaseURL = srv.URL

	client := market.NewClient("acct-1", market.Credentials{SID: "sid"}, guard, clientCfg)
	return New(client, cfg, cb), guard
}

// marketStub is a minimal platform double covering the endpoints one
// buy-and-list pass touches
type marketStub struct {
	searchBody string
	credits    int
	buyFails   bool

	buys  int
	lists int
}

func (m *marketStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/transfermarket":
		w.Write([]byte(m.searchBody))
	case r.URL.Path == "/user/credits":
		w.Write([]byte(`{"credits":` + strconv.Itoa(m.credits) + `}`))
	case strings.HasSuffix(r.URL.Path, "/bid"):
		m.buys++
		if m.buyFails {
			w.WriteHeader(461)
			return
		}
		w.Write([]byte(`{"auctionInfo":[{"tradeId":42}]}`))
	case r.URL.Path == "/purchased/items":
		w.Write([]byte(`{"itemData":[{"id":500,"resourceId":9,"lastName":"Kante"}]}`))
	case r.URL.Path == "/item":
		w.Write([]byte(`{}`))
	case r.URL.Path == "/auctionhouse":
		m.lists++
		w.Write([]byte(`{"id":777}`))
	case r.URL.Path == "/tradepile":
		w.Write([]byte(`{"auctionInfo":[]}`))
	case r.URL.Path == "/trade/sold":
		w.Write([]byte(`{"coins":15400}`))
	case r.URL.Path == "/auctionhouse/relist":
		w.Write([]byte(`{"tradeIdList":[{"id":1},{"id":2}]}`))
	default:
		w.Write([]byte(`{}`))
	}
}

const kanteListing = `{"auctionInfo":[{"tradeId":42,"buyNowPrice":14000,"expires":120,
	"itemData":{"assetId":7,"resourceId":9,"lastName":"Kante","rating":86}}]}`

func TestStatsProfitAndROI(t *testing.T) {
	s := Stats{TotalSpent: 10000, TotalEarned: 15000}
	assert.Equal(t, 5000, s.Profit())
	assert.InDelta(t, 50.0, s.ROI(), 0.001)

	assert.Equal(t, 0.0, Stats{}.ROI())
}

func TestSortTargetsByPriority(t *testing.T) {
	targets := []*SnipeTarget{
		{Name: "low", Priority: 1},
		{Name: "high", Priority: 10},
		{Name: "mid", Priority: 5},
	}
	sortTargets(targets)

	assert.Equal(t, "high", targets[0].Name)
	assert.Equal(t, "mid", targets[1].Name)
	assert.Equal(t, "low", targets[2].Name)
}

func TestAddRemoveTarget(t *testing.T) {
	sn, _ := newTestSniper(t, &marketStub{}, DefaultConfig(), Callbacks{})

	sn.AddTarget(&SnipeTarget{Name: "a", Priority: 1, Enabled: true})
	sn.AddTarget(&SnipeTarget{Name: "b", Priority: 2, Enabled: true})

	targets := sn.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, "b", targets[0].Name, "higher priority first")

	sn.RemoveTarget("b")
	targets = sn.Targets()
	require.Len(t, targets, 1)
	assert.Equal(t, "a", targets[0].Name)
}

func TestSearchAndBuySuccess(t *testing.T) {
	stub := &marketStub{searchBody: kanteListing, credits: 100000}

	var purchased []string
	cfg := DefaultConfig()
	cb := Callbacks{
		OnPurchase: func(key string, card market.Card, price int) {
			purchased = append(purchased, card.Name)
			assert.Equal(t, 14000, price)
		},
	}
	sn, _ := newTestSniper(t, stub, cfg, cb)

	target := &SnipeTarget{Name: "kante", MaxBuyPrice: 15000, Enabled: true}
	bought, err := sn.searchAndBuy(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, bought)

	assert.Equal(t, 1, target.Searches)
	assert.Equal(t, 1, target.Found)
	assert.Equal(t, 1, target.Bought)
	assert.Equal(t, []string{"Kante"}, purchased)

	stats := sn.Stats()
	assert.Equal(t, 1, stats.TotalPurchases)
	assert.Equal(t, 14000, stats.TotalSpent)

	// Auto-sell listed it after moving it to the trade pile
	assert.Equal(t, 1, stub.lists)
}

func TestSearchAndBuySkipsOverpriced(t *testing.T) {
	stub := &marketStub{searchBody: kanteListing, credits: 100000}
	sn, _ := newTestSniper(t, stub, DefaultConfig(), Callbacks{})

	target := &SnipeTarget{Name: "kante", MaxBuyPrice: 10000, Enabled: true}
	bought, err := sn.searchAndBuy(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, bought)
	assert.Equal(t, 0, stub.buys, "no buy attempted above the price cap")
	assert.Equal(t, 0, target.Found)
}

func TestSearchAndBuyRespectsCoinReserve(t *testing.T) {
	// 14000 price + 10000 reserve > 20000 balance
	stub := &marketStub{searchBody: kanteListing, credits: 20000}
	sn, _ := newTestSniper(t, stub, DefaultConfig(), Callbacks{})

	target := &SnipeTarget{Name: "kante", MaxBuyPrice: 15000, Enabled: true}
	bought, err := sn.searchAndBuy(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, bought)
	assert.Equal(t, 0, stub.buys)
}

func TestSearchAndBuyOutbidCountsFailure(t *testing.T) {
	stub := &marketStub{searchBody: kanteListing, credits: 100000, buyFails: true}
	sn, _ := newTestSniper(t, stub, DefaultConfig(), Callbacks{})

	target := &SnipeTarget{Name: "kante", MaxBuyPrice: 15000, Enabled: true}
	bought, err := sn.searchAndBuy(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, bought)
	assert.Equal(t, 1, sn.Stats().FailedPurchases)
}

func TestSettleSales(t *testing.T) {
	stub := &marketStub{}

	var soldEarned, soldProfit int
	cb := Callbacks{
		OnSale: func(key string, earned, profit int) {
			soldEarned, soldProfit = earned, profit
		},
	}
	sn, _ := newTestSniper(t, stub, DefaultConfig(), cb)

	require.NoError(t, sn.SettleSales(context.Background()))

	stats := sn.Stats()
	assert.Equal(t, 15400, stats.TotalEarned)
	assert.Equal(t, 1, stats.TotalSales)
	assert.Equal(t, 15400, soldEarned)
	assert.Equal(t, 15400, soldProfit)
}

func TestStartRequiresTargets(t *testing.T) {
	sn, _ := newTestSniper(t, &marketStub{}, DefaultConfig(), Callbacks{})

	sn.Start(context.Background())
	assert.Equal(t, StateStopped, sn.State())
}

func TestStartStopLifecycle(t *testing.T) {
	// Empty search results keep the loop idling harmlessly
	stub := &marketStub{searchBody: `{"auctionInfo":[]}`, credits: 100000}

	cfg := DefaultConfig()
	cfg.IdleInterval = 10 * time.Millisecond
	sn, _ := newTestSniper(t, stub, cfg, Callbacks{})
	sn.AddTarget(&SnipeTarget{Name: "kante", MaxBuyPrice: 15000, Enabled: true})

	sn.Start(context.Background())
	assert.Equal(t, StateRunning, sn.State())

	// Starting again is a no-op
	sn.Start(context.Background())

	sn.Pause()
	assert.Equal(t, StatePaused, sn.State())
	sn.Resume()
	assert.Equal(t, StateRunning, sn.State())

	sn.Stop()
	assert.Equal(t, StateStopped, sn.State())

	// Stop is idempotent
	sn.Stop()
	assert.Equal(t, StateStopped, sn.State())
}

func TestManagerAccounts(t *testing.T) {
	guard, err := antiban.NewGuard(quietPolicy())
	require.NoError(t, err)

	srv := httptest.NewServer(&marketStub{})
	t.Cleanup(srv.Close)
	clientCfg := market.DefaultClientConfig()
	clientCfg.BaseURL = srv.URL

	mgr := NewManager(guard, DefaultConfig(), Callbacks{})

	_, err = mgr.AddAccount("main", market.Credentials{}, clientCfg)
	require.NoError(t, err)
	_, err = mgr.AddAccount("main", market.Credentials{}, clientCfg)
	assert.Error(t, err, "duplicate keys are rejected")

	_, ok := mgr.Account("main")
	assert.True(t, ok)
	assert.Equal(t, []string{"main"}, mgr.Keys())

	// Registering created the guard session eagerly
	_, ok = guard.Session("main")
	assert.True(t, ok)

	status := mgr.Status()
	require.Len(t, status, 1)
	assert.Equal(t, "main", status[0].AccountKey)
	assert.Equal(t, StateStopped, status[0].State)
	require.NotNil(t, status[0].Session)

	require.NoError(t, mgr.RemoveAccount("main"))
	assert.Error(t, mgr.RemoveAccount("main"))
	_, ok = guard.Session("main")
	assert.False(t, ok, "guard session removed with the account")
}

func TestManagerStartUnknownAccount(t *testing.T) {
	guard, err := antiban.NewGuard(quietPolicy())
	require.NoError(t, err)
	mgr := NewManager(guard, DefaultConfig(), Callbacks{})

	assert.Error(t, mgr.StartAccount(context.Background(), "ghost"))
	assert.Error(t, mgr.StopAccount("ghost"))
}

func TestManagerSettleAllSkipsStopped(t *testing.T) {
	guard, err := antiban.NewGuard(quietPolicy())
	require.NoError(t, err)

	stub := &marketStub{}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	clientCfg := market.DefaultClientConfig()
	clientCfg.BaseURL = srv.URL

	mgr := NewManager(guard, DefaultConfig(), Callbacks{})
	_, err = mgr.AddAccount("idle", market.Credentials{}, clientCfg)
	require.NoError(t, err)

	// Stopped accounts are skipped entirely
	mgr.SettleAll(context.Background())
	sn, _ := mgr.Account("idle")
	assert.Equal(t, 0, sn.Stats().TotalSales)
}
