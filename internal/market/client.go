package market

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"transfer-sniper/internal/antiban"
)

const defaultBaseURL = "https://utas.mob.v1.fut.ea.com/ut/game/fc26"

// Browser-like headers so requests blend in with the official web app
var defaultHeaders = map[string]string{
	"User-Agent":         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":             "application/json",
	"Accept-Language":    "en-US,en;q=0.9",
	"Content-Type":       "application/json",
	"Origin":             "https://www.ea.com",
	"Referer":            "https://www.ea.com/",
	"Sec-Fetch-Dest":     "empty",
	"Sec-Fetch-Mode":     "cors",
	"Sec-Fetch-Site":     "same-site",
	"Sec-Ch-Ua-Mobile":   "?0",
	"Sec-Ch-Ua-Platform": `"Windows"`,
}

// Credentials carry the cookie/SID session captured from a logged-in
// web-app session. Acquiring them is out of scope here; they arrive via
// configuration or the accounts table.
type Credentials struct {
	Cookies  map[string]string
	SID      string
	Platform string // pc, ps5, xbox
}

// ClientConfig tunes one account's HTTP client
type ClientConfig struct {
	BaseURL        string
	Timeout        time.Duration
	UserAgent      string
	RateLimitPause time.Duration // global pause applied when a 429 is seen
}

// DefaultClientConfig returns the settings the official web app exhibits
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:        defaultBaseURL,
		Timeout:        30 * time.Second,
		RateLimitPause: time.Minute,
	}
}

// Client talks to the transfer market for a single account. Every call
// is bracketed by the guard: decide, obey the verdict, perform the HTTP
// request, then record the outcome.
type Client struct {
	http       *http.Client
	cfg        ClientConfig
	creds      Credentials
	accountKey string
	guard      *antiban.Guard

	coins int // last observed balance
}

// NewClient builds a market client for one account, gated by the guard
func NewClient(accountKey string, creds Credentials, guard *antiban.Guard, cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimitPause == 0 {
		cfg.RateLimitPause = time.Minute
	}

	return &Client{
		http:       &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		creds:      creds,
		accountKey: accountKey,
		guard:      guard,
	}
}

// AccountKey returns the account this client trades as
func (c *Client) AccountKey() string { return c.accountKey }

// Coins returns the last observed coin balance
func (c *Client) Coins() int { return c.coins }

// do runs one guarded request: ask the guard, wait out delay/pause
// verdicts, perform the call, report the outcome. Stop verdicts come
// back as *RefusedError without any I/O happening.
func (c *Client) do(ctx context.Context, category antiban.Category, method, endpoint string, body any, params url.Values, out any) error {
	verdict := c.guard.Decide(c.accountKey, category)
	switch verdict.Action {
	case antiban.ActionStop:
		return &RefusedError{Decision: verdict}
	case antiban.ActionDelay, antiban.ActionPause:
		if verdict.Wait > 0 {
			if verdict.Action == antiban.ActionPause {
				log.Printf("[Market] %s: pausing %v (%s)", c.accountKey, verdict.Wait.Round(time.Second), verdict.Reason)
			}
			if err := sleepCtx(ctx, verdict.Wait); err != nil {
				return err
			}
		}
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	reqURL := c.cfg.BaseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range defaultHeaders {
		req.Header.Set(k, v)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	req.Header.Set("X-UT-SID", c.creds.SID)
	for name, value := range c.creds.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Network failure: no status code to classify
		c.guard.RecordError(c.accountKey, 0)
		return fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		c.guard.RecordSuccess(c.accountKey, category)
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	// A 429 means the platform is throttling us as a whole, not just
	// this account: pause everyone
	if resp.StatusCode == http.StatusTooManyRequests {
		c.guard.ForcePause(c.cfg.RateLimitPause)
	}

	c.guard.RecordError(c.accountKey, resp.StatusCode)
	return errorForStatus(resp.StatusCode, string(raw))
}

// Credits fetches and caches the coin balance
func (c *Client) Credits(ctx context.Context) (int, error) {
	var resp creditsResponse
	if err := c.do(ctx, antiban.CategoryAction, http.MethodGet, "/user/credits", nil, nil, &resp); err != nil {
		return 0, err
	}
	c.coins = resp.Credits
	return resp.Credits, nil
}

// Search queries the transfer market with the given filter
func (c *Client) Search(ctx context.Context, filter SearchFilter, page int) ([]Card, error) {
	var resp auctionListResponse
	if err := c.do(ctx, antiban.CategorySearch, http.MethodGet, "/transfermarket", nil, filter.query(page), &resp); err != nil {
		return nil, err
	}

	cards := make([]Card, 0, len(resp.AuctionInfo))
	for _, a := range resp.AuctionInfo {
		cards = append(cards, a.card())
	}
	return cards, nil
}

// BuyNow buys a listing at its buy-now price. Returns false when the
// listing was gone before we got there (someone else sniped it).
func (c *Client) BuyNow(ctx context.Context, tradeID int64, price int) (bool, error) {
	body := map[string]int{"bid": price}
	var resp auctionListResponse
	err := c.do(ctx, antiban.CategoryPurchase, http.MethodPut, fmt.Sprintf("/trade/%d/bid", tradeID), body, nil, &resp)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Status == 461 {
			// Permission denied: outbid or expired, not a failure mode
			return false, nil
		}
		return false, err
	}
	return len(resp.AuctionInfo) > 0, nil
}

// Bid places an auction bid
func (c *Client) Bid(ctx context.Context, tradeID int64, amount int) (bool, error) {
	body := map[string]int{"bid": amount}
	var resp auctionListResponse
	if err := c.do(ctx, antiban.CategoryPurchase, http.MethodPut, fmt.Sprintf("/trade/%d/bid", tradeID), body, nil, &resp); err != nil {
		return false, err
	}
	return len(resp.AuctionInfo) > 0, nil
}

// ListItem puts an item up for auction and returns its trade id
func (c *Client) ListItem(ctx context.Context, itemID int64, startPrice, buyNowPrice, duration int) (int64, error) {
	body := map[string]any{
		"itemData":    map[string]int64{"id": itemID},
		"startingBid": startPrice,
		"duration":    duration,
		"buyNowPrice": buyNowPrice,
	}
	var resp listItemResponse
	if err := c.do(ctx, antiban.CategoryAction, http.MethodPost, "/auctionhouse", body, nil, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// SendToTradepile moves an item into the trade pile
func (c *Client) SendToTradepile(ctx context.Context, itemID int64) error {
	return c.moveItem(ctx, itemID, "trade")
}

// SendToClub moves an item into the club
func (c *Client) SendToClub(ctx context.Context, itemID int64) error {
	return c.moveItem(ctx, itemID, "club")
}

func (c *Client) moveItem(ctx context.Context, itemID int64, pile string) error {
	body := map[string][]map[string]any{
		"itemData": {{"id": itemID, "pile": pile}},
	}
	return c.do(ctx, antiban.CategoryAction, http.MethodPut, "/item", body, nil, nil)
}

// Tradepile lists the account's items up for sale
func (c *Client) Tradepile(ctx context.Context) ([]Card, error) {
	return c.auctionList(ctx, "/tradepile")
}

// Watchlist lists the account's watched auctions
func (c *Client) Watchlist(ctx context.Context) ([]Card, error) {
	return c.auctionList(ctx, "/watchlist")
}

func (c *Client) auctionList(ctx context.Context, endpoint string) ([]Card, error) {
	var resp auctionListResponse
	if err := c.do(ctx, antiban.CategoryAction, http.MethodGet, endpoint, nil, nil, &resp); err != nil {
		return nil, err
	}
	cards := make([]Card, 0, len(resp.AuctionInfo))
	for _, a := range resp.AuctionInfo {
		cards = append(cards, a.card())
	}
	return cards, nil
}

// Unassigned lists freshly purchased items not yet in any pile
func (c *Client) Unassigned(ctx context.Context) ([]Item, error) {
	var resp itemListResponse
	if err := c.do(ctx, antiban.CategoryAction, http.MethodGet, "/purchased/items", nil, nil, &resp); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(resp.ItemData))
	for _, it := range resp.ItemData {
		items = append(items, Item{
			ID:         it.ID,
			AssetID:    it.AssetID,
			ResourceID: it.ResourceID,
			Name:       it.LastName,
			Rating:     it.Rating,
		})
	}
	return items, nil
}

// RelistAll relists every expired auction, returning how many
func (c *Client) RelistAll(ctx context.Context) (int, error) {
	var resp relistResponse
	if err := c.do(ctx, antiban.CategoryAction, http.MethodPut, "/auctionhouse/relist", nil, nil, &resp); err != nil {
		return 0, err
	}
	return len(resp.TradeIDList), nil
}

// ClearSold removes sold items from the trade pile and returns the
// coins earned
func (c *Client) ClearSold(ctx context.Context) (int, error) {
	var resp clearSoldResponse
	if err := c.do(ctx, antiban.CategoryAction, http.MethodDelete, "/trade/sold", nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Coins, nil
}

// QuickSell discards an item for its quick-sell value
func (c *Client) QuickSell(ctx context.Context, itemID int64) (int, error) {
	var resp clearSoldResponse
	if err := c.do(ctx, antiban.CategoryAction, http.MethodDelete, fmt.Sprintf("/item/%d", itemID), nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Coins, nil
}

// Keepalive pings the platform to keep the session fresh
func (c *Client) Keepalive(ctx context.Context) error {
	_, err := c.Credits(ctx)
	return err
}

// sleepCtx sleeps for d or until the context is cancelled
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
