package market

import (
	"net/url"
	"strconv"
)

// Card is one transfer-market listing
type Card struct {
	TradeID    int64  `json:"trade_id"`
	AssetID    int64  `json:"asset_id"`
	ResourceID int64  `json:"resource_id"`
	Name       string `json:"name"`
	Rating     int    `json:"rating"`
	Position   string `json:"position"`

	BuyNowPrice int  `json:"buy_now_price"`
	CurrentBid  int  `json:"current_bid"`
	Expires     int  `json:"expires"` // seconds until auction end
	Established bool `json:"seller_established"`
}

// ExpiringSoon reports whether the auction ends within the hour
func (c Card) ExpiringSoon() bool {
	return c.Expires < 3600
}

// Item is an owned club item (unassigned pile, club, trade pile)
type Item struct {
	ID         int64  `json:"id"`
	AssetID    int64  `json:"asset_id"`
	ResourceID int64  `json:"resource_id"`
	Name       string `json:"name"`
	Rating     int    `json:"rating"`
}

// SearchFilter narrows a transfer-market search. Zero values are omitted
// from the query.
type SearchFilter struct {
	PlayerID  int64  `json:"player_id,omitempty" yaml:"player_id"`
	MinBid    int    `json:"min_bid,omitempty" yaml:"min_bid"`
	MaxBid    int    `json:"max_bid,omitempty" yaml:"max_bid"`
	MinBuyNow int    `json:"min_buy_now,omitempty" yaml:"min_buy_now"`
	MaxBuyNow int    `json:"max_buy_now,omitempty" yaml:"max_buy_now"`
	Quality   string `json:"quality,omitempty" yaml:"quality"` // bronze, silver, gold, special
	Position  string `json:"position,omitempty" yaml:"position"`
	Nation    int    `json:"nation,omitempty" yaml:"nation"`
	League    int    `json:"league,omitempty" yaml:"league"`
	Club      int    `json:"club,omitempty" yaml:"club"`
	RarityID  int    `json:"rarity_id,omitempty" yaml:"rarity_id"`
}

// query translates the filter into market query parameters
func (f SearchFilter) query(page int) url.Values {
	params := url.Values{}
	params.Set("num", strconv.Itoa(searchPageSize))
	params.Set("start", strconv.Itoa(page*searchPageSize))
	params.Set("type", "player")

	if f.PlayerID > 0 {
		params.Set("maskedDefId", strconv.FormatInt(f.PlayerID, 10))
	}
	if f.MinBid > 0 {
		params.Set("micr", strconv.Itoa(f.MinBid))
	}
	if f.MaxBid > 0 {
		params.Set("macr", strconv.Itoa(f.MaxBid))
	}
	if f.MinBuyNow > 0 {
		params.Set("minb", strconv.Itoa(f.MinBuyNow))
	}
	if f.MaxBuyNow > 0 {
		params.Set("maxb", strconv.Itoa(f.MaxBuyNow))
	}
	if f.Quality != "" {
		params.Set("lev", f.Quality)
	}
	if f.Position != "" {
		params.Set("pos", f.Position)
	}
	if f.Nation > 0 {
		params.Set("nat", strconv.Itoa(f.Nation))
	}
	if f.League > 0 {
		params.Set("leag", strconv.Itoa(f.League))
	}
	if f.Club > 0 {
		params.Set("team", strconv.Itoa(f.Club))
	}
	if f.RarityID > 0 {
		params.Set("rarityIds", strconv.Itoa(f.RarityID))
	}

	return params
}

const searchPageSize = 21

// Auction listing durations accepted by the platform, in seconds
const (
	DurationHour      = 3600
	DurationThreeHour = 10800
	DurationSixHour   = 21600
	DurationHalfDay   = 43200
	DurationDay       = 86400
	DurationThreeDay  = 259200
)

// RoundPrice rounds a coin amount down to the platform's price tick.
// Steps grow with the price band: 50 under 1k, 100 under 10k, 250 under
// 50k, 500 under 100k, 1000 above.
func RoundPrice(price int) int {
	switch {
	case price < 1000:
		return (price / 50) * 50
	case price < 10000:
		return (price / 100) * 100
	case price < 50000:
		return (price / 250) * 250
	case price < 100000:
		return (price / 500) * 500
	default:
		return (price / 1000) * 1000
	}
}

// wire-format response shapes

type creditsResponse struct {
	Credits int `json:"credits"`
}

type itemData struct {
	ID                int64  `json:"id"`
	AssetID           int64  `json:"assetId"`
	ResourceID        int64  `json:"resourceId"`
	LastName          string `json:"lastName"`
	Rating            int    `json:"rating"`
	PreferredPosition string `json:"preferredPosition"`
}

type auctionInfo struct {
	TradeID           int64    `json:"tradeId"`
	BuyNowPrice       int      `json:"buyNowPrice"`
	CurrentBid        int      `json:"currentBid"`
	Expires           int      `json:"expires"`
	SellerEstablished bool     `json:"sellerEstablished"`
	ItemData          itemData `json:"itemData"`
}

type auctionListResponse struct {
	AuctionInfo []auctionInfo `json:"auctionInfo"`
}

type itemListResponse struct {
	ItemData []itemData `json:"itemData"`
}

type listItemResponse struct {
	ID int64 `json:"id"`
}

type relistResponse struct {
	TradeIDList []struct {
		ID int64 `json:"id"`
	} `json:"tradeIdList"`
}

type clearSoldResponse struct {
	Coins int `json:"coins"`
}

func (a auctionInfo) card() Card {
	return Card{
		TradeID:     a.TradeID,
		AssetID:     a.ItemData.AssetID,
		ResourceID:  a.ItemData.ResourceID,
		Name:        a.ItemData.LastName,
		Rating:      a.ItemData.Rating,
		Position:    a.ItemData.PreferredPosition,
		BuyNowPrice: a.BuyNowPrice,
		CurrentBid:  a.CurrentBid,
		Expires:     a.Expires,
		Established: a.SellerEstablished,
	}
}
