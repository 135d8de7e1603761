package coingecko

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/FranksOps/bubblescope/internal/domain"
)

type searchResponse struct {
	Coins []SearchCoin `json:"coins"`
}

// SearchCoin is one hit from /search.
type SearchCoin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// CoinDetail is the subset of /coins/{id} the bot uses.
type CoinDetail struct {
	ID          string            `json:"id"`
	Symbol      string            `json:"symbol"`
	Name        string            `json:"name"`
	Platforms   map[string]string `json:"platforms"`
	Description struct {
		EN string `json:"en"`
	} `json:"description"`
	Links struct {
		Homepage          []string `json:"homepage"`
		Whitepaper        string   `json:"whitepaper"`
		TwitterScreenName string   `json:"twitter_screen_name"`
		TelegramChannel   string   `json:"telegram_channel_identifier"`
		ReposURL          struct {
			GitHub []string `json:"github"`
		} `json:"repos_url"`
	} `json:"links"`
	Image struct {
		Large string `json:"large"`
	} `json:"image"`
	CommunityData struct {
		TwitterFollowers *int64 `json:"twitter_followers"`
	} `json:"community_data"`
	MarketData struct {
		MarketCap         map[string]float64         `json:"market_cap"`
		TotalVolume       map[string]float64         `json:"total_volume"`
		CurrentPrice      map[string]decimal.Decimal `json:"current_price"`
		TotalSupply       *float64                   `json:"total_supply"`
		CirculatingSupply *float64                   `json:"circulating_supply"`
	} `json:"market_data"`
}

// Address returns the contract address on platform, trimmed, or "".
func (d *CoinDetail) Address(platform string) string {
	return strings.TrimSpace(d.Platforms[platform])
}

// Snapshot converts the detail into the domain snapshot, valued in USD.
func (d *CoinDetail) Snapshot() *domain.TokenMarketData {
	md := &domain.TokenMarketData{
		Symbol:            strings.ToUpper(d.Symbol),
		Name:              d.Name,
		Description:       d.Description.EN,
		ImageURL:          d.Image.Large,
		MarketCap:         int64(d.MarketData.MarketCap["usd"]),
		Volume:            int64(d.MarketData.TotalVolume["usd"]),
		Price:             d.MarketData.CurrentPrice["usd"],
		TotalSupply:       d.MarketData.TotalSupply,
		CirculatingSupply: d.MarketData.CirculatingSupply,
		Community: domain.CommunityLinks{
			WhitePaper:       d.Links.Whitepaper,
			TwitterHandle:    d.Links.TwitterScreenName,
			TwitterFollowers: d.CommunityData.TwitterFollowers,
			TelegramChannel:  d.Links.TelegramChannel,
		},
	}
	if len(d.Links.Homepage) > 0 {
		md.Community.HomePage = d.Links.Homepage[0]
	}
	if len(d.Links.ReposURL.GitHub) > 0 {
		md.Community.Repo = d.Links.ReposURL.GitHub[0]
	}
	return md
}
