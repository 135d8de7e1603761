// Package domain holds the token data model and the error taxonomy shared by
// the resolver, the enrichment fetchers and the fulfillment pipeline.
package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// SearchCandidate is a search hit that may or may not exist on the requested
// chain. Chain and ContractAddress are set once resolution succeeds.
type SearchCandidate struct {
	ExternalID      string `json:"external_id"`
	Symbol          string `json:"symbol"`
	Name            string `json:"name"`
	Chain           Chain  `json:"chain,omitempty"`
	ContractAddress string `json:"contract_address,omitempty"`
}

// Resolved reports whether the candidate carries a contract address.
func (c SearchCandidate) Resolved() bool {
	return c.Chain != "" && c.ContractAddress != ""
}

// CommunityLinks are the project links shown under a token card.
type CommunityLinks struct {
	HomePage         string `json:"home_page,omitempty"`
	WhitePaper       string `json:"white_paper,omitempty"`
	TwitterHandle    string `json:"twitter_handle,omitempty"`
	TwitterFollowers *int64 `json:"twitter_followers,omitempty"`
	TelegramChannel  string `json:"telegram_channel,omitempty"`
	Repo             string `json:"repo,omitempty"`
}

// TokenMarketData is a read-only snapshot owned by the request that fetched it.
type TokenMarketData struct {
	Symbol            string          `json:"symbol"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	ImageURL          string          `json:"image_url"`
	MarketCap         int64           `json:"market_cap"`
	Volume            int64           `json:"volume"`
	Price             decimal.Decimal `json:"price"`
	CirculatingSupply *float64        `json:"circulating_supply,omitempty"`
	TotalSupply       *float64        `json:"total_supply,omitempty"`
	Community         CommunityLinks  `json:"community"`

	// BubbleScreenshotURL is filled in by the pipeline when the graph image
	// was uploaded.
	BubbleScreenshotURL string `json:"bubble_screenshot_url,omitempty"`
}

// DecentralizationMetrics is the Bubblemaps metadata for a token.
type DecentralizationMetrics struct {
	Score              float64            `json:"decentralisation_score"`
	LastUpdated        string             `json:"dt_update"`
	SupplyDistribution map[string]float64 `json:"identified_supply"`
	Status             string             `json:"status"`
}

// BubbleGraphDataset is the raw Bubblemaps map payload. Only the renderer
// looks inside it.
type BubbleGraphDataset = json.RawMessage

// Status is the terminal state of a pipeline run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Stage names a step of the fulfillment pipeline.
type Stage string

const (
	StageFetchMarket        Stage = "fetch_market"
	StageFetchMetrics       Stage = "fetch_metrics"
	StageFetchGraph         Stage = "fetch_graph"
	StageRenderGraphPage    Stage = "render_graph_page"
	StageUploadGraphPage    Stage = "upload_graph_page"
	StageScreenshotGraph    Stage = "screenshot_graph"
	StageUploadGraphImage   Stage = "upload_graph_image"
	StageRenderSummaryCard  Stage = "render_summary_card"
	StageUploadSummaryPage  Stage = "upload_summary_page"
	StageScreenshotSummary  Stage = "screenshot_summary"
	StageUploadSummaryImage Stage = "upload_summary_image"
)

// StageFailure records a stage that did not complete.
type StageFailure struct {
	Stage Stage  `json:"stage"`
	Error string `json:"error"`
}

// PipelineResult is the composite answer for one token. TokenData is always
// set; Metrics and ScreenshotURL may be empty when their stages degraded.
type PipelineResult struct {
	Status        Status                   `json:"status"`
	Chain         Chain                    `json:"chain"`
	Address       string                   `json:"address"`
	TokenData     *TokenMarketData         `json:"token_data"`
	Metrics       *DecentralizationMetrics `json:"metrics,omitempty"`
	GraphPageURL  string                   `json:"graph_page_url,omitempty"`
	ScreenshotURL string                   `json:"screenshot_url,omitempty"`
	Failures      []StageFailure           `json:"failures,omitempty"`
}

// GraphResult is the answer to a visualization-only request.
type GraphResult struct {
	Chain         Chain  `json:"chain"`
	Address       string `json:"address"`
	PageURL       string `json:"page_url"`
	ScreenshotURL string `json:"screenshot_url,omitempty"`
}
