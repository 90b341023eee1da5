// Package models defines the core data structures used throughout CryptoPulse.
package models

import "time"

// Asset represents one cryptocurrency at a point in time, as reported by the
// market data provider. Numeric fields that the provider could not supply in
// a parseable form are NaN and render as "N/A".
type Asset struct {
	ID                string  `json:"id"`                 // stable unique key, e.g. "90"
	Rank              int     `json:"rank"`               // market-cap ordering, 1-based
	Name              string  `json:"name"`               // e.g. "Bitcoin"
	Symbol            string  `json:"symbol"`             // e.g. "BTC"
	PriceUSD          float64 `json:"price_usd"`
	PctChange1h       float64 `json:"pct_change_1h"`
	PctChange24h      float64 `json:"pct_change_24h"`
	PctChange7d       float64 `json:"pct_change_7d"`
	MarketCapUSD      float64 `json:"market_cap_usd"`
	Volume24hUSD      float64 `json:"volume_24h_usd"`
	CirculatingSupply float64 `json:"circulating_supply"`
	TotalSupply       float64 `json:"total_supply"`
	MaxSupply         float64 `json:"max_supply,omitempty"`
}

// GlobalStats represents aggregate market figures. A single instance is
// replaced wholesale on each successful fetch.
type GlobalStats struct {
	ActiveCoins       int     `json:"active_coins"`
	TotalMarketCapUSD float64 `json:"total_market_cap_usd"`
	Total24hVolumeUSD float64 `json:"total_24h_volume_usd"`
	BTCDominancePct   float64 `json:"btc_dominance_pct"` // 0 to 100
}

// PriceDelta classifies an asset's price movement relative to the immediately
// prior snapshot.
type PriceDelta string

const (
	DeltaUp        PriceDelta = "up"
	DeltaDown      PriceDelta = "down"
	DeltaUnchanged PriceDelta = "unchanged"
)

// ViewMode selects the dashboard display layout.
type ViewMode string

const (
	ModeTable ViewMode = "table"
	ModeCard  ViewMode = "card"
)

// Valid reports whether m is a known view mode.
func (m ViewMode) Valid() bool {
	return m == ModeTable || m == ModeCard
}

// ViewState is the user-controlled portion of the dashboard state.
type ViewState struct {
	SearchQuery  string   `json:"search_query"`
	CurrentPage  int      `json:"current_page"` // 1-based
	ItemsPerPage int      `json:"items_per_page"`
	Mode         ViewMode `json:"mode"`
}

// VisibleAsset pairs an asset with its price movement classification.
type VisibleAsset struct {
	Asset
	Delta PriceDelta `json:"delta"`
}

// DerivedView is the filtered, paginated, delta-annotated subset actually
// shown to the user. Recomputed on every fetch completion or ViewState
// mutation; never stored.
type DerivedView struct {
	Visible       []VisibleAsset `json:"visible"`
	TotalFiltered int            `json:"total_filtered"`
	TotalPages    int            `json:"total_pages"`
	Page          int            `json:"page"`
	Query         string         `json:"query"`
	Mode          ViewMode       `json:"mode"`
}

// NewsArticle represents a single crypto market news item.
type NewsArticle struct {
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Source    string    `json:"source"`
	Published time.Time `json:"published"`
	Summary   string    `json:"summary,omitempty"`
}
