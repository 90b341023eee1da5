// Package coinlore implements the CoinLore market data provider client.
//
// It exposes two read-only endpoints, the ranked ticker list and the global
// market aggregates, behind a retrying fetcher with exponential backoff.
// Numeric fields arrive from the provider as strings and are parsed
// defensively: a non-numeric value becomes NaN instead of failing the fetch.
package coinlore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fteduche/cryptopluse/pkg/models"
)

// DefaultBaseURL is the public CoinLore API root.
const DefaultBaseURL = "https://api.coinlore.net"

const (
	defaultMaxAttempts = 5
	defaultBackoffBase = 500 * time.Millisecond
	defaultLimit       = 100
)

// FetchError is returned after all retry attempts against an endpoint have
// been exhausted. It wraps the last underlying error.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrHTTP wraps a non-success HTTP response.
type ErrHTTP struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// Config holds provider client settings.
type Config struct {
	BaseURL     string
	Limit       int           // number of tickers to request
	MaxAttempts int           // total attempts per logical fetch
	BackoffBase time.Duration // delay before the 2nd attempt; doubles each retry
	RatePerSec  int           // token-bucket refill rate; 0 disables limiting
}

// Client fetches market data from CoinLore.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *RateLimiter
}

// New creates a provider client. Zero-valued config fields fall back to
// defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}

	c := &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	if cfg.RatePerSec > 0 {
		c.limiter = NewRateLimiter(cfg.RatePerSec, time.Second)
	}
	return c
}

// Market is the combined result of one full provider round-trip.
type Market struct {
	Assets []models.Asset
	Global models.GlobalStats
}

// FetchMarket retrieves the ticker list and global stats concurrently.
// Both endpoints must succeed; each fetch retries independently and the
// first exhausted one is reported.
func (c *Client) FetchMarket(ctx context.Context) (*Market, error) {
	var m Market

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		assets, err := c.FetchTickers(gctx)
		if err != nil {
			return err
		}
		m.Assets = assets
		return nil
	})
	g.Go(func() error {
		global, err := c.FetchGlobal(gctx)
		if err != nil {
			return err
		}
		m.Global = global
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &m, nil
}

// FetchTickers returns the top-ranked assets in provider rank order.
func (c *Client) FetchTickers(ctx context.Context) ([]models.Asset, error) {
	url := fmt.Sprintf("%s/api/tickers/?start=0&limit=%d", c.cfg.BaseURL, c.cfg.Limit)

	var resp tickersResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	assets := make([]models.Asset, 0, len(resp.Data))
	for _, t := range resp.Data {
		assets = append(assets, t.toModel())
	}
	return assets, nil
}

// FetchGlobal returns the aggregate market figures.
func (c *Client) FetchGlobal(ctx context.Context) (models.GlobalStats, error) {
	url := c.cfg.BaseURL + "/api/global/"

	var resp globalResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return models.GlobalStats{}, err
	}
	if len(resp.Data) == 0 {
		return models.GlobalStats{}, &FetchError{
			URL:      url,
			Attempts: c.cfg.MaxAttempts,
			Err:      fmt.Errorf("empty global stats response"),
		}
	}

	g := resp.Data[0]
	return models.GlobalStats{
		ActiveCoins:       g.CoinsCount,
		TotalMarketCapUSD: float64(g.TotalMcap),
		Total24hVolumeUSD: float64(g.TotalVolume),
		BTCDominancePct:   float64(g.BTCDominance),
	}, nil
}

// getJSON performs a GET with retry and exponential backoff. Attempts are
// sequential; the delay before attempt n+1 is BackoffBase << n. A context
// cancellation aborts the wait and surfaces as a FetchError.
func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	var lastErr error

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoffDelay(c.cfg.BackoffBase, attempt-1)):
			case <-ctx.Done():
				return &FetchError{URL: url, Attempts: attempt, Err: ctx.Err()}
			}
		}

		if err := c.doGet(ctx, url, v); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return &FetchError{URL: url, Attempts: attempt + 1, Err: lastErr}
			}
			continue
		}
		return nil
	}

	return &FetchError{URL: url, Attempts: c.cfg.MaxAttempts, Err: lastErr}
}

// doGet is a single request attempt.
func (c *Client) doGet(ctx context.Context, url string, v any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &ErrHTTP{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// backoffDelay returns base * 2^retry, so retries wait base, 2·base, 4·base...
func backoffDelay(base time.Duration, retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	if retry > 30 {
		retry = 30
	}
	return base * time.Duration(1<<retry)
}

// --- Wire types ---

// flexFloat accepts a JSON number, a numeric string, or null. Anything else
// parses to NaN rather than failing the whole payload.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*f = flexFloat(math.NaN())
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			*f = flexFloat(math.NaN())
			return nil
		}
		s = unquoted
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = flexFloat(math.NaN())
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// flexInt behaves like flexFloat for integer fields; garbage parses to 0.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var ff flexFloat
	if err := ff.UnmarshalJSON(data); err != nil {
		return err
	}
	if math.IsNaN(float64(ff)) {
		*f = 0
		return nil
	}
	*f = flexInt(ff)
	return nil
}

type tickersResponse struct {
	Data []ticker `json:"data"`
	Info struct {
		CoinsNum int   `json:"coins_num"`
		Time     int64 `json:"time"`
	} `json:"info"`
}

type ticker struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Name        string    `json:"name"`
	Rank        flexInt   `json:"rank"`
	PriceUSD    flexFloat `json:"price_usd"`
	PctChange1h flexFloat `json:"percent_change_1h"`
	PctChange24 flexFloat `json:"percent_change_24h"`
	PctChange7d flexFloat `json:"percent_change_7d"`
	MarketCap   flexFloat `json:"market_cap_usd"`
	Volume24    flexFloat `json:"volume24"`
	CSupply     flexFloat `json:"csupply"`
	TSupply     flexFloat `json:"tsupply"`
	MSupply     flexFloat `json:"msupply"`
}

func (t ticker) toModel() models.Asset {
	return models.Asset{
		ID:                t.ID,
		Rank:              int(t.Rank),
		Name:              t.Name,
		Symbol:            t.Symbol,
		PriceUSD:          float64(t.PriceUSD),
		PctChange1h:       float64(t.PctChange1h),
		PctChange24h:      float64(t.PctChange24),
		PctChange7d:       float64(t.PctChange7d),
		MarketCapUSD:      float64(t.MarketCap),
		Volume24hUSD:      float64(t.Volume24),
		CirculatingSupply: float64(t.CSupply),
		TotalSupply:       float64(t.TSupply),
		MaxSupply:         float64(t.MSupply),
	}
}

type globalResponse struct {
	Data []globalStats `json:"data"`
}

type globalStats struct {
	CoinsCount    int       `json:"coins_count"`
	ActiveMarkets int       `json:"active_markets"`
	TotalMcap     flexFloat `json:"total_mcap"`
	TotalVolume   flexFloat `json:"total_volume"`
	BTCDominance  flexFloat `json:"btc_d"`
}

// --- Rate limiter ---

// RateLimiter provides simple token-bucket rate limiting.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

// NewRateLimiter creates a rate limiter that allows maxTokens requests
// per refillRate duration.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()
		if rl.tokens > 0 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
			// Check again after a short sleep.
		}
	}
}

// refill adds tokens based on elapsed time. Must be called with mu held.
func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill)
	if elapsed >= rl.refillRate {
		periods := int(elapsed / rl.refillRate)
		rl.tokens += periods
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = rl.lastRefill.Add(time.Duration(periods) * rl.refillRate)
	}
}
