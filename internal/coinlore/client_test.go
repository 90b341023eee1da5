package coinlore

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const tickersBody = `{
  "data": [
    {"id": "90", "symbol": "BTC", "name": "Bitcoin", "rank": 1,
     "price_usd": "67000.12", "percent_change_24h": "1.5",
     "percent_change_1h": "0.1", "percent_change_7d": "-2.3",
     "market_cap_usd": "1320000000000", "volume24": 28000000000,
     "csupply": "19800000.00", "tsupply": "19800000", "msupply": "21000000"},
    {"id": "80", "symbol": "ETH", "name": "Ethereum", "rank": 2,
     "price_usd": "garbage", "percent_change_24h": "0.9",
     "percent_change_1h": "0.0", "percent_change_7d": "4.1",
     "market_cap_usd": "390000000000", "volume24": 12000000000,
     "csupply": "120000000", "tsupply": null, "msupply": ""}
  ],
  "info": {"coins_num": 13500, "time": 1724932800}
}`

const globalBody = `{
  "data": [
    {"coins_count": 13500, "active_markets": 29000,
     "total_mcap": 2340000000000.5, "total_volume": 89000000000,
     "btc_d": "54.47"}
  ]
}`

func testClient(baseURL string, maxAttempts int) *Client {
	return New(Config{
		BaseURL:     baseURL,
		Limit:       100,
		MaxAttempts: maxAttempts,
		BackoffBase: time.Millisecond, // keep retries fast in tests
	})
}

func TestFetchTickersParsesDefensively(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(tickersBody))
	}))
	defer srv.Close()

	assets, err := testClient(srv.URL, 1).FetchTickers(context.Background())
	if err != nil {
		t.Fatalf("FetchTickers: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("got %d assets, want 2", len(assets))
	}

	btc := assets[0]
	if btc.ID != "90" || btc.Rank != 1 || btc.Symbol != "BTC" {
		t.Fatalf("unexpected first asset: %+v", btc)
	}
	if btc.PriceUSD != 67000.12 {
		t.Fatalf("PriceUSD = %v, want 67000.12 (string field parsed)", btc.PriceUSD)
	}
	if btc.Volume24hUSD != 28000000000 {
		t.Fatalf("Volume24hUSD = %v, want numeric field parsed", btc.Volume24hUSD)
	}

	eth := assets[1]
	if !math.IsNaN(eth.PriceUSD) {
		t.Fatalf("PriceUSD = %v, want NaN for unparseable value", eth.PriceUSD)
	}
	if !math.IsNaN(eth.TotalSupply) {
		t.Fatalf("TotalSupply = %v, want NaN for null", eth.TotalSupply)
	}
	if !math.IsNaN(eth.MaxSupply) {
		t.Fatalf("MaxSupply = %v, want NaN for empty string", eth.MaxSupply)
	}
	// One bad field never fails the neighbouring ones.
	if eth.PctChange24h != 0.9 {
		t.Fatalf("PctChange24h = %v, want 0.9", eth.PctChange24h)
	}
}

func TestFetchGlobal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(globalBody))
	}))
	defer srv.Close()

	g, err := testClient(srv.URL, 1).FetchGlobal(context.Background())
	if err != nil {
		t.Fatalf("FetchGlobal: %v", err)
	}
	if g.ActiveCoins != 13500 {
		t.Fatalf("ActiveCoins = %d, want 13500", g.ActiveCoins)
	}
	if g.BTCDominancePct != 54.47 {
		t.Fatalf("BTCDominancePct = %v, want 54.47 (string field parsed)", g.BTCDominancePct)
	}
}

func TestRetrySucceedsOnFifthAttempt(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 5 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(globalBody))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 5).FetchGlobal(context.Background())
	if err != nil {
		t.Fatalf("expected success on 5th attempt, got %v", err)
	}
	if n := attempts.Load(); n != 5 {
		t.Fatalf("made %d attempts, want 5", n)
	}
}

func TestRetryExhaustionReturnsFetchError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 5).FetchGlobal(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error type = %T, want *FetchError", err)
	}
	if fe.Attempts != 5 {
		t.Fatalf("FetchError.Attempts = %d, want 5", fe.Attempts)
	}

	var httpErr *ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("FetchError should wrap the last underlying error, got %v", fe.Err)
	}

	// Never a 6th attempt.
	if n := attempts.Load(); n != 5 {
		t.Fatalf("made %d attempts, want exactly 5", n)
	}
}

func TestRetryBackoffSequence(t *testing.T) {
	base := 500 * time.Millisecond
	want := []time.Duration{
		500 * time.Millisecond,
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
	}
	for retry, w := range want {
		if got := backoffDelay(base, retry); got != w {
			t.Errorf("backoffDelay(retry=%d) = %v, want %v", retry, got, w)
		}
	}
	// Total wait across a 5-attempt exhaustion.
	var total time.Duration
	for retry := 0; retry < 4; retry++ {
		total += backoffDelay(base, retry)
	}
	if total != 7500*time.Millisecond {
		t.Fatalf("cumulative backoff = %v, want 7.5s", total)
	}
}

func TestRetryHonorsContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxAttempts: 5, BackoffBase: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.FetchGlobal(ctx)
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("cancel took %v, the backoff wait ignored the context", elapsed)
	}
}

func TestFetchMarketBothEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tickers/":
			w.Write([]byte(tickersBody))
		case "/api/global/":
			w.Write([]byte(globalBody))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	m, err := testClient(srv.URL, 1).FetchMarket(context.Background())
	if err != nil {
		t.Fatalf("FetchMarket: %v", err)
	}
	if len(m.Assets) != 2 {
		t.Fatalf("got %d assets, want 2", len(m.Assets))
	}
	if m.Global.ActiveCoins != 13500 {
		t.Fatalf("global not populated: %+v", m.Global)
	}
}

func TestFetchMarketFailsWhenOneEndpointFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tickers/" {
			w.Write([]byte(tickersBody))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 2).FetchMarket(context.Background())
	if err == nil {
		t.Fatal("expected failure when the global endpoint exhausts retries")
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error type = %T, want *FetchError", err)
	}
}
