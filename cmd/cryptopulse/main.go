// CryptoPulse is a live cryptocurrency market dashboard.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fteduche/cryptopluse/api"
	"github.com/fteduche/cryptopluse/internal/coinlore"
	"github.com/fteduche/cryptopluse/internal/config"
	"github.com/fteduche/cryptopluse/pkg/format"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cryptopulse",
	Short: "CryptoPulse - live cryptocurrency market dashboard",
	Long: `CryptoPulse serves a self-hosted cryptocurrency market dashboard:
a ranked asset table with search, pagination, card/table views, price
movement indicators, and periodic auto-refresh from the CoinLore API.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(snapshotCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("CryptoPulse %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	Long: `Start the HTTP server: the embedded web dashboard at /, the JSON
API under /api/v1, and a WebSocket stream of view updates at /api/v1/ws.
The market snapshot is fetched on startup and refreshed on a fixed interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(cfg.Logging)
		slog.SetDefault(logger)

		srv, err := api.NewServer(cfg, logger)
		if err != nil {
			return err
		}

		// Initial load. A failure is not fatal: the server still starts,
		// the UI shows the blocking error banner, and manual refresh or
		// the next scheduled cycle can recover.
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		if err := srv.Dashboard().Refresh(ctx, false); err != nil {
			logger.Error("initial market load failed", "err", err)
		}
		cancel()

		srv.Dashboard().StartAutoRefresh(time.Duration(cfg.Refresh.IntervalSec) * time.Second)

		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		logger.Info("starting dashboard server", "addr", addr)
		return srv.ListenAndServe(addr)
	},
}

// --- Snapshot Command ---

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Fetch one market snapshot and print it",
	Long:  "One-shot fetch of the current market snapshot, printed as a table to stdout.",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client := coinlore.New(coinlore.Config{
			BaseURL:     cfg.Provider.BaseURL,
			Limit:       cfg.Provider.Limit,
			MaxAttempts: cfg.Provider.MaxAttempts,
			BackoffBase: time.Duration(cfg.Provider.BackoffBaseMs) * time.Millisecond,
			RatePerSec:  cfg.Provider.RatePerSec,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		m, err := client.FetchMarket(ctx)
		if err != nil {
			return err
		}

		g := m.Global
		fmt.Printf("Coins: %d   Market Cap: %s   24h Volume: %s   BTC Dominance: %s\n\n",
			g.ActiveCoins,
			format.CompactUSD(g.TotalMarketCapUSD),
			format.CompactUSD(g.Total24hVolumeUSD),
			format.Pct(g.BTCDominancePct))

		fmt.Printf("%-5s %-20s %-8s %14s %10s %10s %14s\n",
			"RANK", "NAME", "SYMBOL", "PRICE", "24H", "7D", "MARKET CAP")
		assets := m.Assets
		if limit > 0 && len(assets) > limit {
			assets = assets[:limit]
		}
		for _, a := range assets {
			fmt.Printf("%-5d %-20s %-8s %14s %10s %10s %14s\n",
				a.Rank, a.Name, a.Symbol,
				format.USD(a.PriceUSD),
				format.Pct(a.PctChange24h),
				format.Pct(a.PctChange7d),
				format.CompactUSD(a.MarketCapUSD))
		}
		return nil
	},
}

func init() {
	snapshotCmd.Flags().Int("limit", 20, "number of rows to print")
}

// newLogger builds the process logger from config.
func newLogger(lc config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: lc.SlogLevel()}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
