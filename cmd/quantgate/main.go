package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"quantgate/internal/app"
	"quantgate/internal/config"
	"quantgate/internal/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "quantgate",
	Short:        "Quantitative scan, gate evaluation and exit tracking for equity watchlists",
	SilenceUsage: true,
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan cycle over the watchlist and persist ranked results",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		report, err := a.RunScan(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		for _, r := range report.Results {
			fmt.Printf("%3d  %-8s %6.1f  %s\n", r.Rank, r.Ticker, r.PriorityScore, r.Entry.Timing)
		}
		if len(report.Skipped) > 0 {
			fmt.Printf("skipped %d tickers\n", len(report.Skipped))
		}
		return nil
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <ticker>",
	Short: "Run the four-gate evaluation and position sizing for one ticker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		ticker := strings.ToUpper(args[0])
		ev, sizing, err := a.Evaluate(ctx, ticker, time.Now().UTC())
		if err != nil {
			return err
		}
		fmt.Printf("%s  decision=%s confidence=%.1f\n", ev.Ticker, ev.Decision, ev.Confidence)
		for _, g := range ev.Gates {
			mark := "FAIL"
			if g.Passed {
				mark = "pass"
			}
			fmt.Printf("  %-12s %5.1f / %4.1f  %s  %s\n", g.Name, g.Score, g.ThresholdUsed, mark, g.Reasoning)
		}
		fmt.Printf("position: %.2f%% (base %.1f%%)\n", sizing.PositionPct, sizing.BasePct)
		fmt.Printf("expected: price %.1f%% + dividend %.1f%%\n", sizing.PriceAppreciationPct, sizing.DividendYieldPct)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, daily scan scheduler and live exit tracking",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()
		return a.Serve(ctx)
	},
}

func buildApp() (*app.App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return app.Build(cfg)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func main() {
	if err := godotenv.Load(); err == nil {
		logger.Debugf("loaded environment from .env")
	}
	defaultCfg := os.Getenv("QUANTGATE_CONFIG")
	if defaultCfg == "" {
		defaultCfg = "configs/config.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultCfg, "path to config file")
	rootCmd.AddCommand(scanCmd, evaluateCmd, serveCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
