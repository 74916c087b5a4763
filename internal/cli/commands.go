package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Rajchodisetti/trading-bot/internal/config"
	"github.com/Rajchodisetti/trading-bot/internal/engine"
	"github.com/Rajchodisetti/trading-bot/internal/observ"
)

type rootFlags struct {
	configPath string
	symbols    []string
	testMode   bool
}

// NewRootCmd builds the tradebot command tree.
func NewRootCmd(version string) *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "tradebot",
		Short: "Paper-trading bot: SMA crossover with RSI filter",
		Long: `tradebot fetches daily bars for a fixed watchlist, generates SMA/RSI signals,
sizes positions by fixed-fractional risk and routes orders to a simulated or
Alpaca paper broker, keeping a local ledger of positions and equity.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			observ.SetVersion(version)
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML config file (env overrides still apply)")
	root.PersistentFlags().StringSliceVar(&flags.symbols, "symbols", nil, "comma-separated watchlist override")
	root.PersistentFlags().BoolVar(&flags.testMode, "test-mode", false, "use placeholder broker credentials")

	root.AddCommand(newRunCmd(flags))
	root.AddCommand(newOnceCmd(flags))
	root.AddCommand(newTradesCmd(flags))
	root.AddCommand(newVersionCmd(version))
	return root
}

func loadConfig(flags *rootFlags) (config.Root, error) {
	if flags.testMode {
		os.Setenv("TEST_MODE", "true")
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return cfg, err
	}
	if len(flags.symbols) > 0 {
		cfg.Symbols = config.NormalizeSymbols(flags.symbols)
	}
	return cfg, nil
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	var (
		interval    int
		maxLoops    int
		addr        string
		ignoreHours bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trading loop with the health server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("interval") {
				cfg.Loop.IntervalSeconds = interval
			}
			if cmd.Flags().Changed("max-loops") {
				cfg.Loop.MaxLoops = maxLoops
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			wcfg := a.workerConfig()
			wcfg.IgnoreHours = ignoreHours
			return runService(cmd.Context(), a, wcfg)
		},
	}
	cmd.Flags().IntVar(&interval, "interval", 0, "seconds between sweeps")
	cmd.Flags().IntVar(&maxLoops, "max-loops", 0, "stop after this many sweeps (0 = forever)")
	cmd.Flags().StringVar(&addr, "addr", "", "health server listen address")
	cmd.Flags().BoolVar(&ignoreHours, "ignore-hours", false, "sweep even when the market is closed")
	return cmd
}

func runService(ctx context.Context, a *app, wcfg engine.WorkerConfig) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           observ.NewMux(a.status),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		observ.Log("health_server_start", map[string]any{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			observ.Error("health_server_failed", err, map[string]any{"addr": srv.Addr})
		}
	}()

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go a.sweepCache(cleanupCtx, time.Hour)

	err := a.worker(wcfg).Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		observ.Error("health_server_shutdown", serr, nil)
	}
	return err
}

func newOnceCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "once [SYMBOL...]",
		Short: "Run a single sweep now, regardless of market hours",
		Long: `Run one cycle per symbol immediately and print the results as JSON.
Symbols given as arguments replace the configured watchlist.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Symbols = config.NormalizeSymbols(args)
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			wcfg := a.workerConfig()
			wcfg.IgnoreHours = true
			results, err := a.worker(wcfg).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, summarize(results))
		},
	}
}

type cycleSummary struct {
	Symbol      string   `json:"symbol"`
	Outcome     string   `json:"outcome"`
	Stage       string   `json:"stage"`
	Reason      string   `json:"reason,omitempty"`
	Direction   string   `json:"direction,omitempty"`
	Strength    float64  `json:"strength,omitempty"`
	Shares      int      `json:"shares,omitempty"`
	FillPrice   float64  `json:"fill_price,omitempty"`
	Equity      *float64 `json:"equity,omitempty"`
	RealizedPnL float64  `json:"realized_pnl,omitempty"`
	Attempts    int      `json:"attempts"`
	Error       string   `json:"error,omitempty"`
}

func summarize(results []engine.Result) []cycleSummary {
	out := make([]cycleSummary, 0, len(results))
	for _, r := range results {
		s := cycleSummary{
			Symbol:      r.Symbol,
			Outcome:     string(r.Outcome),
			Stage:       string(r.LastStage),
			Reason:      r.Reason,
			RealizedPnL: r.RealizedPnL,
			Attempts:    r.Attempts,
		}
		if r.Signal != nil {
			s.Direction = string(r.Signal.Direction)
			s.Strength = r.Signal.Strength
		}
		if r.Fill != nil {
			s.Shares = r.Fill.Quantity
			s.FillPrice = r.Fill.Price
		}
		if r.Equity != nil {
			eq := r.Equity.Equity
			s.Equity = &eq
		}
		if r.Err != nil {
			s.Error = r.Err.Error()
		}
		out = append(out, s)
	}
	return out
}

func newTradesCmd(flags *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List recorded trades, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			trades, err := a.trades(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, trades)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum trades to show")
	return cmd
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tradebot %s\n", version)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
