package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/tradeloop/internal/app"
	"github.com/alanyoungcy/tradeloop/internal/catalog"
	"github.com/alanyoungcy/tradeloop/internal/config"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

const defaultConfigPath = "config.toml"

type rootOpts struct {
	configPath string
	mode       string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}
	root := &cobra.Command{
		Use:           "tradeloop",
		Short:         "Trading orchestration loop",
		Long:          "tradeloop scans a watchlist on the active venue, gates entries through the risk engine and manages open positions under the active risk profile.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd, opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "path to the TOML configuration file")
	root.PersistentFlags().StringVar(&opts.mode, "mode", "", "override mode (trade, paper, monitor, server)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(opts),
		newProfilesCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newRunCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the application in the configured mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd, opts)
		},
	}
}

// loadConfig reads the config file, applies flag overrides and validates.
// A missing default config file falls back to built-in defaults.
func loadConfig(cmd *cobra.Command, opts *rootOpts) (*config.Config, error) {
	path := opts.configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", opts.configPath, err)
	}
	if opts.mode != "" {
		cfg.Mode = opts.mode
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func runApp(cmd *cobra.Command, opts *rootOpts) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)
	logger.Info("tradeloop starting",
		slog.String("version", version),
		slog.String("mode", cfg.Mode),
		slog.String("config", opts.configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("tradeloop stopped")
	return nil
}

func newProfilesCmd(opts *rootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Inspect and switch risk profiles",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List risk profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, opts, func(ctx context.Context, c *catalog.Catalog) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ACTIVE\tID\tRISK\tMAX POS\tSTOP\tTARGET\tDAILY LOSS\tMAX OPEN")
				active := c.ActiveID()
				for _, p := range c.List() {
					mark := ""
					if p.ID == active {
						mark = "*"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%.1f%%\t%.1f%%\t%.1f%%\t%d\n",
						mark, p.ID, p.RiskLevel,
						p.MaxPositionSizePct*100, p.StopLossPct*100, p.TakeProfitPct*100,
						p.MaxDailyLossPct*100, p.MaxOpenPositions)
				}
				return w.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "activate <id>",
		Short: "Make a profile active; a running loop picks it up on its next tick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(cmd, opts, func(ctx context.Context, c *catalog.Catalog) error {
				if err := c.Activate(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "active profile: %s\n", c.ActiveID())
				return nil
			})
		},
	})

	var volatility, trend string
	var apply bool
	recommend := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend a profile for a market regime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, opts, func(ctx context.Context, c *catalog.Catalog) error {
				rec := c.Recommend(&domain.Regime{
					Volatility: domain.Volatility(volatility),
					Trend:      domain.Trend(trend),
				})
				fmt.Fprintf(cmd.OutOrStdout(), "recommended: %s\n%s\n", rec.ID, rec.Rationale)
				if apply && rec.ID != c.ActiveID() {
					if err := c.Activate(ctx, rec.ID); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "active profile: %s\n", rec.ID)
				}
				return nil
			})
		},
	}
	recommend.Flags().StringVar(&volatility, "volatility", "", "volatility bucket: low, medium, high")
	recommend.Flags().StringVar(&trend, "trend", "", "trend: bullish, bearish, neutral")
	recommend.Flags().BoolVar(&apply, "apply", false, "activate the recommended profile")
	cmd.AddCommand(recommend)

	return cmd
}

// withCatalog opens the profile catalog from the configured store, runs fn
// and releases the store. Log output goes to stderr so tables stay clean.
func withCatalog(cmd *cobra.Command, opts *rootOpts, fn func(context.Context, *catalog.Catalog) error) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	c, closeFn, err := app.OpenCatalog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, c)
}

func newConfigCmd(opts *rootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(config.RedactedConfig(cfg))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadConfig(cmd, opts); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration ok")
			return nil
		},
	})
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tradeloop %s\n", version)
		},
	}
}
