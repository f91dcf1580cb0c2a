package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/riskibarqy/tm-alerts/internal/app"
	"github.com/riskibarqy/tm-alerts/internal/config"
	"github.com/riskibarqy/tm-alerts/internal/observability"
	"github.com/riskibarqy/tm-alerts/internal/platform/logging"
	"github.com/spf13/cobra"
)

const observabilityShutdownTimeout = 5 * time.Second

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "notifier",
		Short:         "Daily Trackmania leaderboard notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(cycleCmd())
	root.AddCommand(flushCmd())
	root.AddCommand(deadLettersCmd())
	return root
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the internal API, queue workers and periodic triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(cfg *config.Config) {
				if addr != "" {
					cfg.HTTPAddr = addr
				}
			}, func(ctx context.Context, c *app.Container) error {
				return c.Serve(ctx)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: HTTP_ADDR)")
	return cmd
}

func cycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Queue today's phase jobs and, with the local queue, run them to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(nil, func(ctx context.Context, c *app.Container) error {
				result, err := c.RunCycle(ctx)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
}

func flushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Send pending emails whose compose window has closed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(nil, func(ctx context.Context, c *app.Container) error {
				result, err := c.Composer.FlushExpired(ctx)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
}

func deadLettersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "Inspect jobs that used up their deliveries",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List archived dead letters, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			return withContainer(nil, func(ctx context.Context, c *app.Container) error {
				items, err := c.Consumer.ListDeadLetters(ctx, limit)
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "max dead letters to show")

	cmd.AddCommand(list)
	return cmd
}

// withContainer loads config, starts observability and builds the container
// around run. The context is cancelled on SIGINT or SIGTERM.
func withContainer(adjust func(*config.Config), run func(context.Context, *app.Container) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if adjust != nil {
		adjust(&cfg)
	}

	logger := logging.NewJSON(cfg.LogLevel,
		"service", cfg.ServiceName,
		"version", cfg.ServiceVersion,
		"env", cfg.AppEnv,
	)
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.Start(cfg, logger)
	if err != nil {
		return fmt.Errorf("start observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), observabilityShutdownTimeout)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.Error("observability shutdown failed", "error", err)
		}
	}()

	c, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("close app failed", "error", err)
		}
	}()

	return run(ctx, c)
}

func printJSON(v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}
