// Package cmd defines the linkplayer command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkplayer/internal/app"
	"github.com/JakeFAU/linkplayer/internal/config"
	"github.com/JakeFAU/linkplayer/internal/logging"
	"github.com/JakeFAU/linkplayer/internal/report"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what the root command runs. Tests inject a fake.
type App interface {
	Run(ctx context.Context) report.Summary
	Close()
}

// newApp is the application factory, replaceable in tests.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "linkplayer",
		Short: "Visit this node's share of a video link list in a headless browser.",
		Long: `linkplayer downloads a newline-delimited list of video URLs, keeps the
slice assigned to this CI node (CIRCLE_NODE_INDEX of CIRCLE_NODE_TOTAL) and
visits each link in Chrome: it scrolls, tries to start playback, waits and
saves a screenshot. Per-link failures are logged and skipped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			logger.Info("linkplayer starting",
				zap.Int("node_index", cfg.Node.Index),
				zap.Int("node_total", cfg.Node.Total),
				zap.Bool("headless", cfg.Browser.HeadlessEnabled()),
				zap.Bool("proxy", cfg.Browser.Proxy != ""),
				zap.String("storage", cfg.Storage.Provider),
			)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			appInstance.Run(cmd.Context())
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, err := resolveApp(cmd.Context()); err == nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file; environment variables override it")
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command until it finishes or the process is signalled.
// Only configuration and initialization errors exit non-zero.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "linkplayer: %v\n", err)
		os.Exit(1)
	}
}
