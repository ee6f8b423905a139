package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/client"
	"github.com/Sternrassler/storefront-client/pkg/config"
	"github.com/Sternrassler/storefront-client/pkg/logging"
	"github.com/Sternrassler/storefront-client/pkg/tracing"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	serviceName     = "shopfeed"
	shutdownTimeout = 5 * time.Second
)

// app carries what every subcommand needs once flags and env are resolved.
type app struct {
	cfg             config.Config
	logger          zerolog.Logger
	setupTracing    func(ctx context.Context, serviceName, endpoint string) (func(context.Context) error, error)
	shutdownTracing func(context.Context) error
}

func newApp() *app {
	return &app{setupTracing: tracing.Setup}
}

// execute runs cmd and flushes tracing afterwards, also when cmd fails.
func (a *app) execute(ctx context.Context, cmd *cobra.Command) error {
	defer a.shutdown()
	return cmd.ExecuteContext(ctx)
}

func (a *app) shutdown() {
	if a.shutdownTracing == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Tracing shutdown failed")
	}
	a.shutdownTracing = nil
}

// newClient builds a storefront client, with the Redis cache when configured.
func (a *app) newClient() (*client.Client, func(), error) {
	rdb := a.cfg.Redis()
	c, err := client.New(a.cfg.Client(rdb))
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, nil, fmt.Errorf("create client: %w", err)
	}
	cleanup := func() {
		c.Close()
		if rdb != nil {
			rdb.Close()
		}
	}
	return c, cleanup, nil
}

func (a *app) rootCmd() *cobra.Command {
	var (
		baseURL   string
		logLevel  string
		pretty    bool
		redisAddr string
	)

	root := &cobra.Command{
		Use:   "shopfeed",
		Short: "Headless client for the storefront",
		Long: `shopfeed talks to a storefront the way its pages do.

Settings come from SHOPFEED_* environment variables; flags override them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate after the overrides so a flag can fix a bad env value.
			cfg, err := config.Parse()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("base-url") {
				cfg.BaseURL = baseURL
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("pretty") {
				cfg.LogPretty = pretty
			}
			if flags.Changed("redis-addr") {
				cfg.RedisAddr = redisAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a.cfg = cfg

			logCfg := cfg.Logging()
			logCfg.Output = cmd.ErrOrStderr()
			logging.Setup(logCfg)
			a.logger = logging.NewLogger(logging.ComponentShopfeed)

			shutdown, err := a.setupTracing(cmd.Context(), serviceName, cfg.OTelEndpoint)
			if err != nil {
				return fmt.Errorf("setup tracing: %w", err)
			}
			a.shutdownTracing = shutdown
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&baseURL, "base-url", "", "storefront root URL (SHOPFEED_BASE_URL)")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (SHOPFEED_LOG_LEVEL)")
	pf.BoolVar(&pretty, "pretty", false, "human-readable logs (SHOPFEED_LOG_PRETTY)")
	pf.StringVar(&redisAddr, "redis-addr", "", "Redis address for the fragment cache (SHOPFEED_REDIS_ADDR)")

	root.AddCommand(
		newCrawlCmd(a),
		newWishlistCmd(a),
		newCartCmd(a),
		newThemeCmd(a),
		newPhoneCmd(),
	)
	return root
}
