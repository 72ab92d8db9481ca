package commands

import (
	"context"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/fuzzdash/pkg/config"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/feed"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/mcp"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/observability"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/session"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	var (
		configPath string
		feedURL    string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport while
following the fuzzing feed in the background. The server exposes the merged
session state as tools AI agents can discover and invoke:
  - fuzzdash_status:   per-test status and cumulative counters
  - fuzzdash_timeline: the merged report timeline for one test`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			if feedURL != "" {
				cfg.Feed.URL = feedURL
			}

			return runMCP(cobraCmd.Context(), cfg, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")
	cmd.Flags().StringVarP(&feedURL, "url", "u", "", "websocket feed URL (overrides config)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging to stderr")

	return cmd
}

func runMCP(ctx context.Context, cfg *config.Config, debug bool) error {
	providers, err := initObservability(cfg, observability.ModeMCP, debug)
	if err != nil {
		return err
	}

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	logger := providers.Logger

	var mu sync.Mutex

	sess := session.New(
		session.WithLogger(logger),
		session.WithTestOptions(testOptions(cfg)...),
	)

	client := feed.NewClient(cfg.Feed.URL,
		func(ev feed.Event) {
			mu.Lock()
			defer mu.Unlock()
			sess.Apply(ev)
		},
		feed.WithLogger(logger),
		feed.WithBackoff(cfg.Feed.ReconnectMinWait, cfg.Feed.ReconnectMaxWait),
		feed.WithConnectHook(func() {
			mu.Lock()
			defer mu.Unlock()
			sess.Clear()
		}),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		_ = client.Run(runCtx)
	}()

	srv := mcp.NewServer(mcp.ServerDeps{
		View:   sess,
		Locker: &mu,
		Logger: logger,
		Tracer: providers.Tracer,
	})

	return srv.Run(runCtx)
}
