package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/fuzzdash/pkg/config"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/dashboard"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/feed"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/observability"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/session"
)

const renderArgCount = 1

// ErrEmptyEventLog is returned when the event log contains no events.
var ErrEmptyEventLog = errors.New("event log contains no events")

// NewRenderCommand creates the render subcommand.
func NewRenderCommand() *cobra.Command {
	var (
		configPath string
		outputPath string
		showTable  bool
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "render <event-log>",
		Short: "Render a recorded event log as an HTML dashboard",
		Long: `Render replays a recorded event log through the linearization engine and
writes the resulting dashboard once. The log is the LZ4-framed file produced
by "fuzzdash watch --record".`,
		Args:          cobra.ExactArgs(renderArgCount),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			if outputPath != "" {
				cfg.Dashboard.OutputPath = outputPath
			}

			return runRender(cfg, args[0], debug, showTable)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "HTML output path (overrides config)")
	cmd.Flags().BoolVar(&showTable, "table", false, "print a status table after rendering")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}

func runRender(cfg *config.Config, logPath string, debug, showTable bool) error {
	providers, err := initObservability(cfg, observability.ModeRender, debug)
	if err != nil {
		return err
	}

	defer func() {
		_ = providers.Shutdown(context.Background())
	}()

	logger := providers.Logger

	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}

	defer file.Close()

	sess := session.New(
		session.WithLogger(logger),
		session.WithTestOptions(testOptions(cfg)...),
	)

	applied := 0

	replayErr := feed.NewReplayer(file).Replay(func(ev feed.Event) {
		sess.Apply(ev)
		applied++
	})
	if replayErr != nil {
		return fmt.Errorf("replay event log: %w", replayErr)
	}

	if applied == 0 {
		return ErrEmptyEventLog
	}

	tests := sess.Tests()

	err = writeDashboard(cfg.Dashboard.OutputPath, cfg.Dashboard.Title, tests)
	if err != nil {
		return err
	}

	if showTable {
		dashboard.StatusTable(os.Stdout, tests, time.Now().UTC())
	}

	logger.Info("event log rendered",
		"events", applied,
		"tests", len(tests),
		"output", cfg.Dashboard.OutputPath)

	return nil
}
