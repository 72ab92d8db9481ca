package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/fuzzdash/pkg/config"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/dashboard"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/feed"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/linearize"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/observability"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/session"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/testrun"
)

const (
	outputFilePerm      = 0o644
	metricsReadTimeout  = 5 * time.Second
	metricsIdleTimeout  = 30 * time.Second
	metricsShutdownWait = 2 * time.Second
)

// NewWatchCommand creates the watch subcommand.
func NewWatchCommand() *cobra.Command {
	var (
		configPath string
		feedURL    string
		outputPath string
		recordPath string
		showTable  bool
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a live fuzzing feed and render the dashboard continuously",
		Long: `Watch connects to the fuzzing transport's websocket feed, merges every
worker's report timeline into one coherent sequence per test, and rewrites
the HTML dashboard on a fixed interval. The connection is retried with
backoff; on every reconnect the session state is rebuilt from the feed's
bulk snapshot so nothing is double-counted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			if feedURL != "" {
				cfg.Feed.URL = feedURL
			}

			if outputPath != "" {
				cfg.Dashboard.OutputPath = outputPath
			}

			if recordPath != "" {
				cfg.Feed.RecordPath = recordPath
			}

			return runWatch(cfg, debug, showTable)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")
	cmd.Flags().StringVarP(&feedURL, "url", "u", "", "websocket feed URL (overrides config)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "HTML output path (overrides config)")
	cmd.Flags().StringVar(&recordPath, "record", "", "append all feed events to an event log at this path")
	cmd.Flags().BoolVar(&showTable, "table", false, "print a status table on every refresh")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}

//nolint:funlen // sequential wiring of the watch loop's components
func runWatch(cfg *config.Config, debug, showTable bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := initObservability(cfg, observability.ModeWatch, debug)
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
	meter := providers.Meter

	var metricsSrv *http.Server

	if cfg.Metrics.Enabled {
		handler, mp, promErr := observability.PrometheusHandler()
		if promErr != nil {
			return promErr
		}

		meter = mp.Meter("fuzzdash")
		metricsSrv = startMetricsServer(cfg.Metrics, handler, logger)

		defer stopMetricsServer(metricsSrv, logger)
	}

	metrics, err := observability.NewEngineMetrics(meter)
	if err != nil {
		return err
	}

	var mu sync.Mutex

	sess := session.New(
		session.WithLogger(logger),
		session.WithTestOptions(testOptions(cfg)...),
	)

	recorder, closeRecorder, err := openRecorder(cfg.Feed.RecordPath)
	if err != nil {
		return err
	}

	defer closeRecorder()

	handler := func(ev feed.Event) {
		mu.Lock()
		defer mu.Unlock()

		sess.Apply(ev)
		metrics.RecordEvent(ctx, string(ev.Kind()))

		if recorder != nil {
			recordErr := recorder.Record(ev)
			if recordErr != nil {
				logger.Warn("event log write failed", "error", recordErr)
			}
		}
	}

	client := feed.NewClient(cfg.Feed.URL, handler,
		feed.WithLogger(logger),
		feed.WithBackoff(cfg.Feed.ReconnectMinWait, cfg.Feed.ReconnectMaxWait),
		feed.WithConnectHook(func() {
			mu.Lock()
			defer mu.Unlock()
			sess.Clear()
		}),
	)

	go func() {
		_ = client.Run(ctx)
	}()

	logger.Info("watching feed",
		slog.String("url", cfg.Feed.URL),
		slog.String("output", cfg.Dashboard.OutputPath),
		slog.Duration("refresh", cfg.Dashboard.RefreshInterval))

	return refreshLoop(ctx, cfg, sess, &mu, metrics, logger, showTable)
}

func testOptions(cfg *config.Config) []testrun.Option {
	opts := []testrun.Option{testrun.WithStaleAfter(cfg.Engine.StalenessThreshold)}
	if cfg.Engine.Checked {
		opts = append(opts, testrun.WithChecked())
	}

	return opts
}

// refreshLoop rewrites the dashboard on every tick until the context ends,
// then renders one final time so the output reflects the complete session.
func refreshLoop(
	ctx context.Context,
	cfg *config.Config,
	sess *session.Session,
	mu *sync.Mutex,
	metrics *observability.EngineMetrics,
	logger *slog.Logger,
	showTable bool,
) error {
	ticker := time.NewTicker(cfg.Dashboard.RefreshInterval)
	defer ticker.Stop()

	var prevStats linearize.Stats

	for {
		select {
		case <-ctx.Done():
			return refresh(ctx, cfg, sess, mu, metrics, logger, &prevStats, showTable)
		case <-ticker.C:
			err := refresh(ctx, cfg, sess, mu, metrics, logger, &prevStats, showTable)
			if err != nil {
				logger.Warn("dashboard refresh failed", "error", err)
			}
		}
	}
}

func refresh(
	ctx context.Context,
	cfg *config.Config,
	sess *session.Session,
	mu *sync.Mutex,
	metrics *observability.EngineMetrics,
	logger *slog.Logger,
	prevStats *linearize.Stats,
	showTable bool,
) error {
	mu.Lock()
	tests := sess.Tests()
	stats := sess.Stats()
	mu.Unlock()

	metrics.RecordEngine(ctx, statsDelta(*prevStats, stats))
	*prevStats = stats

	start := time.Now()

	err := writeDashboard(cfg.Dashboard.OutputPath, cfg.Dashboard.Title, tests)
	if err != nil {
		return err
	}

	metrics.RecordRender(ctx, time.Since(start))

	if showTable {
		dashboard.StatusTable(os.Stdout, tests, time.Now().UTC())
	}

	logger.Debug("dashboard refreshed",
		slog.Int("tests", len(tests)),
		slog.Int64("admitted", stats.Admitted))

	return nil
}

func statsDelta(prev, cur linearize.Stats) observability.EngineStats {
	return observability.EngineStats{
		Ingested:    cur.Ingested - prev.Ingested,
		Admitted:    cur.Admitted - prev.Admitted,
		Splices:     cur.Splices - prev.Splices,
		Repairs:     cur.Repairs - prev.Repairs,
		Truncations: cur.Truncations - prev.Truncations,
		Violations:  cur.Violations - prev.Violations,
	}
}

// writeDashboard renders to a sibling temp file and renames it over the
// target so readers never observe a half-written page.
func writeDashboard(path, title string, tests []*testrun.Test) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".fuzzdash-*.html")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}

	renderErr := dashboard.RenderPage(tmp, title, tests)
	closeErr := tmp.Close()

	if renderErr != nil || closeErr != nil {
		os.Remove(tmp.Name())

		return errors.Join(renderErr, closeErr)
	}

	chmodErr := os.Chmod(tmp.Name(), outputFilePerm)
	if chmodErr != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("chmod output: %w", chmodErr)
	}

	renameErr := os.Rename(tmp.Name(), path)
	if renameErr != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("replace output: %w", renameErr)
	}

	return nil
}

func openRecorder(path string) (*feed.Recorder, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, outputFilePerm)
	if err != nil {
		return nil, nil, fmt.Errorf("open event log: %w", err)
	}

	return feed.NewRecorder(file), func() { _ = file.Close() }, nil
}

func startMetricsServer(cfg config.MetricsConfig, handler http.Handler, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           mux,
		ReadHeaderTimeout: metricsReadTimeout,
		IdleTimeout:       metricsIdleTimeout,
	}

	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	logger.Info("serving metrics", slog.String("addr", srv.Addr))

	return srv
}

func stopMetricsServer(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownWait)
	defer cancel()

	err := srv.Shutdown(ctx)
	if err != nil {
		logger.Warn("metrics server shutdown failed", "error", err)
	}
}
