package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chess-vn/chessload/internal/config"
	"github.com/chess-vn/chessload/internal/performance/engine"
	"github.com/chess-vn/chessload/internal/performance/executor"
	"github.com/chess-vn/chessload/internal/performance/metrics"
	"github.com/chess-vn/chessload/internal/performance/output"
)

type runOptions struct {
	configFile     string
	stages         string
	thinkTime      time.Duration
	summaryExport  string
	metricsAddr    string
	updateInterval time.Duration
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the load scenario",
		Long: `Run the ramping-VUs scenario against the chess API.

Without --config the built-in api_1000_users scenario is used: ramp to 1000
VUs over 5m, hold for 10m, ramp down over 5m, 10s think-time.

Examples:
  BASE_URL=https://api.example.com TOKEN="$JWT" chessload run
  chessload run --config scenarios/api_1000_users.yaml --summary-export out.json
  chessload run --stages "30s:10,1m:10,30s:0" --think-time 2s

Exit codes: 0 when every threshold passed, 99 when a threshold was crossed,
1 on configuration or runtime errors.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, root, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Scenario file (YAML or JSON)")
	flags.StringVar(&opts.stages, "stages", "", `Override the stages, e.g. "5m:1000,10m:1000,5m:0"`)
	flags.DurationVar(&opts.thinkTime, "think-time", 0, "Override the pause after every iteration")
	flags.String("base-url", "", "Base URL of the chess API (overrides "+config.EnvBaseURL+")")
	flags.String("token", "", "Authorization header value (overrides "+config.EnvToken+")")
	flags.StringVar(&opts.summaryExport, "summary-export", "", "Write the run summary as JSON to this file")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464")
	flags.DurationVar(&opts.updateInterval, "update-interval", time.Second, "Live progress refresh interval")

	return cmd
}

func runScenario(cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	cfg, err := buildScenario(cmd, opts)
	if err != nil {
		return err
	}

	var exporter *metrics.Exporter
	if opts.metricsAddr != "" {
		exporter = metrics.NewExporter()
		_, stopMetrics, err := serveMetrics(opts.metricsAddr, exporter, root.logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	eng, err := engine.New(cfg, engine.Options{
		Logger:   root.logger,
		Exporter: exporter,
	})
	if err != nil {
		return err
	}
	cfg = eng.GetConfig()

	console := output.NewConsoleOutput(output.ConsoleOutputConfig{
		TestName: cfg.Name,
		Writer:   root.out,
		Quiet:    root.quiet,
		NoColor:  root.noColor,
	})
	console.PrintHeader(output.HeaderInfo{
		BaseURL:   cfg.Settings.BaseURL,
		Endpoints: cfg.Endpoints,
		Stages:    headerStages(cfg),
		ThinkTime: time.Duration(cfg.ThinkTime),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	type outcome struct {
		result *engine.TestResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := eng.Run(ctx)
		done <- outcome{result, err}
	}()

	interval := opts.updateInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var res outcome
progressLoop:
	for {
		select {
		case res = <-done:
			break progressLoop
		case <-ticker.C:
			if !root.quiet && eng.IsRunning() {
				console.Render(output.StatsFromRun(eng.GetMetrics(), eng.GetStats(), eng.GetProgress()))
			}
		}
	}

	if res.result == nil {
		return res.err
	}

	console.PrintSummary(res.result)

	if opts.summaryExport != "" {
		if err := output.WriteSummaryFile(opts.summaryExport, res.result); err != nil {
			return err
		}
		root.logger.WithField("path", opts.summaryExport).Info("summary exported")
	}

	if res.err != nil {
		return res.err
	}
	if !res.result.Passed {
		return ErrThresholdsCrossed
	}
	return nil
}

// buildScenario layers the scenario: file or built-in defaults, then flag
// overrides, then BASE_URL and TOKEN (or --base-url and --token).
func buildScenario(cmd *cobra.Command, opts *runOptions) (*config.ScenarioConfig, error) {
	cfg := config.DefaultScenario()
	if opts.configFile != "" {
		loaded, err := config.LoadScenario(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load scenario: %w", err)
		}
		cfg = loaded
	}

	if opts.stages != "" {
		stages, err := parseStages(opts.stages)
		if err != nil {
			return nil, fmt.Errorf("invalid stages format: %w", err)
		}
		cfg.Stages = stages
	}
	if cmd.Flags().Changed("think-time") {
		cfg.ThinkTime = config.Duration(opts.thinkTime)
	}

	env, err := config.NewEnv(cmd.Flags())
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg, env)

	return cfg, nil
}

// parseStages parses stages from CLI format "30s:10,2m:10,30s:0".
func parseStages(s string) ([]config.StageConfig, error) {
	var stages []config.StageConfig

	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		colonIdx := strings.LastIndex(part, ":")
		if colonIdx == -1 {
			return nil, fmt.Errorf("stage %d: expected 'duration:target' format, got '%s'", i+1, part)
		}

		durationStr := part[:colonIdx]
		targetStr := part[colonIdx+1:]

		d, err := config.ParseDurationString(durationStr)
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid duration '%s': %w", i+1, durationStr, err)
		}

		target, err := strconv.Atoi(targetStr)
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid target '%s': %w", i+1, targetStr, err)
		}
		if target < 0 {
			return nil, fmt.Errorf("stage %d: target must be non-negative, got %d", i+1, target)
		}

		stages = append(stages, config.StageConfig{Duration: config.Duration(d), Target: target})
	}

	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}

	return stages, nil
}

func headerStages(cfg *config.ScenarioConfig) []executor.Stage {
	stages := make([]executor.Stage, len(cfg.Stages))
	for i, s := range cfg.Stages {
		stages[i] = executor.Stage{Duration: time.Duration(s.Duration), Target: s.Target}
	}
	return stages
}

// serveMetrics exposes the exporter on addr. It returns the bound address
// and a func that shuts the listener down.
func serveMetrics(addr string, exporter *metrics.Exporter, logger log.FieldLogger) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	r := chi.NewRouter()
	r.Handle("/metrics", exporter.Handler())

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server stopped")
		}
	}()
	logger.WithField("addr", ln.Addr().String()).Info("serving metrics")

	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
