// Package engine provides the main orchestrator for a chessload run.
package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/chess-vn/chessload/internal/config"
	"github.com/chess-vn/chessload/internal/performance"
	"github.com/chess-vn/chessload/internal/performance/executor"
	"github.com/chess-vn/chessload/internal/performance/metrics"
	"github.com/chess-vn/chessload/internal/performance/threshold"
	"github.com/chess-vn/chessload/internal/scenario"
)

// Engine is the main orchestrator for a scenario run.
//
// It coordinates:
//   - Configuration defaults and validation
//   - The ramping-vus executor and its VU scheduler
//   - Metrics collection and aggregation
//   - Threshold evaluation
//
// Example usage:
//
//	cfg, _ := config.LoadScenario("api_1000_users.yaml")
//	eng, _ := engine.New(cfg, engine.Options{})
//	result, _ := eng.Run(context.Background())
//	fmt.Printf("Test passed: %v\n", result.Passed)
type Engine struct {
	config *config.ScenarioConfig
	opts   Options

	runID string
	log   *logrus.Entry

	checks     []scenario.Check
	thresholds []*threshold.Threshold
	httpConfig performance.HTTPClientConfig

	// Set by Run
	metricsEngine *metrics.Engine
	executor      *executor.RampingVUs
	mu            sync.RWMutex

	startTime time.Time
	running   bool
}

// Options tune a run beyond what the scenario file describes.
type Options struct {
	// Logger receives lifecycle events. Defaults to a discarding logger.
	Logger logrus.FieldLogger

	// Exporter, when set, mirrors every sample into Prometheus collectors.
	Exporter *metrics.Exporter

	// ControlInterval overrides how often the VU target is re-evaluated.
	ControlInterval time.Duration

	// MetricsConfig overrides the metrics engine defaults.
	MetricsConfig *metrics.EngineConfig
}

// TestResult contains the complete run results.
type TestResult struct {
	RunID     string        `json:"runId"`
	Name      string        `json:"name"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	// Interrupted is set when the run was cancelled before its stages ended
	Interrupted bool `json:"interrupted"`

	Executor *executor.Stats `json:"executor"`

	Metrics      *metrics.Snapshot       `json:"metrics"`
	Endpoints    []metrics.EndpointStats `json:"endpoints"`
	Checks       []metrics.CheckStats    `json:"checks"`
	TimeSeries   []*metrics.TimeBucket   `json:"timeSeries,omitempty"`
	PhaseHistory []metrics.PhaseChange   `json:"phaseHistory,omitempty"`

	// Threshold evaluation
	Passed     bool               `json:"passed"`
	Thresholds []threshold.Result `json:"thresholds,omitempty"`
}

// New creates an engine for cfg. Defaults are applied to cfg in place before
// it is validated.
func New(cfg *config.ScenarioConfig, opts Options) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("invalid configuration: no scenario")
	}

	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	thresholds, errs := threshold.ParseAll(cfg.Thresholds)
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errs[0])
	}

	checks := make([]scenario.Check, 0, len(cfg.Checks))
	for i, c := range cfg.Checks {
		check, err := scenario.NewCheck(c.Name, c.Type, c.Condition, string(c.Value))
		if err != nil {
			return nil, fmt.Errorf("invalid configuration: checks[%d]: %w", i, err)
		}
		checks = append(checks, check)
	}

	httpConfig := performance.DefaultHTTPClientConfig()
	httpConfig.Timeout = cfg.Settings.Timeout.GetDuration(config.DefaultTimeout)
	httpConfig.MaxIdleConnsPerHost = cfg.Settings.MaxIdleConnsPerHost
	httpConfig.InsecureSkipVerify = cfg.Settings.InsecureSkipVerify
	if highest := cfg.MaxTarget(); highest > httpConfig.MaxIdleConns {
		httpConfig.MaxIdleConns = highest
	}

	log := opts.Logger
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}

	runID := uuid.NewString()

	return &Engine{
		config:     cfg,
		opts:       opts,
		runID:      runID,
		log:        log.WithFields(logrus.Fields{"run_id": runID, "scenario": cfg.Name}),
		checks:     checks,
		thresholds: thresholds,
		httpConfig: httpConfig,
	}, nil
}

// Run executes the scenario and returns the results.
//
// Cancelling ctx aborts in-flight iterations at once. The result still holds
// everything recorded up to that point and its thresholds are evaluated.
func (e *Engine) Run(ctx context.Context) (*TestResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine is already running")
	}
	e.running = true
	e.startTime = time.Now()

	metricsConfig := metrics.DefaultEngineConfig()
	if e.opts.MetricsConfig != nil {
		metricsConfig = *e.opts.MetricsConfig
	}
	var sinks []metrics.Sink
	if e.opts.Exporter != nil {
		sinks = append(sinks, e.opts.Exporter)
	}
	e.metricsEngine = metrics.NewEngineWithConfig(metricsConfig, sinks...)
	e.metricsEngine.SetPhase(metrics.PhaseInit)

	e.executor = executor.NewRampingVUs().WithLogger(e.log)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.warnMissingEnv()

	driver := &scenario.Driver{
		BaseURL:               e.config.Settings.BaseURL,
		Token:                 e.config.Settings.Token,
		Endpoints:             e.config.Endpoints,
		ThinkTime:             time.Duration(e.config.ThinkTime),
		Checks:                e.checks,
		DiscardResponseBodies: e.config.Settings.DiscardBodies(),
	}
	scheduler := performance.NewVUScheduler(driver, e.metricsEngine, e.httpConfig)

	if err := e.executor.Init(ctx, e.executorConfig()); err != nil {
		e.metricsEngine.Stop()
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"endpoints":  len(driver.Endpoints),
		"think_time": driver.ThinkTime,
		"max_vus":    e.config.MaxTarget(),
		"duration":   e.config.TotalDuration(),
	}).Info("run started")

	runErr := e.executor.Run(ctx, scheduler, e.metricsEngine)
	e.metricsEngine.Stop()

	result := e.buildResult(ctx.Err() != nil)

	e.log.WithFields(logrus.Fields{
		"requests":    result.Metrics.TotalRequests,
		"failed_rate": fmt.Sprintf("%.4f", result.Metrics.ErrorRate),
		"iterations":  result.Metrics.Iterations,
		"passed":      result.Passed,
		"interrupted": result.Interrupted,
	}).Info("run finished")

	for _, tr := range result.Thresholds {
		if !tr.Passed {
			e.log.WithFields(logrus.Fields{
				"metric":     tr.Metric,
				"expression": tr.Expression,
				"value":      tr.Value,
			}).Warn("threshold crossed")
		}
	}

	if runErr != nil {
		return result, fmt.Errorf("run failed: %w", runErr)
	}
	return result, nil
}

func (e *Engine) executorConfig() *executor.Config {
	stages := make([]executor.Stage, len(e.config.Stages))
	for i, s := range e.config.Stages {
		stages[i] = executor.Stage{
			Duration: time.Duration(s.Duration),
			Target:   s.Target,
			Name:     fmt.Sprintf("stage %d", i+1),
		}
	}

	return &executor.Config{
		Name:             e.config.Name,
		Type:             executor.TypeRampingVUs,
		Stages:           stages,
		GracefulRampDown: time.Duration(e.config.GracefulRampDown),
		GracefulStop:     time.Duration(e.config.GracefulStop),
		ControlInterval:  e.opts.ControlInterval,
	}
}

// warnMissingEnv logs once when the base URL or token is empty. The run goes
// ahead: requests against an empty base URL fail and are counted as failures.
func (e *Engine) warnMissingEnv() {
	var missing []string
	if e.config.Settings.BaseURL == "" {
		missing = append(missing, config.EnvBaseURL)
	}
	if e.config.Settings.Token == "" {
		missing = append(missing, config.EnvToken)
	}
	if len(missing) > 0 {
		e.log.WithField("missing", strings.Join(missing, ",")).
			Warn("environment not set, requests will be sent without it")
	}
}

func (e *Engine) buildResult(interrupted bool) *TestResult {
	end := time.Now()
	thresholdResults, passed := threshold.EvaluateAll(e.thresholds, e.metricsEngine)

	return &TestResult{
		RunID:        e.runID,
		Name:         e.config.Name,
		StartTime:    e.startTime,
		EndTime:      end,
		Duration:     end.Sub(e.startTime),
		Interrupted:  interrupted,
		Executor:     e.executor.GetStats(),
		Metrics:      e.metricsEngine.GetSnapshot(),
		Endpoints:    e.metricsEngine.GetEndpointStats(),
		Checks:       e.metricsEngine.GetCheckStats(),
		TimeSeries:   e.metricsEngine.GetTimeSeries(),
		PhaseHistory: e.metricsEngine.GetPhaseHistory(),
		Passed:       passed,
		Thresholds:   thresholdResults,
	}
}

// RunID returns the identifier attached to this run's logs and results.
func (e *Engine) RunID() string {
	return e.runID
}

// GetConfig returns the scenario configuration with defaults applied.
func (e *Engine) GetConfig() *config.ScenarioConfig {
	return e.config
}

// GetMetrics returns the current metrics snapshot.
func (e *Engine) GetMetrics() *metrics.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.metricsEngine == nil {
		return nil
	}
	return e.metricsEngine.GetSnapshot()
}

// GetStats returns the executor's live statistics.
func (e *Engine) GetStats() *executor.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.executor == nil {
		return nil
	}
	return e.executor.GetStats()
}

// GetProgress returns the run progress (0.0 to 1.0).
func (e *Engine) GetProgress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.executor == nil {
		return 0.0
	}
	return e.executor.GetProgress()
}

// IsRunning returns true if the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop ends the stages early. In-flight iterations get the graceful stop.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.RLock()
	exec := e.executor
	running := e.running
	e.mu.RUnlock()

	if !running || exec == nil {
		return nil
	}
	return exec.Stop(ctx)
}
