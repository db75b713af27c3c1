package config

import (
	"time"

	"github.com/chess-vn/chessload/internal/performance/threshold"
)

const (
	DefaultName                = "api_1000_users"
	DefaultTimeout             = 60 * time.Second
	DefaultThinkTime           = 10 * time.Second
	DefaultGracefulRampDown    = 30 * time.Second
	DefaultGracefulStop        = 30 * time.Second
	DefaultMaxIdleConnsPerHost = 100
)

// DefaultEndpoints are the read endpoints of the chess API.
func DefaultEndpoints() []string {
	return []string{"/user", "/userRatings", "/matchResults", "/activeMatches", "/friends"}
}

// DefaultStages ramps to 1000 VUs over 5m, holds for 10m and ramps down over 5m.
func DefaultStages() []StageConfig {
	return []StageConfig{
		{Duration: Duration(5 * time.Minute), Target: 1000},
		{Duration: Duration(10 * time.Minute), Target: 1000},
		{Duration: Duration(5 * time.Minute), Target: 0},
	}
}

// DefaultChecks returns the per-response checks.
func DefaultChecks() []CheckConfig {
	return []CheckConfig{
		{Name: "status is 200", Type: "status", Condition: "eq", Value: "200"},
		{Name: "response time < 500ms", Type: "duration", Condition: "lt", Value: "500ms"},
	}
}

// DefaultThresholds returns the run-level pass/fail criteria.
func DefaultThresholds() map[string][]string {
	return map[string][]string{
		threshold.MetricHTTPReqFailed:   {"rate<0.02"},
		threshold.MetricHTTPReqDuration: {"p(95)<2000"},
	}
}

// DefaultScenario returns the built-in 1000 user scenario.
func DefaultScenario() *ScenarioConfig {
	cfg := &ScenarioConfig{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field. A nil Checks or Thresholds gets the
// defaults; an explicitly empty one is kept empty.
func ApplyDefaults(cfg *ScenarioConfig) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}

	if cfg.Settings.Timeout == 0 {
		cfg.Settings.Timeout = Duration(DefaultTimeout)
	}
	if cfg.Settings.MaxIdleConnsPerHost == 0 {
		cfg.Settings.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
	if cfg.Settings.DiscardResponseBodies == nil {
		discard := true
		cfg.Settings.DiscardResponseBodies = &discard
	}

	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = DefaultEndpoints()
	}
	if cfg.ThinkTime == 0 {
		cfg.ThinkTime = Duration(DefaultThinkTime)
	}
	if len(cfg.Stages) == 0 {
		cfg.Stages = DefaultStages()
	}
	if cfg.GracefulRampDown == 0 {
		cfg.GracefulRampDown = Duration(DefaultGracefulRampDown)
	}
	if cfg.GracefulStop == 0 {
		cfg.GracefulStop = Duration(DefaultGracefulStop)
	}

	if cfg.Checks == nil {
		cfg.Checks = DefaultChecks()
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = DefaultThresholds()
	}
}

// TotalDuration returns the sum of all stage durations.
func (c *ScenarioConfig) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range c.Stages {
		total += time.Duration(s.Duration)
	}
	return total
}

// MaxTarget returns the highest stage target.
func (c *ScenarioConfig) MaxTarget() int {
	highest := 0
	for _, s := range c.Stages {
		if s.Target > highest {
			highest = s.Target
		}
	}
	return highest
}
