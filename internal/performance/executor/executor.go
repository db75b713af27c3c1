// Package executor provides load generation strategies for performance testing.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/chess-vn/chessload/internal/performance"
	"github.com/chess-vn/chessload/internal/performance/metrics"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeRampingVUs ramps VU count up and down according to stages.
	TypeRampingVUs Type = "ramping-vus"
)

// DefaultControlInterval is how often the VU count is re-evaluated.
const DefaultControlInterval = 100 * time.Millisecond

// Executor defines the interface for load generation strategies.
//
// Executors control HOW load is generated. The VU pool itself lives in the
// scheduler; the executor decides how many VUs it should hold over time.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Init initializes the executor with configuration.
	// Called once before Run().
	Init(ctx context.Context, config *Config) error

	// Run starts the executor and blocks until every VU has exited.
	// Cancelling ctx hard-stops all VUs.
	Run(ctx context.Context, scheduler *performance.VUScheduler, metrics *metrics.Engine) error

	// GetProgress returns current progress (0.0 to 1.0).
	GetProgress() float64

	// GetActiveVUs returns current active VU count.
	GetActiveVUs() int

	// GetStats returns executor-specific statistics.
	GetStats() *Stats

	// Stop ends the stages early and waits for the graceful stop.
	Stop(ctx context.Context) error
}

// Config contains configuration for an executor.
type Config struct {
	// Name is the name of this executor instance
	Name string `json:"name" yaml:"name"`

	// Type is the executor type
	Type Type `json:"type" yaml:"type"`

	Stages []Stage `json:"stages" yaml:"stages"`

	// GracefulRampDown is how long a VU retired by a falling target may
	// take to finish its iteration before it is cancelled.
	GracefulRampDown time.Duration `json:"gracefulRampDown,omitempty" yaml:"gracefulRampDown,omitempty"`

	// GracefulStop is how long in-flight iterations may run past the end
	// of the last stage.
	GracefulStop time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// ControlInterval defaults to DefaultControlInterval.
	ControlInterval time.Duration `json:"controlInterval,omitempty" yaml:"controlInterval,omitempty"`
}

// Stage defines a stage in ramping executors.
type Stage struct {
	// Duration of this stage
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Target VU count reached at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Stats contains real-time executor statistics.
type Stats struct {
	// Timing
	StartTime     time.Time     `json:"startTime"`
	CurrentTime   time.Time     `json:"currentTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	// VU stats
	ActiveVUs int `json:"activeVUs"`
	TargetVUs int `json:"targetVUs"`
	MaxVUs    int `json:"maxVUs"`

	Iterations int64 `json:"iterations"`

	// VUs hard-stopped after their graceful period ran out
	CancelledVUs int64 `json:"cancelledVUs"`

	CurrentStage     int    `json:"currentStage"`
	CurrentStageName string `json:"currentStageName"`
	TotalStages      int    `json:"totalStages"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &ValidationError{Field: "type", Message: "executor type is required"}
	}
	if c.Type != TypeRampingVUs {
		return &ValidationError{Field: "type", Message: "unknown executor type: " + string(c.Type)}
	}

	if len(c.Stages) == 0 {
		return &ValidationError{Field: "stages", Message: "at least one stage is required"}
	}
	for i, s := range c.Stages {
		if s.Duration < 0 {
			return &ValidationError{Field: fmt.Sprintf("stages[%d].duration", i), Message: "duration must be >= 0"}
		}
		if s.Target < 0 {
			return &ValidationError{Field: fmt.Sprintf("stages[%d].target", i), Message: "target must be >= 0"}
		}
	}
	if c.TotalDuration() <= 0 {
		return &ValidationError{Field: "stages", Message: "total stage duration must be > 0"}
	}

	if c.GracefulRampDown < 0 {
		return &ValidationError{Field: "gracefulRampDown", Message: "must be >= 0"}
	}
	if c.GracefulStop < 0 {
		return &ValidationError{Field: "gracefulStop", Message: "must be >= 0"}
	}
	if c.ControlInterval < 0 {
		return &ValidationError{Field: "controlInterval", Message: "must be >= 0"}
	}

	return nil
}

// TotalDuration is the sum of all stage durations.
func (c *Config) TotalDuration() time.Duration {
	var total time.Duration
	for _, stage := range c.Stages {
		total += stage.Duration
	}
	return total
}

// MaxVUs is the highest target across all stages.
func (c *Config) MaxVUs() int {
	highest := 0
	for _, stage := range c.Stages {
		if stage.Target > highest {
			highest = stage.Target
		}
	}
	return highest
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}
