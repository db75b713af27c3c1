package metrics

import "time"

// Phase represents a phase of the run.
type Phase string

const (
	// PhaseInit is the state before the first stage starts
	PhaseInit Phase = "init"

	// PhaseRampUp is any stage where the VU target is increasing
	PhaseRampUp Phase = "ramp-up"

	// PhaseSteady is any stage with a constant VU target
	PhaseSteady Phase = "steady"

	// PhaseRampDown is any stage where the VU target is decreasing
	PhaseRampDown Phase = "ramp-down"

	// PhaseDone indicates the stages have completed
	PhaseDone Phase = "done"
)

// Snapshot contains a point-in-time view of all metrics.
type Snapshot struct {
	// TotalRequests is http_reqs
	TotalRequests int64 `json:"totalRequests"`

	// SuccessRequests is the number of requests with status < 400 and no error
	SuccessRequests int64 `json:"successRequests"`

	// FailedRequests is the http_req_failed numerator
	FailedRequests int64 `json:"failedRequests"`

	// TotalBytes is the total bytes received
	TotalBytes int64 `json:"totalBytes"`

	// Latency is http_req_duration
	Latency LatencyStats `json:"latency"`

	// RPS is the average requests per second since start
	RPS float64 `json:"rps"`

	// SteadyStateRPS is the average RPS of buckets in the steady phase
	SteadyStateRPS float64 `json:"steadyStateRps"`

	// ErrorRate is the fraction of failed requests (0.0 to 1.0)
	ErrorRate float64 `json:"errorRate"`

	// Iterations is the number of completed iterations
	Iterations int64 `json:"iterations"`

	// IterationRate is completed iterations per second
	IterationRate float64 `json:"iterationRate"`

	// IterationDuration includes the think-time
	IterationDuration LatencyStats `json:"iterationDuration"`

	// CheckPasses and CheckFails count every check sample
	CheckPasses int64 `json:"checkPasses"`
	CheckFails  int64 `json:"checkFails"`

	// StatusCodes counts responses per HTTP status; 0 is a transport error
	StatusCodes map[int]int64 `json:"statusCodes"`

	// ActiveVUs is the current number of running virtual users
	ActiveVUs int `json:"activeVUs"`

	// CurrentPhase is the current run phase
	CurrentPhase Phase `json:"currentPhase"`

	// Elapsed is the time since start, frozen once the engine stops
	Elapsed time.Duration `json:"elapsed"`

	StartTime time.Time `json:"startTime"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckRate returns passes / all check samples, or 0 without samples.
func (s *Snapshot) CheckRate() float64 {
	total := s.CheckPasses + s.CheckFails
	if total == 0 {
		return 0
	}
	return float64(s.CheckPasses) / float64(total)
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// LatencyPercentiles holds latency percentile values.
type LatencyPercentiles struct {
	Min time.Duration
	Max time.Duration
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// EndpointStats is the per-endpoint breakdown.
type EndpointStats struct {
	Endpoint string       `json:"endpoint"`
	Requests int64        `json:"requests"`
	Failed   int64        `json:"failed"`
	Latency  LatencyStats `json:"latency"`
}

// CheckStats is the pass/fail tally of one check.
type CheckStats struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// Rate returns the pass rate of the check.
func (c CheckStats) Rate() float64 {
	total := c.Passes + c.Fails
	if total == 0 {
		return 0
	}
	return float64(c.Passes) / float64(total)
}

// TimeBucket represents metrics for one emitter interval.
//
// Each bucket captures cumulative totals and interval-specific deltas.
type TimeBucket struct {
	Timestamp time.Time `json:"timestamp"`

	// Cumulative counters (total since start)
	TotalRequests   int64 `json:"totalRequests"`
	TotalSuccesses  int64 `json:"totalSuccesses"`
	TotalFailures   int64 `json:"totalFailures"`
	TotalBytes      int64 `json:"totalBytes"`
	TotalIterations int64 `json:"totalIterations"`

	// Interval metrics (for this bucket only)
	IntervalRequests  int64   `json:"intervalRequests"`
	IntervalRPS       float64 `json:"intervalRPS"`
	IntervalErrorRate float64 `json:"intervalErrorRate"`

	// Latency percentiles (from the overall histogram at this point in time)
	LatencyMin time.Duration `json:"latencyMin"`
	LatencyMax time.Duration `json:"latencyMax"`
	LatencyP50 time.Duration `json:"latencyP50"`
	LatencyP90 time.Duration `json:"latencyP90"`
	LatencyP95 time.Duration `json:"latencyP95"`
	LatencyP99 time.Duration `json:"latencyP99"`

	ActiveVUs int   `json:"activeVUs"`
	Phase     Phase `json:"phase"`
}

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`

	// Requests is the total request count at the time of the change
	Requests int64 `json:"requests"`
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// BucketInterval is the interval for time-series buckets (default: 1s)
	BucketInterval time.Duration

	// MaxBuckets is the maximum number of buckets to retain (default: 3600)
	MaxBuckets int

	// HistogramMin is the lowest discernible value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BucketInterval:   time.Second,
		MaxBuckets:       3600,
		HistogramMin:     1,
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
	}
}
