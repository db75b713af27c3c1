package metrics

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/chess-vn/chessload/internal/scenario"
)

// Sink receives a copy of every sample the engine records.
type Sink interface {
	ObserveRequest(s scenario.RequestSample)
	ObserveCheck(name string, passed bool)
	ObserveIteration(d time.Duration)
	ObserveVUs(n int)
}

// Engine collects and aggregates run metrics using HDR histograms.
//
// Engine implements scenario.Recorder for the VUs and threshold.Source for
// the evaluator.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Counters use atomic operations,
// histograms use mutex protection, and the background emitter runs
// in its own goroutine.
type Engine struct {
	// Range: 1 microsecond to 1 hour, 3 significant figures
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	iterationHist   *hdrhistogram.Histogram
	iterationHistMu sync.Mutex

	endpoints   map[string]*endpointMetrics
	endpointsMu sync.RWMutex

	checks     map[string]*checkCounter
	checkOrder []string
	checksMu   sync.RWMutex

	statusCodes   map[int]int64
	statusCodesMu sync.Mutex

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	totalBytes      atomic.Int64
	iterations      atomic.Int64
	checkPasses     atomic.Int64
	checkFails      atomic.Int64

	activeVUs atomic.Int32

	bucketStore *TimeBucketStore

	currentPhase Phase
	phaseMu      sync.RWMutex
	phaseHistory []PhaseChange

	startTime time.Time
	stopTime  atomic.Pointer[time.Time]

	sinks []Sink

	emitterCtx    context.Context
	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup
	stopOnce      sync.Once

	config EngineConfig
}

type endpointMetrics struct {
	hist   *hdrhistogram.Histogram
	failed int64
}

type checkCounter struct {
	passes atomic.Int64
	fails  atomic.Int64
}

// NewEngine creates a new metrics engine with default configuration.
func NewEngine(sinks ...Sink) *Engine {
	return NewEngineWithConfig(DefaultEngineConfig(), sinks...)
}

// NewEngineWithConfig creates a new metrics engine with custom configuration.
// The background emitter starts immediately.
func NewEngineWithConfig(config EngineConfig, sinks ...Sink) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	engine := &Engine{
		latencyHist:   newHistogram(config),
		iterationHist: newHistogram(config),
		endpoints:     make(map[string]*endpointMetrics),
		checks:        make(map[string]*checkCounter),
		statusCodes:   make(map[int]int64),
		bucketStore:   NewTimeBucketStore(config.MaxBuckets),
		currentPhase:  PhaseInit,
		startTime:     time.Now(),
		sinks:         sinks,
		emitterCtx:    ctx,
		emitterCancel: cancel,
		config:        config,
	}

	engine.emitterWg.Add(1)
	go engine.runEmitter()

	return engine
}

func newHistogram(config EngineConfig) *hdrhistogram.Histogram {
	return hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs)
}

// clamp converts d to microseconds inside the histogram range. Zero is kept:
// requests that never obtained a connection have a zero duration.
func (e *Engine) clamp(d time.Duration) int64 {
	us := d.Microseconds()
	if us < 0 {
		us = 0
	}
	if us > e.config.HistogramMax {
		us = e.config.HistogramMax
	}
	return us
}

// RecordRequest implements scenario.Recorder.
func (e *Engine) RecordRequest(s scenario.RequestSample) {
	us := e.clamp(s.Duration)

	e.latencyHistMu.Lock()
	e.latencyHist.RecordValue(us)
	e.latencyHistMu.Unlock()

	if s.Endpoint != "" {
		e.recordEndpoint(s.Endpoint, us, s.Failed)
	}

	e.statusCodesMu.Lock()
	e.statusCodes[s.Status]++
	e.statusCodesMu.Unlock()

	e.totalRequests.Add(1)
	e.totalBytes.Add(s.Bytes)
	if s.Failed {
		e.failedRequests.Add(1)
	} else {
		e.successRequests.Add(1)
	}

	e.bucketStore.RecordRequest(!s.Failed)

	for _, sink := range e.sinks {
		sink.ObserveRequest(s)
	}
}

// recordEndpoint records into the per-endpoint histogram.
// HDR histogram RecordValue is not thread-safe, so the lock covers it.
func (e *Engine) recordEndpoint(name string, us int64, failed bool) {
	e.endpointsMu.Lock()
	defer e.endpointsMu.Unlock()

	m, exists := e.endpoints[name]
	if !exists {
		m = &endpointMetrics{hist: newHistogram(e.config)}
		e.endpoints[name] = m
	}

	m.hist.RecordValue(us)
	if failed {
		m.failed++
	}
}

// RecordCheck implements scenario.Recorder.
func (e *Engine) RecordCheck(name string, passed bool) {
	e.checksMu.RLock()
	c, ok := e.checks[name]
	e.checksMu.RUnlock()

	if !ok {
		e.checksMu.Lock()
		if c, ok = e.checks[name]; !ok {
			c = &checkCounter{}
			e.checks[name] = c
			e.checkOrder = append(e.checkOrder, name)
		}
		e.checksMu.Unlock()
	}

	if passed {
		c.passes.Add(1)
		e.checkPasses.Add(1)
	} else {
		c.fails.Add(1)
		e.checkFails.Add(1)
	}

	for _, sink := range e.sinks {
		sink.ObserveCheck(name, passed)
	}
}

// RecordIteration implements scenario.Recorder.
func (e *Engine) RecordIteration(d time.Duration) {
	us := e.clamp(d)

	e.iterationHistMu.Lock()
	e.iterationHist.RecordValue(us)
	e.iterationHistMu.Unlock()

	e.iterations.Add(1)

	for _, sink := range e.sinks {
		sink.ObserveIteration(d)
	}
}

// SetPhase updates the current run phase. Executors call this on every
// stage transition; repeated phases are ignored.
func (e *Engine) SetPhase(phase Phase) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.currentPhase == phase {
		return
	}

	e.currentPhase = phase
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:     phase,
		Timestamp: time.Now(),
		Requests:  e.totalRequests.Load(),
	})
}

// GetPhase returns the current run phase.
func (e *Engine) GetPhase() Phase {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.currentPhase
}

// SetActiveVUs updates the active VU count.
func (e *Engine) SetActiveVUs(count int) {
	e.activeVUs.Store(int32(count))
	for _, sink := range e.sinks {
		sink.ObserveVUs(count)
	}
}

// GetActiveVUs returns the current active VU count.
func (e *Engine) GetActiveVUs() int {
	return int(e.activeVUs.Load())
}

func (e *Engine) runEmitter() {
	defer e.emitterWg.Done()

	ticker := time.NewTicker(e.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.emitterCtx.Done():
			return
		case <-ticker.C:
			e.emitBucket()
		}
	}
}

func (e *Engine) emitBucket() {
	e.bucketStore.CreateBucket(totals{
		requests:   e.totalRequests.Load(),
		successes:  e.successRequests.Load(),
		failures:   e.failedRequests.Load(),
		bytes:      e.totalBytes.Load(),
		iterations: e.iterations.Load(),
	}, e.GetLatencyPercentiles(), e.GetActiveVUs(), e.GetPhase())
}

// GetLatencyPercentiles returns current latency percentiles.
func (e *Engine) GetLatencyPercentiles() LatencyPercentiles {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()

	return LatencyPercentiles{
		Min: micros(e.latencyHist.Min()),
		Max: micros(e.latencyHist.Max()),
		P50: micros(e.latencyHist.ValueAtQuantile(50)),
		P90: micros(e.latencyHist.ValueAtQuantile(90)),
		P95: micros(e.latencyHist.ValueAtQuantile(95)),
		P99: micros(e.latencyHist.ValueAtQuantile(99)),
	}
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

func latencyStats(h *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    micros(h.Min()),
		Max:    micros(h.Max()),
		Mean:   time.Duration(h.Mean() * float64(time.Microsecond)),
		StdDev: time.Duration(h.StdDev() * float64(time.Microsecond)),
		P50:    micros(h.ValueAtQuantile(50)),
		P90:    micros(h.ValueAtQuantile(90)),
		P95:    micros(h.ValueAtQuantile(95)),
		P99:    micros(h.ValueAtQuantile(99)),
		Count:  h.TotalCount(),
	}
}

// elapsed is the time since start, frozen at Stop.
func (e *Engine) elapsed() time.Duration {
	if stopped := e.stopTime.Load(); stopped != nil {
		return stopped.Sub(e.startTime)
	}
	return time.Since(e.startTime)
}

func perSecond(n int64, d time.Duration) float64 {
	if d.Seconds() <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

// GetSnapshot returns a point-in-time snapshot of all metrics.
func (e *Engine) GetSnapshot() *Snapshot {
	e.latencyHistMu.Lock()
	latency := latencyStats(e.latencyHist)
	e.latencyHistMu.Unlock()

	e.iterationHistMu.Lock()
	iteration := latencyStats(e.iterationHist)
	e.iterationHistMu.Unlock()

	e.statusCodesMu.Lock()
	codes := make(map[int]int64, len(e.statusCodes))
	for code, n := range e.statusCodes {
		codes[code] = n
	}
	e.statusCodesMu.Unlock()

	elapsed := e.elapsed()
	totalReqs := e.totalRequests.Load()
	steadyRPS, _ := e.bucketStore.CalculateSteadyStateRPS()

	return &Snapshot{
		TotalRequests:     totalReqs,
		SuccessRequests:   e.successRequests.Load(),
		FailedRequests:    e.failedRequests.Load(),
		TotalBytes:        e.totalBytes.Load(),
		Latency:           latency,
		RPS:               perSecond(totalReqs, elapsed),
		SteadyStateRPS:    steadyRPS,
		ErrorRate:         e.FailedRate(),
		Iterations:        e.iterations.Load(),
		IterationRate:     e.IterationRate(),
		IterationDuration: iteration,
		CheckPasses:       e.checkPasses.Load(),
		CheckFails:        e.checkFails.Load(),
		StatusCodes:       codes,
		ActiveVUs:         e.GetActiveVUs(),
		CurrentPhase:      e.GetPhase(),
		Elapsed:           elapsed,
		StartTime:         e.startTime,
		Timestamp:         time.Now(),
	}
}

// GetTimeSeries returns all time-series buckets.
func (e *Engine) GetTimeSeries() []*TimeBucket {
	return e.bucketStore.GetBuckets()
}

// GetLatestBucket returns the last emitted bucket, or nil.
func (e *Engine) GetLatestBucket() *TimeBucket {
	return e.bucketStore.GetLatestBucket()
}

// GetPhaseHistory returns the history of phase changes.
func (e *Engine) GetPhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	result := make([]PhaseChange, len(e.phaseHistory))
	copy(result, e.phaseHistory)
	return result
}

// GetEndpointStats returns per-endpoint statistics sorted by endpoint.
func (e *Engine) GetEndpointStats() []EndpointStats {
	e.endpointsMu.RLock()
	defer e.endpointsMu.RUnlock()

	result := make([]EndpointStats, 0, len(e.endpoints))
	for name, m := range e.endpoints {
		stats := latencyStats(m.hist)
		result = append(result, EndpointStats{
			Endpoint: name,
			Requests: stats.Count,
			Failed:   m.failed,
			Latency:  stats,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Endpoint < result[j].Endpoint
	})
	return result
}

// GetCheckStats returns per-check tallies in first-seen order.
func (e *Engine) GetCheckStats() []CheckStats {
	e.checksMu.RLock()
	defer e.checksMu.RUnlock()

	result := make([]CheckStats, 0, len(e.checkOrder))
	for _, name := range e.checkOrder {
		c := e.checks[name]
		result = append(result, CheckStats{
			Name:   name,
			Passes: c.passes.Load(),
			Fails:  c.fails.Load(),
		})
	}
	return result
}

// Stop stops the emitter, emits a final bucket and freezes elapsed time.
// It is safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.emitterCancel()
		e.emitterWg.Wait()

		e.emitBucket()

		now := time.Now()
		e.stopTime.Store(&now)
	})
}

// LatencyQuantile implements threshold.Source. q is in [0, 100].
func (e *Engine) LatencyQuantile(q float64) time.Duration {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()
	return micros(e.latencyHist.ValueAtQuantile(q))
}

// LatencyMean implements threshold.Source.
func (e *Engine) LatencyMean() time.Duration {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()
	return time.Duration(e.latencyHist.Mean() * float64(time.Microsecond))
}

// LatencyMin implements threshold.Source.
func (e *Engine) LatencyMin() time.Duration {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()
	return micros(e.latencyHist.Min())
}

// LatencyMax implements threshold.Source.
func (e *Engine) LatencyMax() time.Duration {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()
	return micros(e.latencyHist.Max())
}

// FailedRate implements threshold.Source. It is 0 before any request.
func (e *Engine) FailedRate() float64 {
	total := e.totalRequests.Load()
	if total == 0 {
		return 0
	}
	return float64(e.failedRequests.Load()) / float64(total)
}

// RequestCount implements threshold.Source.
func (e *Engine) RequestCount() int64 {
	return e.totalRequests.Load()
}

// RequestRate implements threshold.Source.
func (e *Engine) RequestRate() float64 {
	return perSecond(e.totalRequests.Load(), e.elapsed())
}

// CheckRate implements threshold.Source.
func (e *Engine) CheckRate() float64 {
	passes := e.checkPasses.Load()
	total := passes + e.checkFails.Load()
	if total == 0 {
		return 0
	}
	return float64(passes) / float64(total)
}

// IterationCount implements threshold.Source.
func (e *Engine) IterationCount() int64 {
	return e.iterations.Load()
}

// IterationRate implements threshold.Source.
func (e *Engine) IterationRate() float64 {
	return perSecond(e.iterations.Load(), e.elapsed())
}
