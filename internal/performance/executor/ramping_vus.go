package executor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chess-vn/chessload/internal/performance"
	"github.com/chess-vn/chessload/internal/performance/metrics"
)

// RampingVUs ramps VU count up and down according to stages.
//
// The target is interpolated linearly inside each stage, starting from the
// previous stage's target (0 before the first stage). When the target falls,
// the newest VUs are retired: each finishes its current iteration, think-time
// included, and is cancelled if that takes longer than GracefulRampDown.
//
// Example stages:
//
//	stages:
//	  - duration: 5m
//	    target: 1000   # Ramp from 0 to 1000 VUs over 5m
//	  - duration: 10m
//	    target: 1000   # Hold 1000 VUs for 10 minutes
//	  - duration: 5m
//	    target: 0      # Ramp down to 0 VUs over 5m
type RampingVUs struct {
	config    *Config
	scheduler *performance.VUScheduler
	metrics   *metrics.Engine
	log       logrus.FieldLogger

	// State
	startTime    time.Time
	endTime      time.Time
	targetVUs    atomic.Int32
	iterations   atomic.Int64
	cancelled    atomic.Int64
	currentStage atomic.Int32
	running      atomic.Bool

	// Cancellation
	cancelFunc context.CancelFunc
	done       chan struct{}
	wg         sync.WaitGroup

	// VU tracking, oldest first
	vus   []*performance.VirtualUser
	vusMu sync.Mutex

	mu sync.RWMutex
}

// NewRampingVUs creates a new ramping VUs executor.
func NewRampingVUs() *RampingVUs {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	return &RampingVUs{
		log:  discard,
		vus:  make([]*performance.VirtualUser, 0),
		done: make(chan struct{}),
	}
}

// WithLogger sets the logger used for lifecycle events.
func (e *RampingVUs) WithLogger(log logrus.FieldLogger) *RampingVUs {
	if log != nil {
		e.log = log
	}
	return e
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	return TypeRampingVUs
}

// Init initializes the executor with configuration.
func (e *RampingVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeRampingVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeRampingVUs, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	return nil
}

// Run executes the stages and blocks until every VU has exited.
//
// When the stages end, VUs get GracefulStop to finish their iteration before
// being cancelled. Cancelling ctx instead aborts every VU at once.
func (e *RampingVUs) Run(ctx context.Context, scheduler *performance.VUScheduler, metricsEngine *metrics.Engine) error {
	if e.config == nil {
		return fmt.Errorf("executor not initialized")
	}

	e.scheduler = scheduler
	e.metrics = metricsEngine

	e.mu.Lock()
	e.startTime = time.Now()
	e.mu.Unlock()
	e.running.Store(true)
	defer close(e.done)

	totalDuration := e.config.TotalDuration()

	stagesCtx, cancel := context.WithTimeout(ctx, totalDuration)
	e.mu.Lock()
	e.cancelFunc = cancel
	e.mu.Unlock()
	defer cancel()

	e.log.WithFields(logrus.Fields{
		"stages":   len(e.config.Stages),
		"duration": totalDuration,
		"max_vus":  e.config.MaxVUs(),
	}).Info("ramping-vus executor started")

	// VUs derive from ctx, not stagesCtx, so the end of the last stage
	// leaves their iterations running until the graceful stop.
	e.vuController(stagesCtx, ctx)

	if ctx.Err() != nil {
		e.log.Warn("run interrupted, aborting in-flight iterations")
		e.wg.Wait()
	} else {
		e.gracefulShutdown()
	}

	e.mu.Lock()
	e.endTime = time.Now()
	e.mu.Unlock()

	e.metrics.SetActiveVUs(0)
	e.metrics.SetPhase(metrics.PhaseDone)
	e.running.Store(false)

	e.log.WithFields(logrus.Fields{
		"iterations":    e.iterations.Load(),
		"cancelled_vus": e.cancelled.Load(),
	}).Info("ramping-vus executor finished")

	return nil
}

// vuController adjusts VU count according to stages until stagesCtx is done.
func (e *RampingVUs) vuController(stagesCtx, vuCtx context.Context) {
	interval := e.config.ControlInterval
	if interval == 0 {
		interval = DefaultControlInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.tick(vuCtx)
	for {
		select {
		case <-stagesCtx.Done():
			return
		case <-ticker.C:
			e.tick(vuCtx)
		}
	}
}

func (e *RampingVUs) tick(vuCtx context.Context) {
	target, stage := TargetAt(e.config.Stages, time.Since(e.startTime))
	e.targetVUs.Store(int32(target))
	e.currentStage.Store(int32(stage))

	e.adjustVUs(vuCtx, target)
	e.metrics.SetPhase(PhaseAt(e.config.Stages, stage))
	e.metrics.SetActiveVUs(e.scheduler.GetActiveVUCount())
}

// TargetAt returns the interpolated VU target and the index of the current
// stage at elapsed time into the run. Past the last stage it returns the
// last target and len(stages).
func TargetAt(stages []Stage, elapsed time.Duration) (int, int) {
	var stageStart time.Duration
	prevTarget := 0

	for i, stage := range stages {
		stageEnd := stageStart + stage.Duration

		if elapsed < stageEnd {
			progress := float64(elapsed-stageStart) / float64(stage.Duration)
			if progress < 0 {
				progress = 0
			}

			// Linear interpolation between previous and current target
			target := float64(prevTarget) + float64(stage.Target-prevTarget)*progress
			return int(target + 0.5), i
		}

		prevTarget = stage.Target
		stageStart = stageEnd
	}

	return prevTarget, len(stages)
}

// PhaseAt classifies stage i of stages. Indexes past the end are PhaseDone.
func PhaseAt(stages []Stage, i int) metrics.Phase {
	if i < 0 || i >= len(stages) {
		return metrics.PhaseDone
	}

	stage := stages[i]
	prevTarget := 0
	if i > 0 {
		prevTarget = stages[i-1].Target
	}

	switch {
	case stage.Target > prevTarget:
		return metrics.PhaseRampUp
	case stage.Target < prevTarget:
		return metrics.PhaseRampDown
	default:
		return metrics.PhaseSteady
	}
}

// adjustVUs spawns or retires VUs to match the target.
func (e *RampingVUs) adjustVUs(ctx context.Context, targetVUs int) {
	e.vusMu.Lock()
	defer e.vusMu.Unlock()

	currentVUs := len(e.vus)

	if targetVUs > currentVUs {
		for i := currentVUs; i < targetVUs; i++ {
			vu := e.scheduler.SpawnVU(ctx)
			e.vus = append(e.vus, vu)
			e.wg.Add(1)
			go e.runVU(vu)
		}
	} else if targetVUs < currentVUs {
		// Retire the newest VUs first
		for i := currentVUs - 1; i >= targetVUs; i-- {
			vu := e.vus[i]
			vu.RequestStop()
			e.wg.Add(1)
			go e.retire(vu)
		}
		e.vus = e.vus[:targetVUs]
	}
}

// retire cancels vu if it is still inside its iteration once
// GracefulRampDown has passed.
func (e *RampingVUs) retire(vu *performance.VirtualUser) {
	defer e.wg.Done()

	if !vu.WaitForStop(e.config.GracefulRampDown) {
		e.cancelled.Add(1)
		e.log.WithField("vu", vu.ID).Debug("graceful ramp-down expired, cancelling VU")
		vu.Cancel()
	}
}

// runVU runs a single VU until it is retired or cancelled.
func (e *RampingVUs) runVU(vu *performance.VirtualUser) {
	defer e.wg.Done()
	defer e.scheduler.RemoveVU(vu.ID)

	for !vu.IsStopping() {
		if err := vu.RunIteration(); err != nil {
			if vu.Context().Err() == nil && !vu.IsStopping() {
				e.log.WithError(err).WithField("vu", vu.ID).Error("VU stopped")
			}
			return
		}
		e.iterations.Add(1)
	}
}

// gracefulShutdown retires all VUs and cancels those still running after
// GracefulStop.
func (e *RampingVUs) gracefulShutdown() {
	e.vusMu.Lock()
	e.vus = e.vus[:0]
	e.vusMu.Unlock()

	if cancelled := e.scheduler.Shutdown(e.config.GracefulStop); cancelled > 0 {
		e.cancelled.Add(int64(cancelled))
		e.log.WithField("vus", cancelled).Warn("graceful stop expired, cancelled in-flight iterations")
	}

	e.wg.Wait()
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *RampingVUs) GetProgress() float64 {
	e.mu.RLock()
	start := e.startTime
	e.mu.RUnlock()

	if start.IsZero() {
		return 0.0
	}
	if !e.running.Load() {
		return 1.0
	}

	totalDuration := e.config.TotalDuration()
	if totalDuration == 0 {
		return 1.0
	}

	progress := float64(time.Since(start)) / float64(totalDuration)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetActiveVUs returns the number of VUs the scheduler still holds,
// retiring ones included.
func (e *RampingVUs) GetActiveVUs() int {
	if e.scheduler == nil {
		return 0
	}
	return e.scheduler.GetActiveVUCount()
}

// GetStats returns executor statistics.
func (e *RampingVUs) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var elapsed time.Duration
	switch {
	case e.startTime.IsZero():
	case !e.endTime.IsZero():
		elapsed = e.endTime.Sub(e.startTime)
	default:
		elapsed = time.Since(e.startTime)
	}

	var stats Stats
	stats.StartTime = e.startTime
	stats.CurrentTime = time.Now()
	stats.Elapsed = elapsed
	stats.ActiveVUs = e.GetActiveVUs()
	stats.TargetVUs = int(e.targetVUs.Load())
	stats.Iterations = e.iterations.Load()
	stats.CancelledVUs = e.cancelled.Load()

	if e.config != nil {
		stageIdx := int(e.currentStage.Load())
		stats.TotalDuration = e.config.TotalDuration()
		stats.MaxVUs = e.config.MaxVUs()
		stats.CurrentStage = stageIdx
		stats.TotalStages = len(e.config.Stages)
		if stageIdx < len(e.config.Stages) {
			stats.CurrentStageName = e.config.Stages[stageIdx].Name
		}
	}

	return &stats
}

// Stop ends the stages early. In-flight iterations get GracefulStop to
// finish. Stop waits for Run to return or ctx to be done.
func (e *RampingVUs) Stop(ctx context.Context) error {
	e.mu.RLock()
	cancel := e.cancelFunc
	e.mu.RUnlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ensure RampingVUs implements Executor
var _ Executor = (*RampingVUs)(nil)
