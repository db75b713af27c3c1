package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chess-vn/chessload/internal/performance/threshold"
	"github.com/chess-vn/chessload/internal/scenario"
)

var (
	_ scenario.Recorder = (*Engine)(nil)
	_ threshold.Source  = (*Engine)(nil)
	_ Sink              = (*Exporter)(nil)
)

func request(endpoint string, status int, d time.Duration) scenario.RequestSample {
	return scenario.RequestSample{
		Endpoint: endpoint,
		Status:   status,
		Duration: d,
		Bytes:    100,
		Failed:   status >= 400 || status == 0,
	}
}

func TestNewEngine(t *testing.T) {
	engine := NewEngine()
	if engine == nil {
		t.Fatal("NewEngine() returned nil")
	}
	defer engine.Stop()

	snapshot := engine.GetSnapshot()
	if snapshot.TotalRequests != 0 {
		t.Errorf("Initial TotalRequests = %d, want 0", snapshot.TotalRequests)
	}
	if snapshot.CurrentPhase != PhaseInit {
		t.Errorf("Initial phase = %v, want %v", snapshot.CurrentPhase, PhaseInit)
	}
	if engine.FailedRate() != 0 {
		t.Errorf("FailedRate() without requests = %v, want 0", engine.FailedRate())
	}
}

func TestEngine_RecordRequest(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	engine.RecordRequest(request("/user", 200, 10*time.Millisecond))
	engine.RecordRequest(request("/user", 200, 20*time.Millisecond))
	engine.RecordRequest(request("/friends", 500, 30*time.Millisecond))
	engine.RecordRequest(scenario.RequestSample{Endpoint: "/friends", Failed: true, Err: errors.New("refused")})

	snapshot := engine.GetSnapshot()

	if snapshot.TotalRequests != 4 {
		t.Errorf("TotalRequests = %d, want 4", snapshot.TotalRequests)
	}
	if snapshot.SuccessRequests != 2 {
		t.Errorf("SuccessRequests = %d, want 2", snapshot.SuccessRequests)
	}
	if snapshot.FailedRequests != 2 {
		t.Errorf("FailedRequests = %d, want 2", snapshot.FailedRequests)
	}
	if snapshot.TotalBytes != 300 {
		t.Errorf("TotalBytes = %d, want 300", snapshot.TotalBytes)
	}
	if snapshot.StatusCodes[200] != 2 || snapshot.StatusCodes[500] != 1 || snapshot.StatusCodes[0] != 1 {
		t.Errorf("StatusCodes = %v", snapshot.StatusCodes)
	}
	if snapshot.Latency.Min != 0 {
		t.Errorf("Latency.Min = %v, want 0 for the unconnected request", snapshot.Latency.Min)
	}
	if engine.FailedRate() != 0.5 {
		t.Errorf("FailedRate() = %v, want 0.5", engine.FailedRate())
	}
}

func TestEngine_FailedRateBoundary(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	for i := 0; i < 1000; i++ {
		status := 200
		if i < 20 {
			status = 503
		}
		engine.RecordRequest(request("/user", status, time.Millisecond))
	}

	th, err := threshold.Parse(threshold.MetricHTTPReqFailed, "rate<0.02")
	if err != nil {
		t.Fatal(err)
	}
	if r := th.Evaluate(engine); r.Passed {
		t.Errorf("rate<0.02 passed at %s, want fail", r.Value)
	}
}

func TestEngine_LatencyPercentiles(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	for i := 1; i <= 10; i++ {
		engine.RecordRequest(request("", 200, time.Duration(i*10)*time.Millisecond))
	}

	percentiles := engine.GetLatencyPercentiles()

	if percentiles.P50 < 40*time.Millisecond || percentiles.P50 > 60*time.Millisecond {
		t.Errorf("P50 = %v, want ~50ms", percentiles.P50)
	}
	if percentiles.P99 < 90*time.Millisecond || percentiles.P99 > 110*time.Millisecond {
		t.Errorf("P99 = %v, want ~100ms", percentiles.P99)
	}
	if q := engine.LatencyQuantile(95); q < 90*time.Millisecond || q > 110*time.Millisecond {
		t.Errorf("LatencyQuantile(95) = %v, want ~100ms", q)
	}
	if m := engine.LatencyMean(); m < 54*time.Millisecond || m > 56*time.Millisecond {
		t.Errorf("LatencyMean() = %v, want ~55ms", m)
	}
	if engine.LatencyMin() < 9*time.Millisecond || engine.LatencyMax() > 101*time.Millisecond {
		t.Errorf("Min/Max = %v/%v", engine.LatencyMin(), engine.LatencyMax())
	}
}

func TestEngine_Checks(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	engine.RecordCheck("status is 200", true)
	engine.RecordCheck("response time < 500ms", false)
	engine.RecordCheck("status is 200", false)
	engine.RecordCheck("response time < 500ms", true)
	engine.RecordCheck("status is 200", true)

	stats := engine.GetCheckStats()
	if len(stats) != 2 {
		t.Fatalf("GetCheckStats() length = %d, want 2", len(stats))
	}
	if stats[0].Name != "status is 200" || stats[0].Passes != 2 || stats[0].Fails != 1 {
		t.Errorf("stats[0] = %+v", stats[0])
	}
	if stats[1].Name != "response time < 500ms" || stats[1].Passes != 1 || stats[1].Fails != 1 {
		t.Errorf("stats[1] = %+v", stats[1])
	}
	if got := engine.CheckRate(); got != 0.6 {
		t.Errorf("CheckRate() = %v, want 0.6", got)
	}
}

func TestEngine_Iterations(t *testing.T) {
	engine := NewEngine()

	engine.RecordIteration(10 * time.Second)
	engine.RecordIteration(11 * time.Second)
	engine.Stop()

	if engine.IterationCount() != 2 {
		t.Errorf("IterationCount() = %d, want 2", engine.IterationCount())
	}

	snapshot := engine.GetSnapshot()
	if snapshot.IterationDuration.Count != 2 {
		t.Errorf("IterationDuration.Count = %d, want 2", snapshot.IterationDuration.Count)
	}
	if snapshot.IterationRate <= 0 {
		t.Errorf("IterationRate = %v, want > 0", snapshot.IterationRate)
	}
}

func TestEngine_EndpointStats(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	engine.RecordRequest(request("/user", 200, 10*time.Millisecond))
	engine.RecordRequest(request("/user", 404, 15*time.Millisecond))
	engine.RecordRequest(request("/friends", 200, 50*time.Millisecond))

	stats := engine.GetEndpointStats()
	if len(stats) != 2 {
		t.Fatalf("GetEndpointStats() length = %d, want 2", len(stats))
	}

	if stats[0].Endpoint != "/friends" || stats[0].Requests != 1 {
		t.Errorf("stats[0] = %+v", stats[0])
	}
	if stats[1].Endpoint != "/user" || stats[1].Requests != 2 || stats[1].Failed != 1 {
		t.Errorf("stats[1] = %+v", stats[1])
	}
}

func TestEngine_Phase(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	phases := []Phase{PhaseRampUp, PhaseSteady, PhaseSteady, PhaseRampDown, PhaseDone}
	for _, phase := range phases {
		engine.SetPhase(phase)
		if engine.GetPhase() != phase {
			t.Errorf("After SetPhase(%v), GetPhase() = %v", phase, engine.GetPhase())
		}
	}

	history := engine.GetPhaseHistory()
	if len(history) != 4 {
		t.Errorf("PhaseHistory length = %d, want 4", len(history))
	}
}

func TestEngine_StopFreezesElapsed(t *testing.T) {
	engine := NewEngine()
	engine.Stop()
	engine.Stop()

	first := engine.GetSnapshot().Elapsed
	time.Sleep(10 * time.Millisecond)
	if second := engine.GetSnapshot().Elapsed; second != first {
		t.Errorf("Elapsed moved after Stop: %v -> %v", first, second)
	}
	if len(engine.GetTimeSeries()) == 0 {
		t.Error("Stop() should emit a final bucket")
	}
}

func TestEngine_Emitter(t *testing.T) {
	config := DefaultEngineConfig()
	config.BucketInterval = 10 * time.Millisecond

	engine := NewEngineWithConfig(config)
	defer engine.Stop()

	engine.SetPhase(PhaseSteady)
	engine.SetActiveVUs(3)
	engine.RecordRequest(request("/user", 200, time.Millisecond))

	deadline := time.Now().Add(2 * time.Second)
	for engine.GetLatestBucket() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	latest := engine.GetLatestBucket()
	if latest == nil {
		t.Fatal("no bucket emitted")
	}
	if latest.Phase != PhaseSteady || latest.ActiveVUs != 3 {
		t.Errorf("latest bucket = %+v", latest)
	}
}

func TestEngine_ConcurrentRecording(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	var wg sync.WaitGroup
	for vu := 0; vu < 50; vu++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				engine.RecordRequest(request("/user", 200, time.Millisecond))
				engine.RecordCheck("status is 200", true)
				engine.RecordIteration(time.Second)
			}
		}()
	}
	wg.Wait()

	snapshot := engine.GetSnapshot()
	if snapshot.TotalRequests != 5000 {
		t.Errorf("TotalRequests = %d, want 5000", snapshot.TotalRequests)
	}
	if snapshot.CheckPasses != 5000 {
		t.Errorf("CheckPasses = %d, want 5000", snapshot.CheckPasses)
	}
	if snapshot.Iterations != 5000 {
		t.Errorf("Iterations = %d, want 5000", snapshot.Iterations)
	}
}
