package performance_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/chess-vn/chessload/internal/performance"
	"github.com/chess-vn/chessload/internal/performance/metrics"
	"github.com/chess-vn/chessload/internal/scenario"
)

func newTestServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"u1"}`))
	}))
}

// Helper function to create a driver against the test server
func createTestDriver(serverURL string, thinkTime time.Duration) *scenario.Driver {
	return &scenario.Driver{
		BaseURL:               serverURL,
		Token:                 "test-token",
		Endpoints:             []string{"/user", "/friends"},
		ThinkTime:             thinkTime,
		Checks:                []scenario.Check{scenario.MustCheck("status is 200", scenario.CheckStatus, "eq", "200")},
		DiscardResponseBodies: true,
	}
}

// thinkSignal returns a Sleep hook that closes entered the first time a VU
// starts its think-time.
func thinkSignal() (func(ctx context.Context, d time.Duration) error, <-chan struct{}) {
	entered := make(chan struct{})
	var once sync.Once
	return func(ctx context.Context, d time.Duration) error {
		once.Do(func() { close(entered) })
		return scenario.Sleep(ctx, d)
	}, entered
}

func TestNewVirtualUser(t *testing.T) {
	engine := metrics.NewEngine()
	defer engine.Stop()

	vu := performance.NewVirtualUser(context.Background(), 7, createTestDriver("http://localhost", 0), http.DefaultClient, engine)

	if vu.ID != 7 {
		t.Errorf("VU ID = %d, want 7", vu.ID)
	}
	if vu.GetState() != performance.VUStateIdle {
		t.Errorf("Initial VU state = %v, want %v", vu.GetState(), performance.VUStateIdle)
	}
	if vu.GetIteration() != 0 {
		t.Errorf("Initial iteration = %d, want 0", vu.GetIteration())
	}
	if vu.Context().Err() != nil {
		t.Errorf("new VU context already done: %v", vu.Context().Err())
	}
}

func TestVUState_String(t *testing.T) {
	tests := []struct {
		state performance.VUState
		want  string
	}{
		{performance.VUStateIdle, "idle"},
		{performance.VUStateRunning, "running"},
		{performance.VUStateStopping, "stopping"},
		{performance.VUStateStopped, "stopped"},
		{performance.VUState(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("VUState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestVirtualUser_RunIteration(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	engine := metrics.NewEngine()
	defer engine.Stop()

	vu := performance.NewVirtualUser(context.Background(), 1, createTestDriver(server.URL, 0), server.Client(), engine)

	for i := 0; i < 3; i++ {
		if err := vu.RunIteration(); err != nil {
			t.Fatalf("RunIteration() error = %v", err)
		}
	}

	if vu.GetIteration() != 3 {
		t.Errorf("Iteration count = %d, want 3", vu.GetIteration())
	}
	if engine.RequestCount() != 3 {
		t.Errorf("Recorded requests = %d, want 3", engine.RequestCount())
	}
	if engine.IterationCount() != 3 {
		t.Errorf("Recorded iterations = %d, want 3", engine.IterationCount())
	}
	if engine.CheckRate() != 1 {
		t.Errorf("Check rate = %v, want 1", engine.CheckRate())
	}
	if vu.GetState() != performance.VUStateIdle {
		t.Errorf("After iteration state = %v, want %v", vu.GetState(), performance.VUStateIdle)
	}
}

func TestVirtualUser_StateTransitions(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	engine := metrics.NewEngine()
	defer engine.Stop()

	vu := performance.NewVirtualUser(context.Background(), 1, createTestDriver(server.URL, 0), server.Client(), engine)

	if err := vu.RunIteration(); err != nil {
		t.Errorf("RunIteration() error = %v", err)
	}

	vu.RequestStop()
	if vu.GetState() != performance.VUStateStopping {
		t.Errorf("After RequestStop state = %v, want %v", vu.GetState(), performance.VUStateStopping)
	}
	if !vu.IsStopping() {
		t.Error("IsStopping() = false after RequestStop")
	}

	select {
	case <-vu.StopRequested():
	default:
		t.Error("StopRequested channel not closed after RequestStop")
	}

	// A second request is a no-op
	vu.RequestStop()

	vu.MarkStopped()
	if vu.GetState() != performance.VUStateStopped {
		t.Errorf("After MarkStopped state = %v, want %v", vu.GetState(), performance.VUStateStopped)
	}
}

func TestVirtualUser_RunIteration_StoppedVU(t *testing.T) {
	engine := metrics.NewEngine()
	defer engine.Stop()

	vu := performance.NewVirtualUser(context.Background(), 3, createTestDriver("http://localhost", 0), http.DefaultClient, engine)
	vu.RequestStop()

	if err := vu.RunIteration(); err == nil {
		t.Error("RunIteration() on a retired VU should fail")
	}
	if engine.RequestCount() != 0 {
		t.Errorf("Recorded requests = %d, want 0", engine.RequestCount())
	}
}

func TestVirtualUser_RetiredVUFinishesThinkTime(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	engine := metrics.NewEngine()
	defer engine.Stop()

	driver := createTestDriver(server.URL, 150*time.Millisecond)
	sleep, entered := thinkSignal()
	driver.Sleep = sleep

	vu := performance.NewVirtualUser(context.Background(), 1, driver, server.Client(), engine)

	errCh := make(chan error, 1)
	go func() { errCh <- vu.RunIteration() }()

	<-entered
	vu.RequestStop()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("RunIteration() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("retired VU never finished its iteration")
	}

	if engine.IterationCount() != 1 {
		t.Errorf("Recorded iterations = %d, want 1", engine.IterationCount())
	}
	if vu.GetState() != performance.VUStateStopping {
		t.Errorf("State = %v, want %v", vu.GetState(), performance.VUStateStopping)
	}
}

func TestVirtualUser_CancelInterruptsThinkTime(t *testing.T) {
	server := newTestServer()
	defer server.Close()

	engine := metrics.NewEngine()
	defer engine.Stop()

	driver := createTestDriver(server.URL, time.Hour)
	sleep, entered := thinkSignal()
	driver.Sleep = sleep

	vu := performance.NewVirtualUser(context.Background(), 1, driver, server.Client(), engine)

	errCh := make(chan error, 1)
	go func() { errCh <- vu.RunIteration() }()

	<-entered
	vu.Cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunIteration() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Cancel did not interrupt the think-time")
	}

	if engine.RequestCount() != 1 {
		t.Errorf("Recorded requests = %d, want 1", engine.RequestCount())
	}
	if engine.IterationCount() != 0 {
		t.Errorf("Recorded iterations = %d, want 0", engine.IterationCount())
	}
}

func TestVirtualUser_ParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	vu := performance.NewVirtualUser(parent, 1, createTestDriver("http://localhost", 0), http.DefaultClient, nil)

	cancel()

	select {
	case <-vu.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("VU context not cancelled with its parent")
	}
}

func TestVirtualUser_MarkStopped(t *testing.T) {
	vu := performance.NewVirtualUser(context.Background(), 1, createTestDriver("http://localhost", 0), http.DefaultClient, nil)

	vu.MarkStopped()
	vu.MarkStopped()

	if vu.GetState() != performance.VUStateStopped {
		t.Errorf("State = %v, want %v", vu.GetState(), performance.VUStateStopped)
	}

	select {
	case <-vu.Done():
	default:
		t.Error("Done channel not closed after MarkStopped")
	}
	select {
	case <-vu.StopRequested():
	default:
		t.Error("StopRequested channel not closed after MarkStopped")
	}
	if vu.Context().Err() == nil {
		t.Error("context not released after MarkStopped")
	}
}

func TestVirtualUser_WaitForStop(t *testing.T) {
	vu := performance.NewVirtualUser(context.Background(), 1, createTestDriver("http://localhost", 0), http.DefaultClient, nil)

	if vu.WaitForStop(20 * time.Millisecond) {
		t.Error("WaitForStop() = true before the VU stopped")
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		vu.MarkStopped()
	}()

	if !vu.WaitForStop(5 * time.Second) {
		t.Error("WaitForStop() = false after MarkStopped")
	}
}
