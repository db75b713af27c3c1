package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chess-vn/chessload/internal/config"
	"github.com/chess-vn/chessload/internal/performance/metrics"
)

const testToken = "Bearer test-token"

// createTestServer serves every endpoint with status, counting requests that
// carried the expected token.
func createTestServer(status int, authorized *atomic.Int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authorized != nil && r.Header.Get("Authorization") == testToken {
			authorized.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
}

func shortScenario(baseURL string) *config.ScenarioConfig {
	return &config.ScenarioConfig{
		Name: "engine-test",
		Settings: config.Settings{
			BaseURL: baseURL,
			Token:   testToken,
		},
		ThinkTime: config.Duration(10 * time.Millisecond),
		Stages: []config.StageConfig{
			{Duration: config.Duration(300 * time.Millisecond), Target: 3},
			{Duration: config.Duration(200 * time.Millisecond), Target: 0},
		},
		GracefulRampDown: config.Duration(time.Second),
		GracefulStop:     config.Duration(time.Second),
	}
}

func testOptions() Options {
	return Options{ControlInterval: 10 * time.Millisecond}
}

func TestNew_AppliesDefaults(t *testing.T) {
	cfg := &config.ScenarioConfig{}

	eng, err := New(cfg, Options{})
	require.NoError(t, err)

	assert.Equal(t, config.DefaultName, eng.GetConfig().Name)
	assert.Len(t, eng.GetConfig().Endpoints, 5)
	assert.Len(t, eng.checks, 2)
	assert.Len(t, eng.thresholds, 2)
	assert.Equal(t, config.DefaultTimeout, eng.httpConfig.Timeout)
	assert.Equal(t, 1000, eng.httpConfig.MaxIdleConns)

	_, err = uuid.Parse(eng.RunID())
	assert.NoError(t, err)

	assert.Nil(t, eng.GetMetrics())
	assert.Nil(t, eng.GetStats())
	assert.Zero(t, eng.GetProgress())
	assert.False(t, eng.IsRunning())
}

func TestNew_InvalidConfiguration(t *testing.T) {
	cfg := shortScenario("http://localhost")
	cfg.Thresholds = map[string][]string{"http_req_failed": {"rate<<0.02"}}

	_, err := New(cfg, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	_, err = New(nil, Options{})
	assert.Error(t, err)
}

func TestRun_PassingScenario(t *testing.T) {
	var authorized atomic.Int64
	server := createTestServer(http.StatusOK, &authorized)
	defer server.Close()

	eng, err := New(shortScenario(server.URL), testOptions())
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, eng.RunID(), result.RunID)
	assert.Equal(t, "engine-test", result.Name)
	assert.False(t, result.Interrupted)
	assert.True(t, result.Passed)
	assert.GreaterOrEqual(t, result.Duration, 500*time.Millisecond)

	require.NotNil(t, result.Metrics)
	assert.Greater(t, result.Metrics.TotalRequests, int64(0))
	assert.Zero(t, result.Metrics.FailedRequests)
	assert.Equal(t, result.Metrics.TotalRequests, authorized.Load(), "every request carries the token")
	assert.Greater(t, result.Metrics.Iterations, int64(0))

	require.Len(t, result.Checks, 2)
	assert.Equal(t, "status is 200", result.Checks[0].Name)
	assert.Equal(t, "response time < 500ms", result.Checks[1].Name)
	for _, c := range result.Checks {
		assert.Zero(t, c.Fails, "check %s", c.Name)
	}

	var endpointTotal int64
	for _, ep := range result.Endpoints {
		assert.Contains(t, config.DefaultEndpoints(), ep.Endpoint)
		endpointTotal += ep.Requests
	}
	assert.Equal(t, result.Metrics.TotalRequests, endpointTotal)

	require.Len(t, result.Thresholds, 2)
	for _, tr := range result.Thresholds {
		assert.True(t, tr.Passed, "%s %s", tr.Metric, tr.Expression)
	}

	require.NotEmpty(t, result.PhaseHistory)
	assert.Equal(t, metrics.PhaseDone, result.PhaseHistory[len(result.PhaseHistory)-1].Phase)

	require.NotNil(t, result.Executor)
	assert.Equal(t, 3, result.Executor.MaxVUs)
	assert.Equal(t, float64(1), eng.GetProgress())
	assert.False(t, eng.IsRunning())
}

func TestRun_FailedRequestsCrossThreshold(t *testing.T) {
	server := createTestServer(http.StatusInternalServerError, nil)
	defer server.Close()

	eng, err := New(shortScenario(server.URL), testOptions())
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err, "crossed thresholds are a result, not an error")

	assert.False(t, result.Passed)
	assert.Equal(t, result.Metrics.TotalRequests, result.Metrics.FailedRequests)

	var failedThreshold bool
	for _, tr := range result.Thresholds {
		if tr.Metric == "http_req_failed" {
			failedThreshold = true
			assert.False(t, tr.Passed)
		}
	}
	assert.True(t, failedThreshold)

	// A 500 fails the status check only
	require.Len(t, result.Checks, 2)
	assert.Zero(t, result.Checks[0].Passes)
	assert.Zero(t, result.Checks[1].Fails)
}

func TestRun_WarnsOnceAboutMissingEnvironment(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	cfg := shortScenario("")
	cfg.Settings.Token = ""
	cfg.Stages = []config.StageConfig{{Duration: config.Duration(100 * time.Millisecond), Target: 1}}

	opts := testOptions()
	opts.Logger = logger

	eng, err := New(cfg, opts)
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	var warnings int
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "environment not set, requests will be sent without it" {
			warnings++
			assert.Equal(t, "BASE_URL,TOKEN", entry.Data["missing"])
			assert.Equal(t, eng.RunID(), entry.Data["run_id"])
		}
	}
	assert.Equal(t, 1, warnings)

	// Requests to a relative URL fail and are counted
	assert.Greater(t, result.Metrics.TotalRequests, int64(0))
	assert.Equal(t, result.Metrics.TotalRequests, result.Metrics.FailedRequests)
	assert.False(t, result.Passed)
}

func TestRun_ContextCancellation(t *testing.T) {
	server := createTestServer(http.StatusOK, nil)
	defer server.Close()

	cfg := shortScenario(server.URL)
	cfg.ThinkTime = config.Duration(time.Hour)
	cfg.GracefulStop = config.Duration(time.Minute)
	cfg.Stages = []config.StageConfig{
		{Duration: 0, Target: 5},
		{Duration: config.Duration(time.Minute), Target: 5},
	}

	eng, err := New(cfg, testOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result, err := eng.Run(ctx)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, result.Interrupted)
	assert.Greater(t, result.Metrics.TotalRequests, int64(0))
	assert.Zero(t, result.Metrics.Iterations, "think-time never completed")
}

func TestRun_Stop(t *testing.T) {
	server := createTestServer(http.StatusOK, nil)
	defer server.Close()

	cfg := shortScenario(server.URL)
	cfg.Stages = []config.StageConfig{
		{Duration: 0, Target: 2},
		{Duration: config.Duration(time.Minute), Target: 2},
	}

	eng, err := New(cfg, testOptions())
	require.NoError(t, err)

	done := make(chan *TestResult, 1)
	go func() {
		result, _ := eng.Run(context.Background())
		done <- result
	}()

	require.Eventually(t, func() bool {
		m := eng.GetMetrics()
		return m != nil && m.TotalRequests > 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, eng.IsRunning())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, eng.Stop(ctx))

	select {
	case result := <-done:
		require.NotNil(t, result)
		assert.False(t, result.Interrupted)
		assert.Greater(t, result.Metrics.Iterations, int64(0))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestRun_MirrorsSamplesToExporter(t *testing.T) {
	server := createTestServer(http.StatusOK, nil)
	defer server.Close()

	exporter := metrics.NewExporter()
	opts := testOptions()
	opts.Exporter = exporter

	eng, err := New(shortScenario(server.URL), opts)
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	families, err := exporter.Registry().Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != "chessload_http_reqs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(result.Metrics.TotalRequests), total)
}
