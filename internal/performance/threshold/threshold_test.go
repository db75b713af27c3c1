package threshold

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	quantiles  map[float64]time.Duration
	mean       time.Duration
	min, max   time.Duration
	failedRate float64
	requests   int64
	reqRate    float64
	checkRate  float64
	iterations int64
	iterRate   float64
}

func (f *fakeSource) LatencyQuantile(q float64) time.Duration { return f.quantiles[q] }
func (f *fakeSource) LatencyMean() time.Duration              { return f.mean }
func (f *fakeSource) LatencyMin() time.Duration               { return f.min }
func (f *fakeSource) LatencyMax() time.Duration               { return f.max }
func (f *fakeSource) FailedRate() float64                     { return f.failedRate }
func (f *fakeSource) RequestCount() int64                     { return f.requests }
func (f *fakeSource) RequestRate() float64                    { return f.reqRate }
func (f *fakeSource) CheckRate() float64                      { return f.checkRate }
func (f *fakeSource) IterationCount() int64                   { return f.iterations }
func (f *fakeSource) IterationRate() float64                  { return f.iterRate }

func TestParse(t *testing.T) {
	tests := []struct {
		metric     string
		expr       string
		agg        string
		percentile float64
		op         Operator
		value      float64
	}{
		{MetricHTTPReqFailed, "rate<0.02", "rate", 0, OpLess, 0.02},
		{MetricHTTPReqDuration, "p(95)<2000", "p", 95, OpLess, 2000},
		{MetricHTTPReqDuration, "p95 < 2s", "p", 95, OpLess, 2000},
		{MetricHTTPReqDuration, "p(99.9)<=1500", "p", 99.9, OpLessEqual, 1500},
		{MetricHTTPReqDuration, "avg <= 300ms", "avg", 0, OpLessEqual, 300},
		{MetricHTTPReqDuration, "med<250", "med", 0, OpLess, 250},
		{MetricHTTPReqs, "count > 100", "count", 0, OpGreater, 100},
		{MetricHTTPReqs, "rate>=50", "rate", 0, OpGreaterEqual, 50},
		{MetricChecks, "rate>0.95", "rate", 0, OpGreater, 0.95},
		{MetricIterations, "count!=0", "count", 0, OpNotEqual, 0},
	}

	for _, tt := range tests {
		t.Run(tt.metric+" "+tt.expr, func(t *testing.T) {
			th, err := Parse(tt.metric, tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.agg, th.Aggregation)
			assert.Equal(t, tt.percentile, th.Percentile)
			assert.Equal(t, tt.op, th.Op)
			assert.InDelta(t, tt.value, th.Value, 1e-9)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		metric string
		expr   string
	}{
		{"unknown metric", "vus", "value<10"},
		{"empty", MetricHTTPReqFailed, "   "},
		{"no operator", MetricHTTPReqFailed, "rate 0.02"},
		{"wrong aggregation", MetricHTTPReqFailed, "p(95)<0.02"},
		{"percentile without value", MetricHTTPReqDuration, "p<200"},
		{"percentile out of range", MetricHTTPReqDuration, "p(101)<200"},
		{"argument on non percentile", MetricHTTPReqDuration, "avg(5)<200"},
		{"bad duration", MetricHTTPReqDuration, "p(95)<fast"},
		{"bad number", MetricHTTPReqs, "count>lots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.metric, tt.expr)
			assert.Error(t, err)
		})
	}
}

func TestEvaluate_FailedRateBoundary(t *testing.T) {
	th, err := Parse(MetricHTTPReqFailed, "rate<0.02")
	require.NoError(t, err)

	atLimit := th.Evaluate(&fakeSource{failedRate: 0.02})
	assert.False(t, atLimit.Passed)
	assert.Equal(t, "0.0200", atLimit.Value)
	assert.NotEmpty(t, atLimit.Message)

	below := th.Evaluate(&fakeSource{failedRate: 0.019})
	assert.True(t, below.Passed)
	assert.Empty(t, below.Message)
}

func TestEvaluate_DurationInMilliseconds(t *testing.T) {
	th, err := Parse(MetricHTTPReqDuration, "p(95)<2000")
	require.NoError(t, err)

	fast := &fakeSource{quantiles: map[float64]time.Duration{95: 1999 * time.Millisecond}}
	slow := &fakeSource{quantiles: map[float64]time.Duration{95: 2 * time.Second}}

	r := th.Evaluate(fast)
	assert.True(t, r.Passed)
	assert.Equal(t, "1.999s", r.Value)

	assert.False(t, th.Evaluate(slow).Passed)
}

func TestEvaluate_OtherMetrics(t *testing.T) {
	src := &fakeSource{
		mean:       120 * time.Millisecond,
		min:        5 * time.Millisecond,
		max:        900 * time.Millisecond,
		quantiles:  map[float64]time.Duration{50: 100 * time.Millisecond},
		requests:   1500,
		reqRate:    99.5,
		checkRate:  0.97,
		iterations: 1500,
		iterRate:   99.5,
	}

	cases := map[string]struct {
		metric string
		expr   string
		want   bool
	}{
		"avg":             {MetricHTTPReqDuration, "avg<150", true},
		"min":             {MetricHTTPReqDuration, "min>10ms", false},
		"max":             {MetricHTTPReqDuration, "max<1s", true},
		"med":             {MetricHTTPReqDuration, "med==100", true},
		"request count":   {MetricHTTPReqs, "count>=1500", true},
		"request rate":    {MetricHTTPReqs, "rate>100", false},
		"checks":          {MetricChecks, "rate>0.95", true},
		"iteration count": {MetricIterations, "count>0", true},
		"iteration rate":  {MetricIterations, "rate<100", true},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			th, err := Parse(c.metric, c.expr)
			require.NoError(t, err)
			assert.Equal(t, c.want, th.Evaluate(src).Passed)
		})
	}
}

func TestParseAll_CollectsErrorsInOrder(t *testing.T) {
	exprs := map[string][]string{
		MetricHTTPReqDuration: {"p(95)<2000", "nonsense"},
		MetricHTTPReqFailed:   {"rate<0.02"},
		"custom_metric":       {"rate<1"},
	}

	parsed, errs := ParseAll(exprs)
	require.Len(t, parsed, 2)
	assert.Equal(t, MetricHTTPReqDuration, parsed[0].Metric)
	assert.Equal(t, MetricHTTPReqFailed, parsed[1].Metric)

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "thresholds.http_req_duration[1]")
	assert.Contains(t, errs[1].Error(), "custom_metric")
}

func TestEvaluateAll(t *testing.T) {
	parsed, errs := ParseAll(map[string][]string{
		MetricHTTPReqFailed:   {"rate<0.02"},
		MetricHTTPReqDuration: {"p(95)<2000"},
	})
	require.Empty(t, errs)

	src := &fakeSource{
		failedRate: 0.01,
		quantiles:  map[float64]time.Duration{95: 2500 * time.Millisecond},
	}

	results, passed := EvaluateAll(parsed, src)
	assert.False(t, passed)
	require.Len(t, results, 2)
	assert.False(t, results[0].Passed, "p95 threshold should fail")
	assert.True(t, results[1].Passed, "failure rate threshold should pass")
}

func TestCompare(t *testing.T) {
	assert.True(t, Compare(1, OpLess, 2))
	assert.True(t, Compare(2, OpLessEqual, 2))
	assert.True(t, Compare(3, OpGreater, 2))
	assert.True(t, Compare(2, OpGreaterEqual, 2))
	assert.True(t, Compare(2, OpEqual, 2))
	assert.True(t, Compare(1, OpNotEqual, 2))
	assert.False(t, Compare(1, Operator("~"), 2))
}
