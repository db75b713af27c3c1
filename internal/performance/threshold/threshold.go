// Package threshold parses and evaluates run-level pass/fail criteria.
//
// Expressions follow the k6 syntax, with the spaced variant also accepted:
//
//	rate<0.02
//	p(95)<2000
//	p95 < 2s
//	avg <= 300ms
//	count > 100
package threshold

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Metric names understood by the evaluator.
const (
	MetricHTTPReqDuration = "http_req_duration"
	MetricHTTPReqFailed   = "http_req_failed"
	MetricHTTPReqs        = "http_reqs"
	MetricChecks          = "checks"
	MetricIterations      = "iterations"
)

// Operator is a comparison operator.
type Operator string

const (
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// Threshold is a parsed threshold expression bound to a metric.
type Threshold struct {
	Metric     string
	Expression string

	// Aggregation is "avg", "min", "max", "med", "p", "rate" or "count".
	Aggregation string
	// Percentile is set when Aggregation is "p" (e.g. 95 for p(95)).
	Percentile float64

	Op    Operator
	Value float64
}

// Result is the outcome of evaluating a single threshold.
type Result struct {
	Metric     string `json:"metric"`
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Value      string `json:"value"`
	Message    string `json:"message,omitempty"`
}

// Source provides the aggregated values thresholds are evaluated against.
type Source interface {
	LatencyQuantile(q float64) time.Duration
	LatencyMean() time.Duration
	LatencyMin() time.Duration
	LatencyMax() time.Duration
	FailedRate() float64
	RequestCount() int64
	RequestRate() float64
	CheckRate() float64
	IterationCount() int64
	IterationRate() float64
}

var exprRe = regexp.MustCompile(`^([a-z]+)(?:\((\d+(?:\.\d+)?)\)|(\d+(?:\.\d+)?))?\s*(<=|>=|==|!=|<|>)\s*(.+)$`)

// allowed lists the aggregations each metric supports.
var allowed = map[string]map[string]bool{
	MetricHTTPReqDuration: {"avg": true, "min": true, "max": true, "med": true, "p": true},
	MetricHTTPReqFailed:   {"rate": true},
	MetricHTTPReqs:        {"count": true, "rate": true},
	MetricChecks:          {"rate": true},
	MetricIterations:      {"count": true, "rate": true},
}

// Metrics returns the names of all supported threshold metrics.
func Metrics() []string {
	return []string{MetricHTTPReqDuration, MetricHTTPReqFailed, MetricHTTPReqs, MetricChecks, MetricIterations}
}

// Parse parses an expression for the given metric.
func Parse(metric, expr string) (*Threshold, error) {
	aggs, ok := allowed[metric]
	if !ok {
		return nil, fmt.Errorf("unknown threshold metric: %s", metric)
	}

	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, fmt.Errorf("threshold expression cannot be empty")
	}

	m := exprRe.FindStringSubmatch(trimmed)
	if m == nil {
		return nil, fmt.Errorf("invalid expression format: %s", expr)
	}

	t := &Threshold{
		Metric:      metric,
		Expression:  trimmed,
		Aggregation: m[1],
		Op:          Operator(m[4]),
	}

	pct := m[2]
	if pct == "" {
		pct = m[3]
	}
	if pct != "" {
		if t.Aggregation != "p" {
			return nil, fmt.Errorf("only percentiles take an argument, got %s", m[1])
		}
		p, err := strconv.ParseFloat(pct, 64)
		if err != nil || p <= 0 || p > 100 {
			return nil, fmt.Errorf("invalid percentile: %s", pct)
		}
		t.Percentile = p
	} else if t.Aggregation == "p" {
		return nil, fmt.Errorf("percentile requires a value, e.g. p(95)")
	}

	if !aggs[t.Aggregation] {
		return nil, fmt.Errorf("%s does not support aggregation %q", metric, t.Aggregation)
	}

	value, err := parseValue(metric, strings.TrimSpace(m[5]))
	if err != nil {
		return nil, err
	}
	t.Value = value

	return t, nil
}

// parseValue parses the right-hand side. Duration thresholds are held in
// milliseconds; a bare number is already milliseconds.
func parseValue(metric, s string) (float64, error) {
	if metric == MetricHTTPReqDuration {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration value %q: %w", s, err)
		}
		return float64(d) / float64(time.Millisecond), nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value %q: %w", s, err)
	}
	return v, nil
}

// Evaluate evaluates the threshold against the source.
func (t *Threshold) Evaluate(src Source) Result {
	result := Result{
		Metric:     t.Metric,
		Expression: t.Expression,
	}

	actual := t.actual(src)

	if t.Metric == MetricHTTPReqDuration {
		result.Value = time.Duration(actual * float64(time.Millisecond)).Round(time.Microsecond).String()
	} else if t.Aggregation == "count" {
		result.Value = strconv.FormatFloat(actual, 'f', 0, 64)
	} else {
		result.Value = strconv.FormatFloat(actual, 'f', 4, 64)
	}

	result.Passed = Compare(actual, t.Op, t.Value)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s", t.aggLabel(), result.Value, t.Op, strconv.FormatFloat(t.Value, 'f', -1, 64))
	}

	return result
}

func (t *Threshold) aggLabel() string {
	if t.Aggregation == "p" {
		return fmt.Sprintf("p(%s)", strconv.FormatFloat(t.Percentile, 'f', -1, 64))
	}
	return t.Aggregation
}

// actual returns the observed value in the threshold's unit.
func (t *Threshold) actual(src Source) float64 {
	ms := func(d time.Duration) float64 {
		return float64(d) / float64(time.Millisecond)
	}

	switch t.Metric {
	case MetricHTTPReqDuration:
		switch t.Aggregation {
		case "avg":
			return ms(src.LatencyMean())
		case "min":
			return ms(src.LatencyMin())
		case "max":
			return ms(src.LatencyMax())
		case "med":
			return ms(src.LatencyQuantile(50))
		case "p":
			return ms(src.LatencyQuantile(t.Percentile))
		}
	case MetricHTTPReqFailed:
		return src.FailedRate()
	case MetricHTTPReqs:
		if t.Aggregation == "count" {
			return float64(src.RequestCount())
		}
		return src.RequestRate()
	case MetricChecks:
		return src.CheckRate()
	case MetricIterations:
		if t.Aggregation == "count" {
			return float64(src.IterationCount())
		}
		return src.IterationRate()
	}
	return 0
}

// Compare compares two values using the given operator.
func Compare(actual float64, op Operator, threshold float64) bool {
	switch op {
	case OpLess:
		return actual < threshold
	case OpLessEqual:
		return actual <= threshold
	case OpGreater:
		return actual > threshold
	case OpGreaterEqual:
		return actual >= threshold
	case OpEqual:
		return actual == threshold
	case OpNotEqual:
		return actual != threshold
	default:
		return false
	}
}

// ParseAll parses a metric -> expressions map, collecting every error.
func ParseAll(exprs map[string][]string) ([]*Threshold, []error) {
	var (
		out  []*Threshold
		errs []error
	)

	// Known metrics first, in a fixed order.
	for _, metric := range sortedKeys(exprs) {
		for i, expr := range exprs[metric] {
			t, err := Parse(metric, expr)
			if err != nil {
				errs = append(errs, fmt.Errorf("thresholds.%s[%d]: %w", metric, i, err))
				continue
			}
			out = append(out, t)
		}
	}

	return out, errs
}

// EvaluateAll evaluates every threshold and reports whether all passed.
func EvaluateAll(thresholds []*Threshold, src Source) ([]Result, bool) {
	passed := true
	results := make([]Result, 0, len(thresholds))
	for _, t := range thresholds {
		r := t.Evaluate(src)
		if !r.Passed {
			passed = false
		}
		results = append(results, r)
	}
	return results, passed
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for _, known := range Metrics() {
		if _, ok := m[known]; ok {
			keys = append(keys, known)
		}
	}
	// Unknown metrics go last so Parse can report them.
	var unknown []string
	for k := range m {
		if _, ok := allowed[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return append(keys, unknown...)
}
