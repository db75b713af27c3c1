package scenario

import (
	"fmt"
	"strconv"
	"time"
)

// Check types.
const (
	CheckStatus   = "status"
	CheckDuration = "duration"
)

// Check is a named boolean condition over a response. A failing check is
// recorded and never aborts the iteration.
type Check struct {
	Name string
	fn   func(*Response) bool
}

// Run evaluates the check against r.
func (c Check) Run(r *Response) bool {
	if c.fn == nil {
		return false
	}
	return c.fn(r)
}

// NewCheck builds a check from its declarative form. Duration values take
// Go duration syntax; a bare number is milliseconds.
//
// Example:
//
//	NewCheck("status is 200", "status", "eq", "200")
//	NewCheck("response time < 500ms", "duration", "lt", "500ms")
func NewCheck(name, kind, condition, value string) (Check, error) {
	cmp, ok := comparators[condition]
	if !ok {
		return Check{}, fmt.Errorf("unknown check condition: %q", condition)
	}

	switch kind {
	case CheckStatus:
		want, err := strconv.Atoi(value)
		if err != nil {
			return Check{}, fmt.Errorf("status check value must be an integer: %q", value)
		}
		return Check{Name: name, fn: func(r *Response) bool {
			return cmp(int64(r.Status), int64(want))
		}}, nil

	case CheckDuration:
		want, err := parseMillis(value)
		if err != nil {
			return Check{}, err
		}
		return Check{Name: name, fn: func(r *Response) bool {
			return cmp(int64(r.Duration), int64(want))
		}}, nil

	default:
		return Check{}, fmt.Errorf("unknown check type: %q", kind)
	}
}

// MustCheck is like NewCheck but panics on error.
func MustCheck(name, kind, condition, value string) Check {
	c, err := NewCheck(name, kind, condition, value)
	if err != nil {
		panic(err)
	}
	return c
}

var comparators = map[string]func(a, b int64) bool{
	"eq":  func(a, b int64) bool { return a == b },
	"ne":  func(a, b int64) bool { return a != b },
	"lt":  func(a, b int64) bool { return a < b },
	"lte": func(a, b int64) bool { return a <= b },
	"gt":  func(a, b int64) bool { return a > b },
	"gte": func(a, b int64) bool { return a >= b },
}

func parseMillis(s string) (time.Duration, error) {
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(ms * float64(time.Millisecond)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("duration check value is invalid: %q", s)
	}
	return d, nil
}
