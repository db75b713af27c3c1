// Package config loads, defaults and validates chessload scenario files.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ScenarioConfig is the root of a scenario file.
//
// Example YAML:
//
//	name: api_1000_users
//	settings:
//	  baseUrl: "https://api.example.com"
//	  timeout: 60s
//	endpoints: [/user, /userRatings, /matchResults, /activeMatches, /friends]
//	thinkTime: 10s
//	stages:
//	  - duration: 5m
//	    target: 1000
//	thresholds:
//	  http_req_failed: ["rate<0.02"]
type ScenarioConfig struct {
	// Name of the run (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Settings for the shared HTTP client and request construction
	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Endpoints are the paths appended to the base URL, picked uniformly
	Endpoints []string `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`

	// ThinkTime is the pause after every iteration
	ThinkTime Duration `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`

	// Stages is the ramping-VUs schedule
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// GracefulRampDown bounds how long a retired VU may keep iterating
	GracefulRampDown Duration `json:"gracefulRampDown,omitempty" yaml:"gracefulRampDown,omitempty"`

	// GracefulStop bounds how long iterations may run after the last stage
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// Checks evaluated against every response
	Checks []CheckConfig `json:"checks,omitempty" yaml:"checks,omitempty"`

	// Thresholds map a metric name to its pass/fail expressions
	Thresholds map[string][]string `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// Settings contains HTTP and request settings.
type Settings struct {
	// BaseURL is prefixed verbatim to every endpoint (BASE_URL)
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Token is sent verbatim as the Authorization header (TOKEN)
	Token string `json:"token,omitempty" yaml:"token,omitempty"`

	// Timeout is the per-request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// DiscardResponseBodies drains bodies without keeping them (default true)
	DiscardResponseBodies *bool `json:"discardResponseBodies,omitempty" yaml:"discardResponseBodies,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
}

// DiscardBodies reports whether response bodies are discarded.
func (s Settings) DiscardBodies() bool {
	if s.DiscardResponseBodies == nil {
		return true
	}
	return *s.DiscardResponseBodies
}

// StageConfig defines a ramping stage.
type StageConfig struct {
	// Duration of this stage
	Duration Duration `json:"duration" yaml:"duration"`

	// Target is the VU count reached at the end of the stage
	Target int `json:"target" yaml:"target"`
}

// CheckConfig defines a per-response check.
//
// Example YAML:
//
//	checks:
//	  - name: "status is 200"
//	    type: status
//	    condition: eq
//	    value: 200
//	  - name: "response time < 500ms"
//	    type: duration
//	    condition: lt
//	    value: 500ms
type CheckConfig struct {
	Name      string     `json:"name" yaml:"name"`
	Type      string     `json:"type" yaml:"type"`
	Condition string     `json:"condition" yaml:"condition"`
	Value     CheckValue `json:"value" yaml:"value"`
}

// CheckValue holds a check operand. Numbers and strings are both accepted.
type CheckValue string

// UnmarshalJSON implements json.Unmarshaler.
func (v *CheckValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = CheckValue(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("check value must be a string or number: %s", string(b))
	}
	*v = CheckValue(n.String())
	return nil
}

// MarshalYAML implements yaml.Marshaler. Integers are written unquoted.
func (v CheckValue) MarshalYAML() (interface{}, error) {
	if n, err := strconv.Atoi(string(v)); err == nil {
		return n, nil
	}
	return string(v), nil
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML.
// Strings use Go duration syntax ("30s", "5m"); bare numbers are seconds.
type Duration time.Duration

// GetDuration returns the duration or a default if zero.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Value == "" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// ParseDurationString parses a Go duration or a number of seconds.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as a number: "10", "0.5"
func ParseDurationString(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}
