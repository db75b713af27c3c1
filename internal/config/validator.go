package config

import (
	"fmt"
	"strings"

	"github.com/chess-vn/chessload/internal/performance/threshold"
	"github.com/chess-vn/chessload/internal/scenario"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate validates a scenario after defaults have been applied.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
func (c *ScenarioConfig) Validate() error {
	errs := &ValidationErrors{}

	validateSettings(&c.Settings, errs)

	if len(c.Endpoints) == 0 {
		errs.Add("endpoints", "at least one endpoint is required")
	}
	for i, ep := range c.Endpoints {
		if ep == "" {
			errs.Add(fmt.Sprintf("endpoints[%d]", i), "endpoint cannot be empty")
		}
	}

	if c.ThinkTime < 0 {
		errs.Add("thinkTime", "must not be negative")
	}
	if c.GracefulRampDown < 0 {
		errs.Add("gracefulRampDown", "must not be negative")
	}
	if c.GracefulStop < 0 {
		errs.Add("gracefulStop", "must not be negative")
	}

	validateStages(c.Stages, errs)
	validateChecks(c.Checks, errs)

	if _, parseErrs := threshold.ParseAll(c.Thresholds); len(parseErrs) > 0 {
		for _, err := range parseErrs {
			errs.Add("", err.Error())
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateSettings(s *Settings, errs *ValidationErrors) {
	if s.Timeout < 0 {
		errs.Add("settings.timeout", "must not be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "must not be negative")
	}
}

func validateStages(stages []StageConfig, errs *ValidationErrors) {
	if len(stages) == 0 {
		errs.Add("stages", "at least one stage is required")
		return
	}

	var total Duration
	for i, stage := range stages {
		prefix := fmt.Sprintf("stages[%d]", i)
		if stage.Duration < 0 {
			errs.Add(prefix+".duration", "must not be negative")
		}
		if stage.Target < 0 {
			errs.Add(prefix+".target", "must not be negative")
		}
		total += stage.Duration
	}

	if total <= 0 {
		errs.Add("stages", "total stage duration must be greater than 0")
	}
}

func validateChecks(checks []CheckConfig, errs *ValidationErrors) {
	seen := make(map[string]bool, len(checks))
	for i, c := range checks {
		prefix := fmt.Sprintf("checks[%d]", i)
		if c.Name == "" {
			errs.Add(prefix+".name", "name is required")
		} else if seen[c.Name] {
			errs.Add(prefix+".name", fmt.Sprintf("duplicate check name: %s", c.Name))
		}
		seen[c.Name] = true

		if _, err := scenario.NewCheck(c.Name, c.Type, c.Condition, string(c.Value)); err != nil {
			errs.Add(prefix, err.Error())
		}
	}
}
