package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func scenarioSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("schema.json", strings.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("invalid scenario schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("schema.json")
	})
	return compiledSchema, schemaErr
}

// LoadScenario loads a scenario from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// The file is checked against the scenario schema before it is decoded.
// Defaults are not applied.
func LoadScenario(path string) (*ScenarioConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	return ParseScenario(data, path)
}

// ParseScenario parses scenario data. The format is taken from the extension
// in path and defaults to YAML.
func ParseScenario(data []byte, path string) (*ScenarioConfig, error) {
	doc, err := decodeDocument(data, path)
	if err != nil {
		return nil, err
	}

	if err := ValidateDocument(doc); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalise scenario: %w", err)
	}

	var cfg ScenarioConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}

	return &cfg, nil
}

// decodeDocument decodes data into the generic JSON data model.
func decodeDocument(data []byte, path string) (interface{}, error) {
	var doc interface{}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON scenario: %w", err)
		}
		return doc, nil
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML scenario: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse scenario (unknown format %s): %w", ext, err)
		}
	}

	if doc == nil {
		return map[string]interface{}{}, nil
	}

	// YAML scalars come back as Go ints and similar; the schema validator
	// wants the types encoding/json produces.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML scenario: %w", err)
	}
	var normalised interface{}
	if err := json.Unmarshal(raw, &normalised); err != nil {
		return nil, fmt.Errorf("failed to parse YAML scenario: %w", err)
	}
	return normalised, nil
}

// ValidateDocument checks a decoded document against the scenario schema.
// Every violation is reported in the returned ValidationErrors.
func ValidateDocument(doc interface{}) error {
	schema, err := scenarioSchema()
	if err != nil {
		return err
	}

	err = schema.Validate(doc)
	if err == nil {
		return nil
	}

	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	errs := &ValidationErrors{}
	collectSchemaErrors(verr, errs)
	if !errs.HasErrors() {
		errs.Add("", verr.Message)
	}
	return errs
}

// collectSchemaErrors flattens the leaf causes of a schema error.
func collectSchemaErrors(err *jsonschema.ValidationError, errs *ValidationErrors) {
	if len(err.Causes) == 0 {
		errs.Add(instancePath(err.InstanceLocation), err.Message)
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, errs)
	}
}

// instancePath turns a JSON pointer ("/stages/0/target") into the dotted
// form used by semantic validation ("stages[0].target").
func instancePath(pointer string) string {
	parts := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	var sb strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if isIndex(p) {
			sb.WriteString("[" + p + "]")
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(p)
	}
	return sb.String()
}

func isIndex(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
