// Package jsonpath resolves paths in JSON run summaries.
//
// Paths are gjson paths ("metrics.latency.p95",
// `checks.#(name=="status is 200").fails`) or the JSONPath subset
// "$.thresholds[0].passed" and "$['checks'][*].name".
package jsonpath

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when the document does not parse.
var ErrInvalidJSON = errors.New("invalid JSON document")

// Lookup returns the value at path in doc.
func Lookup(doc []byte, path string) (gjson.Result, error) {
	if path == "" {
		return gjson.Result{}, fmt.Errorf("empty path")
	}
	if !gjson.ValidBytes(doc) {
		return gjson.Result{}, ErrInvalidJSON
	}

	result := gjson.GetBytes(doc, ToGjson(path))
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("path not found: %s", path)
	}
	return result, nil
}

// Extract returns the value at path as a string. JSON null is "null".
func Extract(doc []byte, path string) (string, error) {
	result, err := Lookup(doc, path)
	if err != nil {
		return "", err
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// ToGjson converts a JSONPath expression to gjson syntax. Paths without a
// leading "$" are returned unchanged.
func ToGjson(path string) string {
	if !strings.HasPrefix(path, "$") {
		return path
	}

	rest := path[1:]
	var parts []string
	for rest != "" {
		switch rest[0] {
		case '.':
			rest = rest[1:]
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				parts = append(parts, escapeKey(rest[1:]))
				rest = ""
				continue
			}
			key := strings.Trim(rest[1:end], `'"`)
			if key == "*" {
				key = "#"
			} else {
				key = escapeKey(key)
			}
			parts = append(parts, key)
			rest = rest[end+1:]
		default:
			end := strings.IndexAny(rest, ".[")
			if end < 0 {
				end = len(rest)
			}
			parts = append(parts, rest[:end])
			rest = rest[end:]
		}
	}

	if len(parts) == 0 {
		return "@this"
	}
	return strings.Join(parts, ".")
}

// escapeKey escapes the characters gjson treats as path syntax.
func escapeKey(key string) string {
	var sb strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
