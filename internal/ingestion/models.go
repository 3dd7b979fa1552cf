// Package ingestion provides the domain models and submission pipeline for
// plugin compatibility test results.
//
// A result records the outcome of running one plugin version's test suite
// under one runtime configuration (interpreter environment + forced
// test-runner version). Results arrive in batches from out-of-process runner
// workers and are stored one-per-cell, latest-wins.
package ingestion

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// ResultRecord is one observed outcome of testing one plugin version
	// under one runtime configuration - Domain Model.
	//
	// This is a pure domain model without JSON tags. The transport layers use
	// Submission for JSON decoding and map to this type.
	ResultRecord struct {
		// PluginName identifies the plugin under test. Identity is
		// case-insensitive: the name is case-folded and trimmed before it
		// becomes part of a CompositeKey, identically on write and read
		// paths, so lookups never miss due to casing.
		PluginName string

		// PluginVersion is the tested release of the plugin. Treated as an
		// opaque string for identity; loose version ordering is applied only
		// for display (see the query package).
		PluginVersion string

		// Env identifies the interpreter environment of the test run.
		// Examples: "py311", "py313".
		Env string

		// RunnerVersion is the test-runner version forced as a dependency
		// when the plugin's suite was executed. Example: "7.4.2".
		RunnerVersion string

		// Status is the test outcome. Always one of the closed enum values;
		// unrecognized spellings are rejected at the ingestion boundary,
		// never coerced.
		Status Status

		// Output is the raw execution log of the run. Arbitrary length,
		// replaced wholesale together with the rest of the record when a
		// newer result lands on the same cell.
		Output string

		// Description is the plugin's summary line, carried for display
		// only. It never participates in identity.
		Description string
	}

	// Status represents valid compatibility test outcomes.
	Status string

	// CompositeKey uniquely identifies one matrix cell: a plugin version
	// tested under one runtime configuration. Two records with the same key
	// are the same observation repeated; the later submission replaces the
	// earlier one.
	//
	// PluginName is stored normalized (see NormalizePluginName); the other
	// fields are exact.
	CompositeKey struct {
		PluginName    string
		PluginVersion string
		Env           string
		RunnerVersion string
	}
)

const (
	// StatusOK indicates the plugin's test suite passed.
	StatusOK Status = "ok"

	// StatusFail indicates the plugin's test suite failed.
	StatusFail Status = "fail"

	// StatusError indicates the run itself errored (install failure,
	// timeout, no distribution) rather than a test assertion failing.
	StatusError Status = "error"
)

// Validation errors (static sentinel errors for errors.Is() checks).
var (
	// ErrPluginNameEmpty indicates the plugin name is required.
	ErrPluginNameEmpty = errors.New("plugin name cannot be empty")

	// ErrPluginVersionEmpty indicates the plugin version is required.
	ErrPluginVersionEmpty = errors.New("plugin version cannot be empty")

	// ErrEnvEmpty indicates the interpreter environment is required.
	ErrEnvEmpty = errors.New("env cannot be empty")

	// ErrRunnerVersionEmpty indicates the runner version is required.
	ErrRunnerVersionEmpty = errors.New("runner version cannot be empty")

	// ErrStatusUnknown indicates the status is not a recognized spelling of
	// any Status value.
	ErrStatusUnknown = errors.New("status must be one of: ok, fail, error")
)

// NormalizePluginName returns the canonical identity form of a plugin name:
// surrounding whitespace trimmed, then case-folded. Applied identically
// wherever a name enters a key, on both write and read paths.
func NormalizePluginName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ParseStatus decodes a raw status string into the closed Status enum.
//
// Raw payloads spell outcomes inconsistently ("ok", "OK", "failed", ...).
// Parsing is case-insensitive and accepts "failed" as an alias for "fail";
// anything else is rejected with ErrStatusUnknown, never coerced.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ok":
		return StatusOK, nil
	case "fail", "failed":
		return StatusFail, nil
	case "error":
		return StatusError, nil
	default:
		return "", fmt.Errorf("%w: got %q", ErrStatusUnknown, raw)
	}
}

// String returns the string representation of the Status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks if the Status is a valid enum value.
func (s Status) IsValid() bool {
	switch s {
	case StatusOK, StatusFail, StatusError:
		return true
	default:
		return false
	}
}

// NewCompositeKey builds a cell key from its four components, normalizing
// the plugin name. Version, env and runner version are exact-match fields.
func NewCompositeKey(name, version, env, runnerVersion string) CompositeKey {
	return CompositeKey{
		PluginName:    NormalizePluginName(name),
		PluginVersion: version,
		Env:           env,
		RunnerVersion: runnerVersion,
	}
}

// Key returns the CompositeKey identifying this record's matrix cell.
func (r *ResultRecord) Key() CompositeKey {
	return NewCompositeKey(r.PluginName, r.PluginVersion, r.Env, r.RunnerVersion)
}

// Validate performs domain validation on the ResultRecord.
//
// Validation rules:
//   - plugin name, plugin version, env, runner version: required, non-blank
//   - status: must be a valid Status value
//
// Output and description are optional. Storage-level failures (connection
// errors, constraint violations) are not validation concerns and surface from
// the storage layer instead.
func (r *ResultRecord) Validate() error {
	if strings.TrimSpace(r.PluginName) == "" {
		return ErrPluginNameEmpty
	}

	if strings.TrimSpace(r.PluginVersion) == "" {
		return ErrPluginVersionEmpty
	}

	if strings.TrimSpace(r.Env) == "" {
		return ErrEnvEmpty
	}

	if strings.TrimSpace(r.RunnerVersion) == "" {
		return ErrRunnerVersionEmpty
	}

	if !r.Status.IsValid() {
		return fmt.Errorf("%w: got %q", ErrStatusUnknown, r.Status)
	}

	return nil
}
