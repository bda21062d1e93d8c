// Package faults defines the failure kinds that propagate through the
// proposal pipeline. Every generation-time failure carries the name of
// the stage it originated in; nothing in the pipeline reports an error
// without attribution.
package faults

import (
	"errors"
	"fmt"
)

// ConfigError is fatal at construction time: a missing or malformed
// prompt or keyword configuration resource.
type ConfigError struct {
	Resource string
	Msg      string
	Err      error
}

func NewConfigError(resource, msg string, err error) *ConfigError {
	return &ConfigError{Resource: resource, Msg: msg, Err: err}
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error (%s): %s: %v", e.Resource, e.Msg, e.Err)
	}
	return fmt.Sprintf("configuration error (%s): %s", e.Resource, e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IngestError means the source document yielded no usable text.
type IngestError struct {
	Path string
	Msg  string
	Err  error
}

func NewIngestError(path, msg string, err error) *IngestError {
	return &IngestError{Path: path, Msg: msg, Err: err}
}

func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingest error (%s): %s: %v", e.Path, e.Msg, e.Err)
	}
	return fmt.Sprintf("ingest error (%s): %s", e.Path, e.Msg)
}

func (e *IngestError) Unwrap() error { return e.Err }

// GenerationError is an oracle call that failed or came back with an
// empty required field. Stage is mandatory.
type GenerationError struct {
	Stage string
	Msg   string
	Err   error
}

func NewGenerationError(stage, msg string, err error) *GenerationError {
	return &GenerationError{Stage: stage, Msg: msg, Err: err}
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stage %q: %s: %v", e.Stage, e.Msg, e.Err)
	}
	return fmt.Sprintf("stage %q: %s", e.Stage, e.Msg)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ValidationError is a diagram script rejected by the validation gate.
// It is a specialization of GenerationError: errors.As for either type
// matches it.
type ValidationError struct {
	GenerationError
	Reason string
}

func NewValidationError(stage, reason string) *ValidationError {
	return &ValidationError{
		GenerationError: GenerationError{Stage: stage, Msg: "diagram validation failed"},
		Reason:          reason,
	}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("stage %q: diagram validation failed: %s", e.Stage, e.Reason)
}

// Unwrap exposes the embedded GenerationError so that
// errors.As(err, **GenerationError) matches validation failures too.
func (e *ValidationError) Unwrap() error { return &e.GenerationError }

// RunError wraps whatever aborted a pipeline run, tagged with the stage
// that failed. Exactly one is surfaced per failed run.
type RunError struct {
	Stage string
	Err   error
}

func NewRunError(stage string, err error) *RunError {
	return &RunError{Stage: stage, Err: err}
}

func (e *RunError) Error() string {
	return fmt.Sprintf("pipeline run failed at stage %q: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// StageOf extracts the failing stage from an error chain, or "" when the
// chain carries no stage attribution.
func StageOf(err error) string {
	var run *RunError
	if errors.As(err, &run) {
		return run.Stage
	}
	var gen *GenerationError
	if errors.As(err, &gen) {
		return gen.Stage
	}
	return ""
}
