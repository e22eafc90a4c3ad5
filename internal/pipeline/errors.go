package pipeline

import (
	"fmt"

	"github.com/geomind-labs/geomind/internal/model"
)

// ValidationError means a stage was invoked without the prior-stage output
// it depends on. Always fatal to the run.
type ValidationError struct {
	Stage model.Phase
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pipeline: validation failed at %s: %s", e.Stage, e.Msg)
}

// ServiceError means an external collaborator call failed or timed out and
// no fallback inside the stage could absorb it.
type ServiceError struct {
	Stage model.Phase
	Err   error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("pipeline: service failure at %s: %v", e.Stage, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ParseError means a collaborator returned output that could not be
// decoded. Stages recover it locally where a safe default exists;
// otherwise it escalates to a ServiceError.
type ParseError struct {
	Stage model.Phase
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pipeline: unparseable output at %s: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NoSurvivorsError means a stage produced zero usable items, leaving later
// stages nothing to work with. Fatal.
type NoSurvivorsError struct {
	Stage model.Phase
	Msg   string
}

func (e *NoSurvivorsError) Error() string {
	return fmt.Sprintf("pipeline: nothing survived %s: %s", e.Stage, e.Msg)
}

// EvidenceGatheringFailure records one verifier failing for one candidate.
// It is always absorbed as zero evidence and never terminates a run; the
// type exists so the failure is loggable with its context.
type EvidenceGatheringFailure struct {
	Verifier  string
	Candidate string
	Err       error
}

func (e *EvidenceGatheringFailure) Error() string {
	return fmt.Sprintf("pipeline: verifier %s failed on %s: %v", e.Verifier, e.Candidate, e.Err)
}

func (e *EvidenceGatheringFailure) Unwrap() error { return e.Err }
