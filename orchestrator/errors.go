package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// Phase names used in errors and logs.
const (
	PhaseSequential = "sequential"
	PhaseParallel   = "parallel"
	PhaseDerivation = "derivation"
	PhaseAssembly   = "assembly"
)

// ErrFanOut matches every *FanOutError.
var ErrFanOut = errors.New("orchestrator: parallel phase failed")

// StepError is the failure of one named step.
type StepError struct {
	Step string
	Err  error
}

func (e StepError) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }

func (e StepError) Unwrap() error { return e.Err }

// FanOutError reports a parallel join in which at least one member failed.
// It is returned only after every member has settled.
type FanOutError struct {
	Failures []StepError
}

func (e *FanOutError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("orchestrator: %d parallel call(s) failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrFanOut) hold.
func (e *FanOutError) Is(target error) bool { return target == ErrFanOut }

// Unwrap exposes every member failure to errors.Is and errors.As.
func (e *FanOutError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Steps returns the names of the failed members.
func (e *FanOutError) Steps() []string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Step
	}
	return names
}

// PhaseError wraps the failure that aborted an orchestration.
type PhaseError struct {
	Phase string
	Step  string
	Err   error
}

func (e *PhaseError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("orchestrator: %s phase: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("orchestrator: %s phase: %s: %v", e.Phase, e.Step, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }
