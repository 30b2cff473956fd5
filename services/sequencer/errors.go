package sequencer

import (
	"errors"
	"fmt"
)

// Failure kinds. A *StartupError matches its kind with errors.Is.
var (
	ErrInvalidDescriptor   = errors.New("invalid descriptor")
	ErrBuildFailure        = errors.New("build failure")
	ErrStartFailure        = errors.New("start failure")
	ErrDependencyUnhealthy = errors.New("dependency unhealthy")
)

// StartupError reports why the sequence halted and at which service.
type StartupError struct {
	Kind     error
	Service  string
	Attempts int // health check executions, DependencyUnhealthy only
	Err      error
}

func (e *StartupError) Error() string {
	switch {
	case e.Service == "":
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	case e.Attempts > 0:
		return fmt.Sprintf("%v: service %q after %d attempts: %v", e.Kind, e.Service, e.Attempts, e.Err)
	default:
		return fmt.Sprintf("%v: service %q: %v", e.Kind, e.Service, e.Err)
	}
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

func (e *StartupError) Is(target error) bool {
	return target == e.Kind
}

// KindLabel is the metric/event label for a failure kind.
func KindLabel(kind error) string {
	switch kind {
	case ErrInvalidDescriptor:
		return "invalid_descriptor"
	case ErrBuildFailure:
		return "build_failure"
	case ErrStartFailure:
		return "start_failure"
	case ErrDependencyUnhealthy:
		return "dependency_unhealthy"
	default:
		return "unknown"
	}
}
