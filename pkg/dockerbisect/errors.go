package dockerbisect

import "errors"

var (
	// ErrInsufficientLayers is returned when fewer than two probeable layers are available
	ErrInsufficientLayers = errors.New("not enough layers to bisect")
	// ErrInconsistentProbe is returned when two adjacent layers, known to differ, reported the same output.
	// This indicates a prober which is not deterministic.
	ErrInconsistentProbe = errors.New("adjacent layers reported the same output after an earlier probe saw them differ")
	// ErrProbePanicked is returned when a bisection branch panicked
	ErrProbePanicked = errors.New("bisection branch panicked")
	// ErrJobRunning is returned when asking for the result of a job which did not finish yet
	ErrJobRunning = errors.New("job is still running")
)
