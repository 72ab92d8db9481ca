package report

import "errors"

// Sentinel validation errors.
var (
	// ErrUnknownPhase indicates a wire report carried a phase outside the
	// known set.
	ErrUnknownPhase = errors.New("unknown report phase")

	// ErrNegativeElapsed indicates a wire report carried a negative elapsed
	// time.
	ErrNegativeElapsed = errors.New("negative elapsed time")
)
