package call

import "errors"

var (
	ErrValidation    = errors.New("invalid call request")
	ErrAlreadyInCall = errors.New("call already in progress")
	ErrCallNotFound  = errors.New("call not started")
	ErrBusy          = errors.New("generation already in progress")
	ErrUpstream      = errors.New("upstream generation failed")

	// Cancellation causes. These end a generation without an error event.
	ErrInterrupted  = errors.New("generation interrupted")
	ErrCallEnded    = errors.New("call ended")
	ErrShuttingDown = errors.New("service shutting down")

	ErrGenerationTimeout    = errors.New("generation timed out")
	ErrFirstFragmentTimeout = errors.New("no output from generation backend")
)
