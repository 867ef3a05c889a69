package types

import "errors"

// Errors reported by the reduced functional engine. Callers test them with errors.Is, every
// producer wraps them with the offending values.
var (
	// ErrInvalidControlLength indicates a control vector whose length disagrees with the ControlSpec.
	ErrInvalidControlLength = errors.New("invalid control vector length")

	// ErrDegenerateGradient indicates a zero gradient where automatic scaling needs a magnitude.
	ErrDegenerateGradient = errors.New("automatic scaling failed: the gradient at the parameter point is zero")

	// ErrUnsupportedControls indicates a control configuration an operation is not defined for.
	ErrUnsupportedControls = errors.New("unsupported controls")

	// ErrCheckpointConflict indicates a checkpoint load into a cache that already holds records.
	ErrCheckpointConflict = errors.New("checkpoint conflict: cache is not empty")

	// ErrGradientVerificationFailed indicates a Taylor remainder test below the requested order.
	ErrGradientVerificationFailed = errors.New("the gradient taylor remainder test failed")

	// ErrNotImplemented indicates an optimiser request the engine does not provide.
	ErrNotImplemented = errors.New("not implemented")
)
