package cli

import "errors"

// Sentinel errors for exit code classification
var (
	// ErrUsage indicates invalid command usage, flags, or arguments
	ErrUsage = errors.New("usage error")

	// ErrConfig indicates invalid configuration
	ErrConfig = errors.New("configuration error")

	// ErrPort indicates a port could not be opened or driven
	ErrPort = errors.New("port error")

	// ErrRuntime indicates runtime execution failures, such as an
	// expect that ran out of time
	ErrRuntime = errors.New("runtime error")

	// ErrInternal indicates internal system errors
	ErrInternal = errors.New("internal error")
)
