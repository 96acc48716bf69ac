package cmdvalidate

import (
	"errors"
	"fmt"
)

// Error definitions
var (
	// ErrUnknownExecutable is returned when the executable path is not a
	// byte-for-byte match of a configured allowlist entry.
	ErrUnknownExecutable = errors.New("executable not in allowlist")

	// ErrDisallowedArgument is returned when an argument matches none of the
	// accepted shapes (exact flag literal, validated path, bounded integer)
	// or contains shell metacharacters.
	ErrDisallowedArgument = errors.New("argument not allowed")

	// ErrPathEscape is returned when a path argument contains parent
	// references or resolves outside every allowed root directory.
	ErrPathEscape = errors.New("path escapes allowed roots")

	// ErrTooManyArguments is returned when the argument count exceeds the
	// configured maximum.
	ErrTooManyArguments = errors.New("too many arguments")

	// ErrInvalidConfig is returned when the validator configuration itself is
	// malformed (relative allowlist entries, empty rule set, bad bounds).
	ErrInvalidConfig = errors.New("invalid validator configuration")
)

// ValidationError describes a single rejection with enough context for
// logging and user-facing messages. The wrapped sentinel carries the
// rejection category.
type ValidationError struct {
	Executable string
	ArgIndex   int // -1 when the rejection concerns the executable or argv size
	Arg        string
	Reason     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.ArgIndex < 0 {
		return fmt.Sprintf("command %q rejected: %v", e.Executable, e.Reason)
	}
	return fmt.Sprintf("command %q rejected: argument %d %q: %v", e.Executable, e.ArgIndex, e.Arg, e.Reason)
}

// Unwrap returns the rejection category sentinel.
func (e *ValidationError) Unwrap() error {
	return e.Reason
}
