package supervisor

import (
	"errors"
	"fmt"
)

// Sentinel errors for registry lookups and input routing.
var (
	ErrSessionNotFound  = errors.New("supervisor: session not found")
	ErrSessionNotActive = errors.New("supervisor: session not active")
)

// LaunchError wraps a spawn failure: missing working directory, unspawnable
// binary, or PTY allocation failure.
type LaunchError struct {
	WorkDir string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("supervisor: launch in %s: %v", e.WorkDir, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }
