package loader

import (
	"errors"
	"fmt"
)

// Reason classifies why a candidate could not be loaded.
type Reason string

const (
	ReasonRead        Reason = "read"
	ReasonSyntax      Reason = "syntax"
	ReasonForbidden   Reason = "forbidden"
	ReasonInit        Reason = "init"
	ReasonNoStrategy  Reason = "no_strategy"
	ReasonAmbiguous   Reason = "ambiguous"
	ReasonMissingHook Reason = "missing_hook"
	ReasonInvalidHook Reason = "invalid_hook"
)

// LoadError is fatal for the candidate: nothing is executed or scored.
type LoadError struct {
	Reason Reason
	Detail string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load failed (%s): %s", e.Reason, e.Detail)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IsLoadError reports whether err is or wraps a LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// ErrTimeout is returned when candidate code is cancelled for running past
// its deadline or step budget.
var ErrTimeout = errors.New("timeout")

// HookError is a Starlark failure inside one phase of an instance:
// module top level, initialize or handle_data.
type HookError struct {
	Hook string
	Err  error
}

func (e *HookError) Error() string { return e.Hook + ": " + e.Err.Error() }

func (e *HookError) Unwrap() error { return e.Err }

// PanicError is a Go panic raised while candidate code ran.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }
