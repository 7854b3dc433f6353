package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrWrongSimulation means a command addressed a kind that is not the
	// active one.
	ErrWrongSimulation = errors.New("wrong simulation")

	// ErrNoSimulation means no simulation is active (main menu).
	ErrNoSimulation = errors.New("no active simulation")

	// ErrUnsupported means the active simulation does not implement the
	// requested operation.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrUnknownKind means the kind discriminant is not in the variant set.
	ErrUnknownKind = errors.New("unknown simulation kind")

	// ErrRenderFailed wraps a frame that could not be produced after the
	// surface-lost retry.
	ErrRenderFailed = errors.New("render failed")
)

// InvalidSettingsError reports a rejected settings patch. The previous
// settings remain in effect.
type InvalidSettingsError struct {
	Field  string
	Reason string
}

func (e *InvalidSettingsError) Error() string {
	return fmt.Sprintf("invalid settings: %s: %s", e.Field, e.Reason)
}

// InvalidSetting is shorthand for returning an InvalidSettingsError.
func InvalidSetting(field, reason string) error {
	return &InvalidSettingsError{Field: field, Reason: reason}
}
