package weather

import (
	"errors"
	"fmt"
)

// Bus level failures.
var (
	ErrTimeout = errors.New("bus transaction timed out")
	ErrNacked  = errors.New("expected acknowledge not received")
	// ErrBusBusy is reported by bridges whose I2C engine did not complete the
	// previous command. It is a timeout for classification purposes.
	ErrBusBusy = fmt.Errorf("%w: I2C engine is busy (command not completed)", ErrTimeout)
)

// Request validation failures, raised before any bus activity.
var (
	ErrInvalidAddress = errors.New("device address out of 7-bit range")
	ErrInvalidLength  = errors.New("transfer length must be at least 1")
)

// ErrCommFailure is the single driver level failure kind. Bus causes stay
// wrapped so errors.Is(err, ErrTimeout) still answers.
var ErrCommFailure = errors.New("sensor communication failure")

// CommFailure wraps a bus error as a driver error.
func CommFailure(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrCommFailure, err)
}
