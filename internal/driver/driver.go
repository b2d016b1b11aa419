// Package driver talks to one servo actuator at the register level. The
// Driver interface is the boundary the lifecycle layer programs against;
// AZDriver implements it for Oriental Motor AZ/CVD-family units over Modbus.
package driver

import (
	"context"
	"time"
)

// Driver is the register-level interface to one actuator. Fallible calls
// return an error distinct from a "not ready" status: a false status with a
// nil error is a valid hardware answer, an error means the answer is unknown.
type Driver interface {
	Connect() error
	Close() error

	// StartHoming runs the homing sequence and blocks until the home-end
	// flag is set, the timeout expires, or ctx is cancelled.
	StartHoming(ctx context.Context, timeout time.Duration) error
	HomeComplete() (bool, error)

	// StartOperation triggers the stored operation with the given number.
	// It returns once the start command is latched, not when motion ends.
	StartOperation(opID int) error
	Stop() error
	ReturnToOrigin(velocity int) error
	ClearFault() error

	Position() (int32, error)
	Moving() (bool, error)
	Ready() (bool, error)
	AtTarget() (bool, error)
	FaultActive() (bool, error)

	// RunningOperation reports the currently selected operation number.
	// Diagnostic only; completion is detected from the moving flag.
	RunningOperation() (int, error)
}
