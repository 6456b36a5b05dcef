package motor

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for transport and codec failures.
var (
	ErrConnection = errors.New("can interface unavailable")
	ErrSend       = errors.New("can send failed")
	ErrTimeout    = errors.New("receive timeout")
	ErrDecode     = errors.New("malformed frame")
	ErrStaleData  = errors.New("no fresh feedback")
	ErrClosed     = errors.New("transport closed")
)

// StateError reports a command issued while the motor is in a state that
// does not accept it.
type StateError struct {
	ID    MotorID
	State State
	Op    string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("motor %d: %s not valid in state %s", e.ID, e.Op, e.State)
}

// EnableTimeoutError reports a motor that did not confirm the enable
// command in time.
type EnableTimeoutError struct {
	ID      MotorID
	Timeout time.Duration
}

func (e *EnableTimeoutError) Error() string {
	return fmt.Sprintf("motor %d: no enable confirmation within %s", e.ID, e.Timeout)
}

// FaultError reports a motor that entered the faulted state.
type FaultError struct {
	ID     MotorID
	Faults FaultSet
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("motor %d: fault reported: %s", e.ID, e.Faults)
}

// StepTimeoutError reports a motion step whose motors did not all converge
// before the step timeout. Stalled lists every motor still outside
// tolerance, not just the first.
type StepTimeoutError struct {
	Step    int
	Timeout time.Duration
	Stalled []MotorID
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %d: motors %v did not converge within %s", e.Step, e.Stalled, e.Timeout)
}

// IsTimeout reports whether err is a bus receive timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
