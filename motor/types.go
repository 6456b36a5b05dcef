package motor

import "fmt"

// MotorID identifies a motor on the bus. IDs 1-127 are valid targets;
// the host uses a reserved ID outside that range.
type MotorID uint8

// HostID is the default controller ID used in the destination field of
// outgoing frames.
const HostID MotorID = 0xFD

// State is the lifecycle state of a motor handle.
type State int

const (
	StateDisabled State = iota
	StateEnabling
	StateEnabled
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateEnabling:
		return "enabling"
	case StateEnabled:
		return "enabled"
	case StateFaulted:
		return "faulted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ModeStatus is the controller mode reported in feedback frames.
type ModeStatus uint8

const (
	ModeReset       ModeStatus = 0
	ModeCalibration ModeStatus = 1
	ModeRun         ModeStatus = 2
)

// RunMode selects the motor's control loop (param run_mode).
type RunMode uint8

const (
	RunModeOperation RunMode = 0 // impedance control, setpoints per frame
	RunModePosition  RunMode = 1
	RunModeSpeed     RunMode = 2
	RunModeCurrent   RunMode = 3
)

// Model holds the value ranges a motor type uses for fixed-point scaling.
// Setpoints and feedback are packed as u16 spans over these ranges, so the
// ranges must match the controller firmware exactly.
type Model struct {
	Name      string
	PosMin    float64 // rad
	PosMax    float64
	VelMin    float64 // rad/s
	VelMax    float64
	TorqueMin float64 // N·m
	TorqueMax float64
	KpMin     float64
	KpMax     float64
	KdMin     float64
	KdMax     float64
}

// Motor model parameter tables, per the vendor protocol documentation.
var (
	ModelO2 = Model{
		Name:   "O2",
		PosMin: -12.57, PosMax: 12.57,
		VelMin: -44.0, VelMax: 44.0,
		TorqueMin: -17.0, TorqueMax: 17.0,
		KpMin: 0.0, KpMax: 500.0,
		KdMin: 0.0, KdMax: 5.0,
	}

	ModelO3 = Model{
		Name:   "O3",
		PosMin: -12.57, PosMax: 12.57,
		VelMin: -20.0, VelMax: 20.0,
		TorqueMin: -60.0, TorqueMax: 60.0,
		KpMin: 0.0, KpMax: 5000.0,
		KdMin: 0.0, KdMax: 100.0,
	}

	ModelO5 = Model{
		Name:   "O5",
		PosMin: -12.57, PosMax: 12.57,
		VelMin: -50.0, VelMax: 50.0,
		TorqueMin: -5.5, TorqueMax: 5.5,
		KpMin: 0.0, KpMax: 500.0,
		KdMin: 0.0, KdMax: 5.0,
	}
)

var modelsByName = map[string]*Model{
	"O2": &ModelO2,
	"O3": &ModelO3,
	"O5": &ModelO5,
}

// ModelByName returns the model parameters for a motor type name.
func ModelByName(name string) (*Model, bool) {
	m, ok := modelsByName[name]
	return m, ok
}

// Command is a typed motor command. The codec matches every variant
// exhaustively; adding a variant without extending EncodeCommand is a bug.
type Command interface {
	command()
}

// EnableCommand powers the motor's control loop on.
type EnableCommand struct{}

// DisableCommand powers the control loop off. ClearFault additionally
// resets latched fault bits.
type DisableCommand struct {
	ClearFault bool
}

// PositionCommand moves to Angle (rad) in position mode, bounded by
// MaxVelocity (rad/s) and MaxCurrent (A).
type PositionCommand struct {
	Angle       float64
	MaxVelocity float64
	MaxCurrent  float64
}

// VelocityCommand spins at Velocity (rad/s) in speed mode.
type VelocityCommand struct {
	Velocity float64
}

// TorqueCommand applies a current setpoint (A) in current mode.
type TorqueCommand struct {
	Current float64
}

// OperationCommand is a full impedance-control setpoint: the controller
// tracks Position/Velocity with gains Kp/Kd plus a Torque feed-forward.
type OperationCommand struct {
	Position float64
	Velocity float64
	Kp       float64
	Kd       float64
	Torque   float64
}

func (EnableCommand) command()    {}
func (DisableCommand) command()   {}
func (PositionCommand) command()  {}
func (VelocityCommand) command()  {}
func (TorqueCommand) command()    {}
func (OperationCommand) command() {}

// TargetAngle returns the position a command converges to, if it has one.
// Velocity and torque commands have no completion condition.
func TargetAngle(cmd Command) (float64, bool) {
	switch c := cmd.(type) {
	case PositionCommand:
		return c.Angle, true
	case OperationCommand:
		return c.Position, true
	}
	return 0, false
}

// Feedback is one decoded motor status report.
type Feedback struct {
	ID          MotorID
	Position    float64 // rad
	Velocity    float64 // rad/s
	Torque      float64 // N·m
	Temperature float64 // °C
	Faults      FaultSet
	Mode        ModeStatus
}
