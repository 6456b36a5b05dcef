package main

type LogLevel int

const (
	LogLevelNone  LogLevel = 0
	LogLevelError LogLevel = 1
	LogLevelWarn  LogLevel = 2
	LogLevelInfo  LogLevel = 3
	LogLevelDebug LogLevel = 4
)

type Mode string

const (
	ModeMove         Mode = "move"
	ModeSimultaneous Mode = "simultaneous"
	ModeSweep        Mode = "sweep"
	ModeObserve      Mode = "observe"
	ModeZero         Mode = "zero"
	ModeScan         Mode = "scan"
)

type Options struct {
	LogLevel        LogLevel
	RedisServerAddr string
	RedisServerPort uint16
	CANDevice       string
	ConfigPath      string
	Mode            Mode

	// move / simultaneous
	Targets      string // "id=angle,id=angle"; one step per pair in move mode
	ToleranceRad float64
	StepTimeout  int // ms
	HoldTime     int // ms, hold at target before teardown

	// sweep / observe
	MotorID    uint
	SweepStart float64
	SweepEnd   float64
	SweepStep  float64
}
