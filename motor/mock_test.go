package motor

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/brutella/can"
)

// mockTransport queues frames in memory and answers sends through
// simulated motors, so handle and sequencer logic runs without hardware.
type mockTransport struct {
	mu      sync.Mutex
	sent    []can.Frame
	queue   []can.Frame
	sims    []*simMotor
	sendErr error
	closed  bool
}

func newMockTransport(sims ...*simMotor) *mockTransport {
	return &mockTransport{sims: sims}
}

func (t *mockTransport) Send(frame can.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sendErr != nil {
		return t.sendErr
	}

	t.sent = append(t.sent, frame)
	for _, sim := range t.sims {
		t.queue = append(t.queue, sim.respond(frame)...)
	}
	return nil
}

func (t *mockTransport) Receive(timeout time.Duration) (can.Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.queue) == 0 {
		return can.Frame{}, ErrTimeout
	}

	frame := t.queue[0]
	t.queue = t.queue[1:]
	return frame, nil
}

func (t *mockTransport) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = nil
}

func (t *mockTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *mockTransport) inject(frames ...can.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, frames...)
}

// do runs fn under the transport lock, so tests can mutate simulated
// motors while handle goroutines poll.
func (t *mockTransport) do(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn()
}

func (t *mockTransport) sentFrames() []can.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]can.Frame(nil), t.sent...)
}

// frameTarget extracts the destination ID of a host-to-motor frame.
func frameTarget(frame can.Frame) MotorID {
	return MotorID(frame.ID & 0xFF)
}

// simMotor models one actuator: it answers enable/disable with status
// frames and parameter reads with its current position and velocity.
// Position setpoints settle instantly unless the motor is stalled.
type simMotor struct {
	id     MotorID
	model  *Model
	pos    float64
	vel    float64
	torque float64
	temp   float64
	vbus   float64
	faults FaultSet
	mode   ModeStatus

	// stalled motors accept commands but never move
	stalled bool
}

func newSimMotor(id MotorID, model *Model) *simMotor {
	return &simMotor{id: id, model: model, temp: 30, vbus: 48}
}

func (s *simMotor) feedback() can.Frame {
	return encodeFeedbackFrame(s.id, s.model, s.pos, s.vel, s.torque, s.temp, s.faults, s.mode)
}

func (s *simMotor) respond(frame can.Frame) []can.Frame {
	if frameTarget(frame) != s.id {
		return nil
	}

	switch FrameCommType(frame) {
	case CommEnable:
		if s.faults == 0 {
			s.mode = ModeRun
		}
		return []can.Frame{s.feedback()}

	case CommDisable:
		if frame.Data[0] == 1 {
			s.faults = 0
		}
		s.mode = ModeReset
		return []can.Frame{s.feedback()}

	case CommOperation:
		if !s.stalled {
			s.pos = unscaleU16(binary.BigEndian.Uint16(frame.Data[0:2]), s.model.PosMin, s.model.PosMax)
			s.vel = 0
		}
		return []can.Frame{s.feedback()}

	case CommParamRead:
		index := binary.LittleEndian.Uint16(frame.Data[0:2])
		switch index {
		case ParamMechPos.Index:
			return []can.Frame{encodeParamResponse(s.id, ParamMechPos, s.pos)}
		case ParamMechVel.Index:
			return []can.Frame{encodeParamResponse(s.id, ParamMechVel, s.vel)}
		case ParamVBus.Index:
			return []can.Frame{encodeParamResponse(s.id, ParamVBus, s.vbus)}
		}
		return nil

	case CommParamWrite:
		index := binary.LittleEndian.Uint16(frame.Data[0:2])
		if index == ParamLocRef.Index && !s.stalled {
			bits := binary.LittleEndian.Uint32(frame.Data[4:8])
			s.pos = float64(math.Float32frombits(bits))
			s.vel = 0
		}
		return nil
	}

	return nil
}

// encodeFeedbackFrame is the test-side reference encoder for type-2
// status frames.
func encodeFeedbackFrame(id MotorID, model *Model, pos, vel, torque, temp float64, faults FaultSet, mode ModeStatus) can.Frame {
	frameID := uint32(frameFlagExtended) |
		uint32(CommFeedback)<<24 |
		uint32(mode&0x3)<<22 |
		uint32(faults&0x3F)<<16 |
		uint32(id)<<8 |
		uint32(HostID)

	data := make([]byte, 8)
	binary.BigEndian.PutUint16(data[0:2], scaleToU16(pos, model.PosMin, model.PosMax))
	binary.BigEndian.PutUint16(data[2:4], scaleToU16(vel, model.VelMin, model.VelMax))
	binary.BigEndian.PutUint16(data[4:6], scaleToU16(torque, model.TorqueMin, model.TorqueMax))
	binary.BigEndian.PutUint16(data[6:8], uint16(temp*10))

	return packFrame(frameID, data)
}

// encodeParamResponse is the test-side reference encoder for type-17
// parameter replies.
func encodeParamResponse(id MotorID, param Param, value float64) can.Frame {
	frameID := uint32(frameFlagExtended) |
		uint32(CommParamRead)<<24 |
		uint32(id)<<8 |
		uint32(HostID)

	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[0:2], param.Index)
	if param.Kind == ParamUint8 {
		data[4] = uint8(value)
	} else {
		binary.LittleEndian.PutUint32(data[4:8], math.Float32bits(float32(value)))
	}

	return packFrame(frameID, data)
}

// testLogger implements Logger for testing
type testLogger struct{}

func (l *testLogger) Printf(format string, v ...interface{})                          {}
func (l *testLogger) Debug(format string, v ...interface{})                           {}
func (l *testLogger) Info(format string, v ...interface{})                            {}
func (l *testLogger) Warn(format string, v ...interface{})                            {}
func (l *testLogger) Error(format string, v ...interface{})                           {}
func (l *testLogger) DebugCAN(direction string, id uint32, data []byte, length uint8) {}
