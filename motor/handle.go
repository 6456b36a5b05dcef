package motor

import (
	"fmt"
	"sync"
	"time"

	"github.com/brutella/can"
)

// Timeout for a single parameter read/reply exchange inside a feedback poll.
const paramExchangeTimeout = 100 * time.Millisecond

// Motor is a typed handle for one actuator on the bus.
//
// State machine: Disabled -> Enabling -> Enabled -> (Faulted | Disabled).
// Faulted latches until ClearFault succeeds; it is never cleared
// automatically.
type Motor struct {
	tp     Transport
	id     MotorID
	host   MotorID
	model  *Model
	logger Logger

	mu             sync.Mutex
	state          State
	lastFeedback   Feedback
	lastFeedbackAt time.Time
	hasFeedback    bool
}

// NewMotor binds a handle to a motor ID on the given transport.
func NewMotor(tp Transport, id MotorID, model *Model, logger Logger) *Motor {
	return &Motor{
		tp:     tp,
		id:     id,
		host:   HostID,
		model:  model,
		logger: logger,
		state:  StateDisabled,
	}
}

func (m *Motor) ID() MotorID   { return m.id }
func (m *Motor) Model() *Model { return m.model }

func (m *Motor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastFeedback returns the most recent feedback reading, if any.
func (m *Motor) LastFeedback() (Feedback, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFeedback, m.hasFeedback
}

// recordFrame captures feedback addressed to this motor from any incoming
// frame. Fault bits latch the Faulted state.
func (m *Motor) recordFrame(frame can.Frame) {
	if FrameCommType(frame) != CommFeedback || FrameMotorID(frame) != m.id {
		return
	}

	fb, err := DecodeFeedback(m.model, frame)
	if err != nil {
		m.logger.Warn("motor %d: dropping feedback: %v", m.id, err)
		return
	}

	m.lastFeedback = fb
	m.lastFeedbackAt = time.Now()
	m.hasFeedback = true

	if fb.Faults != 0 && m.state != StateFaulted {
		m.logger.Error("motor %d: fault reported: %s", m.id, fb.Faults)
		m.state = StateFaulted
	}
}

// drainIncoming consumes every already-buffered frame, recording any
// feedback for this motor.
func (m *Motor) drainIncoming() {
	for {
		frame, err := m.tp.Receive(0)
		if err != nil {
			return
		}
		m.recordFrame(frame)
	}
}

// Enable powers the motor on and blocks until feedback confirms the run
// state or the timeout elapses.
func (m *Motor) Enable(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateFaulted:
		return &StateError{ID: m.id, State: m.state, Op: "enable"}
	case StateEnabled:
		return nil
	}

	m.state = StateEnabling
	m.drainIncoming()

	if err := m.tp.Send(EncodeEnable(m.host, m.id)); err != nil {
		m.state = StateDisabled
		return err
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			m.state = StateDisabled
			return &EnableTimeoutError{ID: m.id, Timeout: timeout}
		}

		frame, err := m.tp.Receive(remaining)
		if err != nil {
			m.state = StateDisabled
			return &EnableTimeoutError{ID: m.id, Timeout: timeout}
		}
		m.recordFrame(frame)

		if m.state == StateFaulted {
			return &FaultError{ID: m.id, Faults: m.lastFeedback.Faults}
		}
		if m.hasFeedback && m.lastFeedback.Mode == ModeRun {
			m.state = StateEnabled
			m.logger.Info("motor %d: enabled", m.id)
			return nil
		}
	}
}

// Disable powers the motor off. It is valid in every state and always
// puts the disable frame on the bus; the handle only reports Disabled
// when the send succeeded.
func (m *Motor) Disable() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.tp.Send(EncodeDisable(m.host, m.id, false)); err != nil {
		return err
	}

	m.state = StateDisabled
	m.drainIncoming()
	m.logger.Info("motor %d: disabled", m.id)
	return nil
}

// ClearFault resets latched fault bits. The motor ends up Disabled; it
// stays Faulted when the controller keeps reporting faults.
func (m *Motor) ClearFault(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.drainIncoming()
	if err := m.tp.Send(EncodeDisable(m.host, m.id, true)); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("motor %d: fault clear unconfirmed: %w", m.id, ErrTimeout)
		}

		frame, err := m.tp.Receive(remaining)
		if err != nil {
			return fmt.Errorf("motor %d: fault clear unconfirmed: %w", m.id, ErrTimeout)
		}

		if FrameCommType(frame) != CommFeedback || FrameMotorID(frame) != m.id {
			continue
		}
		fb, err := DecodeFeedback(m.model, frame)
		if err != nil {
			continue
		}

		m.lastFeedback = fb
		m.lastFeedbackAt = time.Now()
		m.hasFeedback = true

		if fb.Faults != 0 {
			return &FaultError{ID: m.id, Faults: fb.Faults}
		}

		m.state = StateDisabled
		m.logger.Info("motor %d: faults cleared", m.id)
		return nil
	}
}

// SetTarget issues a setpoint command. Only valid while Enabled.
func (m *Motor) SetTarget(cmd Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateEnabled {
		return &StateError{ID: m.id, State: m.state, Op: "set target"}
	}

	switch cmd.(type) {
	case EnableCommand, DisableCommand:
		return &StateError{ID: m.id, State: m.state, Op: "set target with lifecycle command"}
	}

	frames, err := EncodeCommand(m.host, m.id, m.model, cmd)
	if err != nil {
		return err
	}

	for _, frame := range frames {
		if err := m.tp.Send(frame); err != nil {
			return err
		}
	}

	m.drainIncoming()
	if m.state == StateFaulted {
		return &FaultError{ID: m.id, Faults: m.lastFeedback.Faults}
	}
	return nil
}

// ReadFeedback returns a fresh feedback reading. It merges passively
// received status frames with explicit position/velocity parameter reads
// and fails with ErrStaleData when the motor does not answer in time.
func (m *Motor) ReadFeedback(timeout time.Duration) (Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	deadline := start.Add(timeout)
	m.drainIncoming()

	pos, posErr := m.readParamLocked(ParamMechPos, deadline)
	vel, velErr := m.readParamLocked(ParamMechVel, deadline)

	if posErr == nil && velErr == nil {
		m.lastFeedback.ID = m.id
		m.lastFeedback.Position = pos
		m.lastFeedback.Velocity = vel
		m.lastFeedbackAt = time.Now()
		m.hasFeedback = true
		return m.lastFeedback, nil
	}

	// A status frame that arrived during the exchange is just as fresh.
	if m.hasFeedback && !m.lastFeedbackAt.Before(start) {
		return m.lastFeedback, nil
	}

	return Feedback{}, fmt.Errorf("motor %d: %w within %s", m.id, ErrStaleData, timeout)
}

// ReadParam reads one runtime parameter.
func (m *Motor) ReadParam(param Param, timeout time.Duration) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.drainIncoming()
	return m.readParamLocked(param, time.Now().Add(timeout))
}

func (m *Motor) readParamLocked(param Param, deadline time.Time) (float64, error) {
	if err := m.tp.Send(EncodeParamRead(m.host, m.id, param)); err != nil {
		return 0, err
	}

	exchange := time.Now().Add(paramExchangeTimeout)
	if exchange.After(deadline) {
		exchange = deadline
	}

	for {
		remaining := time.Until(exchange)
		if remaining <= 0 {
			return 0, fmt.Errorf("motor %d: read %s: %w", m.id, param.Name, ErrTimeout)
		}

		frame, err := m.tp.Receive(remaining)
		if err != nil {
			return 0, fmt.Errorf("motor %d: read %s: %w", m.id, param.Name, ErrTimeout)
		}
		m.recordFrame(frame)

		resp, err := DecodeParamResponse(frame)
		if err != nil || resp.ID != m.id || resp.Index != param.Index {
			continue
		}
		return resp.Value, nil
	}
}

// WriteParam writes one runtime parameter directly, outside the typed
// command set. Used for mode and gain setup.
func (m *Motor) WriteParam(param Param, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	frame, err := EncodeParamWrite(m.host, m.id, param, value)
	if err != nil {
		return err
	}
	if err := m.tp.Send(frame); err != nil {
		return err
	}

	m.drainIncoming()
	return nil
}

// ZeroPosition makes the current mechanical angle the motor's zero for
// this session.
func (m *Motor) ZeroPosition() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.drainIncoming()
	return m.tp.Send(EncodeZeroPosition(m.host, m.id))
}

// SaveConfiguration persists the motor's configuration, including a zero
// offset, to controller flash. Takes effect after a power cycle.
func (m *Motor) SaveConfiguration() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.drainIncoming()
	return m.tp.Send(EncodeSaveConfig(m.host, m.id))
}
