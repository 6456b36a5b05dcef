package motor

import (
	"errors"
	"math"
	"testing"
	"time"
)

func newTestMotor(id MotorID) (*Motor, *mockTransport, *simMotor) {
	sim := newSimMotor(id, &ModelO2)
	tp := newMockTransport(sim)
	return NewMotor(tp, id, &ModelO2, &testLogger{}), tp, sim
}

func TestEnableConfirmsRunMode(t *testing.T) {
	m, _, sim := newTestMotor(1)

	if err := m.Enable(time.Second); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if m.State() != StateEnabled {
		t.Errorf("state = %s, want enabled", m.State())
	}
	if sim.mode != ModeRun {
		t.Errorf("sim mode = %d, want run", sim.mode)
	}

	// Enabling an enabled motor is a no-op.
	if err := m.Enable(time.Second); err != nil {
		t.Errorf("second Enable failed: %v", err)
	}
}

func TestEnableTimesOutWithoutFeedback(t *testing.T) {
	tp := newMockTransport() // nothing on the bus answers
	m := NewMotor(tp, 1, &ModelO2, &testLogger{})

	err := m.Enable(20 * time.Millisecond)
	var timeoutErr *EnableTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("err = %v, want EnableTimeoutError", err)
	}
	if m.State() != StateDisabled {
		t.Errorf("state after timeout = %s, want disabled", m.State())
	}
}

func TestEnableFaultedMotor(t *testing.T) {
	m, _, sim := newTestMotor(1)
	sim.faults = FaultOverCurrent

	err := m.Enable(50 * time.Millisecond)
	var faultErr *FaultError
	if !errors.As(err, &faultErr) {
		t.Fatalf("err = %v, want FaultError", err)
	}
	if m.State() != StateFaulted {
		t.Fatalf("state = %s, want faulted", m.State())
	}

	// A faulted handle refuses further enables until the fault is cleared.
	var stateErr *StateError
	if err := m.Enable(50 * time.Millisecond); !errors.As(err, &stateErr) {
		t.Errorf("enable while faulted: err = %v, want StateError", err)
	}
}

func TestClearFault(t *testing.T) {
	m, _, sim := newTestMotor(1)
	sim.faults = FaultOverCurrent
	m.Enable(50 * time.Millisecond)

	if m.State() != StateFaulted {
		t.Fatalf("state = %s, want faulted", m.State())
	}

	if err := m.ClearFault(50 * time.Millisecond); err != nil {
		t.Fatalf("ClearFault failed: %v", err)
	}
	if m.State() != StateDisabled {
		t.Errorf("state after clear = %s, want disabled", m.State())
	}

	if err := m.Enable(time.Second); err != nil {
		t.Errorf("Enable after clear failed: %v", err)
	}
}

func TestSetTargetRequiresEnabled(t *testing.T) {
	m, _, _ := newTestMotor(1)

	var stateErr *StateError
	err := m.SetTarget(PositionCommand{Angle: 0.5})
	if !errors.As(err, &stateErr) {
		t.Fatalf("err = %v, want StateError", err)
	}

	if err := m.Enable(time.Second); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if err := m.SetTarget(PositionCommand{Angle: 0.5}); err != nil {
		t.Errorf("SetTarget while enabled failed: %v", err)
	}

	// Lifecycle transitions go through Enable/Disable, not SetTarget.
	if err := m.SetTarget(EnableCommand{}); !errors.As(err, &stateErr) {
		t.Errorf("SetTarget(EnableCommand) err = %v, want StateError", err)
	}
}

func TestDisableIsIdempotent(t *testing.T) {
	m, _, _ := newTestMotor(1)

	if err := m.Enable(time.Second); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if err := m.Disable(); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if m.State() != StateDisabled {
		t.Errorf("state = %s, want disabled", m.State())
	}

	if err := m.Disable(); err != nil {
		t.Errorf("second Disable failed: %v", err)
	}
	if m.State() != StateDisabled {
		t.Errorf("state = %s, want disabled", m.State())
	}
}

func TestDisableKeepsStateOnSendFailure(t *testing.T) {
	m, tp, _ := newTestMotor(1)

	if err := m.Enable(time.Second); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}

	tp.do(func() { tp.sendErr = ErrSend })
	if err := m.Disable(); !errors.Is(err, ErrSend) {
		t.Fatalf("err = %v, want ErrSend", err)
	}
	if m.State() != StateEnabled {
		t.Errorf("state = %s, want enabled (disable never reached the bus)", m.State())
	}
}

func TestReadFeedbackMergesParamReads(t *testing.T) {
	m, tp, sim := newTestMotor(1)

	if err := m.Enable(time.Second); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}

	tp.do(func() {
		sim.pos = 1.25
		sim.vel = -0.5
	})

	fb, err := m.ReadFeedback(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("ReadFeedback failed: %v", err)
	}
	if fb.ID != 1 {
		t.Errorf("id = %d, want 1", fb.ID)
	}
	if math.Abs(fb.Position-1.25) > 1e-6 {
		t.Errorf("position = %v, want 1.25", fb.Position)
	}
	if math.Abs(fb.Velocity-(-0.5)) > 1e-6 {
		t.Errorf("velocity = %v, want -0.5", fb.Velocity)
	}
	// Temperature came from the status frame the enable produced.
	if fb.Temperature != 30 {
		t.Errorf("temperature = %v, want 30", fb.Temperature)
	}
}

func TestReadFeedbackStaleData(t *testing.T) {
	m, tp, _ := newTestMotor(1)

	if err := m.Enable(time.Second); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}

	// Silence the motor: parameter reads go unanswered.
	tp.do(func() { tp.sims = nil })

	if _, err := m.ReadFeedback(20 * time.Millisecond); !errors.Is(err, ErrStaleData) {
		t.Errorf("err = %v, want ErrStaleData", err)
	}
}

func TestSetTargetReportsFault(t *testing.T) {
	m, tp, sim := newTestMotor(1)

	if err := m.Enable(time.Second); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}

	// A fault report is already buffered when the next command goes out.
	tp.do(func() { sim.faults = FaultOverTemperature })
	tp.inject(sim.feedback())

	err := m.SetTarget(PositionCommand{Angle: 0.5})
	var faultErr *FaultError
	if !errors.As(err, &faultErr) {
		t.Fatalf("err = %v, want FaultError", err)
	}
	if !faultErr.Faults.Has(FaultOverTemperature) {
		t.Errorf("faults = %s, want over-temperature", faultErr.Faults)
	}
	if m.State() != StateFaulted {
		t.Errorf("state = %s, want faulted", m.State())
	}
}

func TestReadParam(t *testing.T) {
	m, tp, sim := newTestMotor(1)
	tp.do(func() { sim.vbus = 47.5 })

	value, err := m.ReadParam(ParamVBus, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadParam failed: %v", err)
	}
	if value != 47.5 {
		t.Errorf("vbus = %v, want 47.5", value)
	}
}

func TestZeroAndSaveFrames(t *testing.T) {
	m, tp, _ := newTestMotor(1)

	if err := m.ZeroPosition(); err != nil {
		t.Fatalf("ZeroPosition failed: %v", err)
	}
	if err := m.SaveConfiguration(); err != nil {
		t.Fatalf("SaveConfiguration failed: %v", err)
	}

	sent := tp.sentFrames()
	if len(sent) != 2 {
		t.Fatalf("got %d frames, want 2", len(sent))
	}
	if got := FrameCommType(sent[0]); got != CommZeroPosition {
		t.Errorf("first frame comm type = %d, want %d", got, CommZeroPosition)
	}
	if sent[0].Data[0] != 1 {
		t.Errorf("zero frame data[0] = %d, want 1", sent[0].Data[0])
	}
	if got := FrameCommType(sent[1]); got != CommSaveConfig {
		t.Errorf("second frame comm type = %d, want %d", got, CommSaveConfig)
	}
}
