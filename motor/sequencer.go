package motor

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Default feedback polling cadence while waiting for convergence.
const DefaultPollInterval = 10 * time.Millisecond

// Step maps motors to target commands, with a shared completion tolerance
// and timeout. All targets in a step are dispatched back-to-back before
// any convergence polling starts.
type Step struct {
	Targets   map[MotorID]Command
	Tolerance float64       // rad
	Timeout   time.Duration // whole-step budget
}

// Plan is an ordered sequence of steps executed one after another.
type Plan []Step

// Sequencer coordinates multi-motor motion over a set of handles sharing
// one transport.
type Sequencer struct {
	motors map[MotorID]*Motor
	logger Logger

	// PollInterval is the feedback polling cadence.
	PollInterval time.Duration

	// OnFeedback, when set, observes every feedback reading taken while
	// polling for convergence.
	OnFeedback func(MotorID, Feedback)
}

// NewSequencer builds a sequencer over the given motors.
func NewSequencer(logger Logger, motors ...*Motor) *Sequencer {
	byID := make(map[MotorID]*Motor, len(motors))
	for _, m := range motors {
		byID[m.ID()] = m
	}
	return &Sequencer{
		motors:       byID,
		logger:       logger,
		PollInterval: DefaultPollInterval,
	}
}

// Motor returns the handle for an ID, or nil.
func (s *Sequencer) Motor(id MotorID) *Motor {
	return s.motors[id]
}

// Motors returns all handles in ID order.
func (s *Sequencer) Motors() []*Motor {
	ids := make([]MotorID, 0, len(s.motors))
	for id := range s.motors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	motors := make([]*Motor, len(ids))
	for i, id := range ids {
		motors[i] = s.motors[id]
	}
	return motors
}

// EnableAll enables every motor, failing on the first that does not
// confirm.
func (s *Sequencer) EnableAll(timeout time.Duration) error {
	for _, m := range s.Motors() {
		if err := m.Enable(timeout); err != nil {
			return err
		}
	}
	return nil
}

// DisableAll disables every motor. All motors are attempted regardless of
// individual failures; the first error is returned.
func (s *Sequencer) DisableAll() error {
	var firstErr error
	for _, m := range s.Motors() {
		if err := m.Disable(); err != nil {
			s.logger.Error("motor %d: disable failed: %v", m.ID(), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// RunSequential executes the plan step by step. A step must fully
// converge before the next step's commands are dispatched. Completed
// steps are not rolled back on failure: physical motion is irreversible.
func (s *Sequencer) RunSequential(ctx context.Context, plan Plan) error {
	for i, step := range plan {
		s.logger.Info("step %d/%d: %d target(s)", i+1, len(plan), len(step.Targets))
		if err := s.runStep(ctx, i, step); err != nil {
			return err
		}
	}
	return nil
}

// RunSimultaneous dispatches every target in the step back-to-back, then
// waits for all motors to converge under one shared timeout.
func (s *Sequencer) RunSimultaneous(ctx context.Context, step Step) error {
	return s.runStep(ctx, 0, step)
}

func (s *Sequencer) runStep(ctx context.Context, index int, step Step) error {
	ids := make([]MotorID, 0, len(step.Targets))
	for id := range step.Targets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	// Every referenced motor must already be enabled; checked up front so
	// a bad plan moves nothing.
	for _, id := range ids {
		m := s.motors[id]
		if m == nil {
			return fmt.Errorf("step %d: no handle for motor %d", index, id)
		}
		if st := m.State(); st != StateEnabled {
			return &StateError{ID: id, State: st, Op: "run step"}
		}
	}

	// Dispatch phase: all commands go out before any completion polling.
	pending := make(map[MotorID]float64, len(ids))
	for _, id := range ids {
		cmd := step.Targets[id]
		if err := s.motors[id].SetTarget(cmd); err != nil {
			return err
		}
		if target, ok := TargetAngle(cmd); ok {
			pending[id] = target
		}
	}

	if len(pending) == 0 {
		return nil
	}

	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.NewTimer(step.Timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-deadline.C:
			stalled := make([]MotorID, 0, len(pending))
			for id := range pending {
				stalled = append(stalled, id)
			}
			sort.Slice(stalled, func(i, j int) bool { return stalled[i] < stalled[j] })
			return &StepTimeoutError{Step: index, Timeout: step.Timeout, Stalled: stalled}

		case <-ticker.C:
			for _, id := range ids {
				target, ok := pending[id]
				if !ok {
					continue
				}

				m := s.motors[id]
				fb, err := m.ReadFeedback(interval)
				if err != nil {
					// Missed poll; the step deadline bounds how long
					// this can go on.
					s.logger.Debug("motor %d: poll: %v", id, err)
					continue
				}
				if s.OnFeedback != nil {
					s.OnFeedback(id, fb)
				}
				if fb.Faults != 0 {
					return &FaultError{ID: id, Faults: fb.Faults}
				}

				diff := fb.Position - target
				if diff < 0 {
					diff = -diff
				}
				if diff <= step.Tolerance {
					s.logger.Debug("motor %d: converged at %.4f rad", id, fb.Position)
					delete(pending, id)
				}
			}

			if len(pending) == 0 {
				return nil
			}
		}
	}
}
