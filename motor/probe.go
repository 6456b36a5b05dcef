package motor

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Probe defaults.
const (
	DefaultStepTimeout   = 2 * time.Second
	DefaultSweepVelocity = 2.0 // rad/s
)

// SweepSample records one increment of a calibration sweep.
type SweepSample struct {
	Target    float64 // commanded angle, rad
	Reached   float64 // angle read back after the increment
	Converged bool
}

// Range is the observed travel of a joint.
type Range struct {
	Min float64
	Max float64
}

// Probe discovers joint limits by sweeping or by watching a hand-moved
// joint. It is observational tooling: it never writes limits back to the
// motor.
type Probe struct {
	motor  *Motor
	logger Logger

	// Tolerance is the convergence window per increment.
	Tolerance float64
	// StepTimeout bounds the wait per increment. An increment that times
	// out is recorded with Converged=false and the sweep continues; a
	// joint hitting its end stop looks exactly like that.
	StepTimeout time.Duration
	// MaxVelocity bounds sweep motion speed.
	MaxVelocity float64
	// PollInterval is the feedback polling cadence.
	PollInterval time.Duration
}

// NewProbe builds a probe over one motor handle.
func NewProbe(m *Motor, logger Logger) *Probe {
	return &Probe{
		motor:        m,
		logger:       logger,
		Tolerance:    0.01,
		StepTimeout:  DefaultStepTimeout,
		MaxVelocity:  DefaultSweepVelocity,
		PollInterval: DefaultPollInterval,
	}
}

// Sweep commands the motor through position increments from start to end
// and records the angle reached at each one. The motor must be enabled.
// The recorded samples are returned for the operator to pick usable joint
// limits from; nothing is written to the motor.
func (p *Probe) Sweep(ctx context.Context, start, end, step float64) ([]SweepSample, error) {
	if step == 0 {
		return nil, fmt.Errorf("sweep: step must be nonzero")
	}
	if st := p.motor.State(); st != StateEnabled {
		return nil, &StateError{ID: p.motor.ID(), State: st, Op: "sweep"}
	}

	// Walk toward end regardless of the sign the caller passed.
	if (end < start) != (step < 0) {
		step = -step
	}

	count := int(math.Floor((end-start)/step+1e-6)) + 1
	if count < 1 {
		count = 1
	}

	p.logger.Info("motor %d: sweeping %.3f to %.3f rad in %d increments",
		p.motor.ID(), start, end, count)

	samples := make([]SweepSample, 0, count)
	for i := 0; i < count; i++ {
		target := start + float64(i)*step

		sample, err := p.sweepTo(ctx, target)
		if err != nil {
			return samples, err
		}
		samples = append(samples, sample)

		if !sample.Converged {
			p.logger.Warn("motor %d: %.3f rad not reached (stopped at %.3f)",
				p.motor.ID(), target, sample.Reached)
		}
	}

	return samples, nil
}

func (p *Probe) sweepTo(ctx context.Context, target float64) (SweepSample, error) {
	sample := SweepSample{Target: target}

	err := p.motor.SetTarget(PositionCommand{
		Angle:       target,
		MaxVelocity: p.MaxVelocity,
	})
	if err != nil {
		return sample, err
	}

	ticker := time.NewTicker(p.PollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(p.StepTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return sample, ctx.Err()

		case <-deadline.C:
			if fb, ok := p.motor.LastFeedback(); ok {
				sample.Reached = fb.Position
			}
			return sample, nil

		case <-ticker.C:
			fb, err := p.motor.ReadFeedback(p.PollInterval)
			if err != nil {
				continue
			}
			if fb.Faults != 0 {
				sample.Reached = fb.Position
				return sample, &FaultError{ID: p.motor.ID(), Faults: fb.Faults}
			}

			sample.Reached = fb.Position
			if math.Abs(fb.Position-target) <= p.Tolerance {
				sample.Converged = true
				return sample, nil
			}
		}
	}
}

// Observe tracks the min/max angle of an enabled, hand-moved joint until
// the context is cancelled, then returns the observed range.
func (p *Probe) Observe(ctx context.Context) (Range, error) {
	if st := p.motor.State(); st != StateEnabled {
		return Range{}, &StateError{ID: p.motor.ID(), State: st, Op: "observe"}
	}

	r := Range{Min: math.Inf(1), Max: math.Inf(-1)}
	seen := false

	ticker := time.NewTicker(p.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if !seen {
				return Range{}, fmt.Errorf("motor %d: %w during observation", p.motor.ID(), ErrStaleData)
			}
			return r, nil

		case <-ticker.C:
			fb, err := p.motor.ReadFeedback(p.PollInterval)
			if err != nil {
				continue
			}
			seen = true
			if fb.Position < r.Min {
				r.Min = fb.Position
			}
			if fb.Position > r.Max {
				r.Max = fb.Position
			}
		}
	}
}
