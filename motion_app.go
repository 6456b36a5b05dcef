package main

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"motor-service/motor"
)

const (
	MotorEnableTimeout  = 2 * time.Second
	DefaultStepTimeout  = 2000 * time.Millisecond
	DefaultTolerance    = 0.01 // rad
	ScanProbeTimeout    = 50 * time.Millisecond
	ZeroCommandInterval = 50 * time.Millisecond
)

type MotionApp struct {
	log       *LeveledLogger
	redis     *redis.Client
	telemetry *Telemetry
	diag      *Diag
	commandRx *CommandRx
	transport *motor.BusTransport
	seq       *motor.Sequencer
	config    *FleetConfig
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewMotionApp(opts *Options) (*MotionApp, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &MotionApp{
		log:    NewLeveledLogger(log.New(log.Writer(), fmt.Sprintf("%s: ", ProjectName), log.LstdFlags), opts.LogLevel),
		ctx:    ctx,
		cancel: cancel,
	}

	config, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		cancel()
		return nil, err
	}
	app.config = config

	// Initialize Redis client with timeouts
	app.redis = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", opts.RedisServerAddr, opts.RedisServerPort),
		Password:     "",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
	defer connectCancel()

	app.log.Info("Connecting to Redis at %s:%d...", opts.RedisServerAddr, opts.RedisServerPort)
	if err := app.redis.Ping(connectCtx).Err(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	app.telemetry = NewTelemetry(app.log, app.redis)
	app.diag = NewDiag(app.log, app.redis)

	go app.redisHealthCheck()

	device := opts.CANDevice
	if device == "" {
		device = config.Interface
	}

	transport, err := motor.Open(device, app.log)
	if err != nil {
		cancel()
		return nil, err
	}
	app.transport = transport

	motors := make([]*motor.Motor, 0, len(config.Motors))
	ids := make([]motor.MotorID, 0, len(config.Motors))
	for _, mc := range config.Motors {
		model, _ := motor.ModelByName(mc.Model)
		motors = append(motors, motor.NewMotor(transport, motor.MotorID(mc.ID), model, app.log))
		ids = append(ids, motor.MotorID(mc.ID))
	}

	app.seq = motor.NewSequencer(app.log, motors...)
	app.seq.OnFeedback = func(id motor.MotorID, fb motor.Feedback) {
		if err := app.telemetry.PublishFeedback(id, fb); err != nil {
			app.log.Warn("Telemetry publish failed: %v", err)
		}
		app.diag.SetFaults(id, fb.Faults)
	}

	app.telemetry.WriteDefaults(ids)

	app.commandRx = NewCommandRx(app.log, app.redis, app.EmergencyDisable)

	app.log.Info("Motion app initialized: %d motor(s) on %s", len(motors), device)
	return app, nil
}

// Run executes the operation selected on the command line.
func (app *MotionApp) Run(ctx context.Context, opts *Options) error {
	switch opts.Mode {
	case ModeMove:
		return app.runMove(ctx, opts, false)
	case ModeSimultaneous:
		return app.runMove(ctx, opts, true)
	case ModeSweep:
		return app.runSweep(ctx, opts)
	case ModeObserve:
		return app.runObserve(ctx, opts)
	case ModeZero:
		return app.runZero(opts)
	case ModeScan:
		return app.runScan()
	}
	return fmt.Errorf("unknown mode %q", opts.Mode)
}

type targetSpec struct {
	id    motor.MotorID
	angle float64
}

// parseTargets parses "id=angle,id=angle" pairs and bounds-checks each
// angle against the configured joint limits.
func (app *MotionApp) parseTargets(spec string) ([]targetSpec, error) {
	if spec == "" {
		return nil, fmt.Errorf("no targets given (use -targets \"1=0.5,2=-0.3\")")
	}

	var targets []targetSpec
	for _, pair := range strings.Split(spec, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed target %q", pair)
		}

		id, err := strconv.ParseUint(parts[0], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("malformed motor id in %q", pair)
		}
		angle, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed angle in %q", pair)
		}

		if err := app.config.CheckBounds(uint8(id), angle); err != nil {
			return nil, err
		}
		targets = append(targets, targetSpec{id: motor.MotorID(id), angle: angle})
	}

	return targets, nil
}

func (app *MotionApp) positionCommand(id motor.MotorID, angle float64) motor.Command {
	mc, _ := app.config.Motor(uint8(id))
	return motor.PositionCommand{
		Angle:       angle,
		MaxVelocity: mc.LimitSpeed,
		MaxCurrent:  mc.LimitCurrent,
	}
}

// runMove executes the targets as a sequential plan (one step per target)
// or one simultaneous step.
func (app *MotionApp) runMove(ctx context.Context, opts *Options, simultaneous bool) error {
	targets, err := app.parseTargets(opts.Targets)
	if err != nil {
		return err
	}

	tolerance := opts.ToleranceRad
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	timeout := time.Duration(opts.StepTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}

	for _, t := range targets {
		if err := app.enableMotor(t.id); err != nil {
			return err
		}
	}

	if simultaneous {
		step := motor.Step{
			Targets:   make(map[motor.MotorID]motor.Command, len(targets)),
			Tolerance: tolerance,
			Timeout:   timeout,
		}
		for _, t := range targets {
			step.Targets[t.id] = app.positionCommand(t.id, t.angle)
		}

		app.log.Info("Moving %d motor(s) simultaneously", len(targets))
		if err := app.seq.RunSimultaneous(ctx, step); err != nil {
			return err
		}
	} else {
		plan := make(motor.Plan, 0, len(targets))
		for _, t := range targets {
			plan = append(plan, motor.Step{
				Targets:   map[motor.MotorID]motor.Command{t.id: app.positionCommand(t.id, t.angle)},
				Tolerance: tolerance,
				Timeout:   timeout,
			})
		}

		app.log.Info("Running %d-step sequential plan", len(plan))
		if err := app.seq.RunSequential(ctx, plan); err != nil {
			return err
		}
	}

	if opts.HoldTime > 0 {
		app.log.Info("Holding for %dms", opts.HoldTime)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(opts.HoldTime) * time.Millisecond):
		}
	}

	app.log.Info("Motion complete")
	return nil
}

func (app *MotionApp) runSweep(ctx context.Context, opts *Options) error {
	m := app.seq.Motor(motor.MotorID(opts.MotorID))
	if m == nil {
		return fmt.Errorf("motor %d not in config", opts.MotorID)
	}

	if err := app.enableMotor(m.ID()); err != nil {
		return err
	}

	probe := motor.NewProbe(m, app.log)
	if opts.ToleranceRad > 0 {
		probe.Tolerance = opts.ToleranceRad
	}
	if opts.StepTimeout > 0 {
		probe.StepTimeout = time.Duration(opts.StepTimeout) * time.Millisecond
	}
	if mc, ok := app.config.Motor(uint8(opts.MotorID)); ok && mc.LimitSpeed > 0 {
		probe.MaxVelocity = mc.LimitSpeed
	}

	samples, err := probe.Sweep(ctx, opts.SweepStart, opts.SweepEnd, opts.SweepStep)

	for _, s := range samples {
		mark := "ok"
		if !s.Converged {
			mark = "STALLED"
		}
		app.log.Printf("target %+8.3f rad -> reached %+8.3f rad  [%s]", s.Target, s.Reached, mark)
	}
	if err != nil {
		return err
	}

	min, max, found := convergedRange(samples)
	if found {
		app.log.Printf("Converged travel: %.3f to %.3f rad", min, max)
	} else {
		app.log.Warn("No increment converged; no usable travel found")
	}
	return nil
}

func convergedRange(samples []motor.SweepSample) (min, max float64, found bool) {
	for _, s := range samples {
		if !s.Converged {
			continue
		}
		if !found || s.Reached < min {
			min = s.Reached
		}
		if !found || s.Reached > max {
			max = s.Reached
		}
		found = true
	}
	return min, max, found
}

// runObserve enables the motor with zero gains in operation mode so the
// joint can be moved by hand, and tracks its min/max angle until
// interrupted.
func (app *MotionApp) runObserve(ctx context.Context, opts *Options) error {
	m := app.seq.Motor(motor.MotorID(opts.MotorID))
	if m == nil {
		return fmt.Errorf("motor %d not in config", opts.MotorID)
	}

	if err := m.WriteParam(motor.ParamRunMode, float64(motor.RunModeOperation)); err != nil {
		return err
	}
	if err := app.enableMotor(m.ID()); err != nil {
		return err
	}

	app.log.Printf("Rotate the joint by hand; interrupt to stop recording.")

	probe := motor.NewProbe(m, app.log)
	r, err := probe.Observe(ctx)
	if err != nil {
		return err
	}

	app.log.Printf("Motor %d: min %.3f rad, max %.3f rad, range %.3f rad",
		m.ID(), r.Min, r.Max, r.Max-r.Min)
	return nil
}

// runZero makes every configured motor's current angle its permanent
// zero. Requires a power cycle afterwards to take effect.
func (app *MotionApp) runZero(opts *Options) error {
	motors := app.seq.Motors()
	if opts.MotorID != 0 {
		m := app.seq.Motor(motor.MotorID(opts.MotorID))
		if m == nil {
			return fmt.Errorf("motor %d not in config", opts.MotorID)
		}
		motors = []*motor.Motor{m}
	}

	app.log.Warn("Writing permanent zero offsets to %d motor(s)", len(motors))

	for _, m := range motors {
		app.log.Info("Zeroing motor %d", m.ID())
		if err := m.ZeroPosition(); err != nil {
			return err
		}
		time.Sleep(ZeroCommandInterval)
	}

	for _, m := range motors {
		app.log.Info("Saving configuration for motor %d", m.ID())
		if err := m.SaveConfiguration(); err != nil {
			return err
		}
		time.Sleep(ZeroCommandInterval)
	}

	app.log.Printf("Zero offsets saved. Power-cycle the motors to apply.")
	return nil
}

// runScan passively probes every bus ID with a read-only voltage query.
func (app *MotionApp) runScan() error {
	app.log.Printf("Scanning IDs 1-127 (read-only, motors will not move)")

	var found []motor.MotorID
	for id := motor.MotorID(1); id <= 127; id++ {
		m := app.seq.Motor(id)
		if m == nil {
			m = motor.NewMotor(app.transport, id, &motor.ModelO2, app.log)
		}

		vbus, err := m.ReadParam(motor.ParamVBus, ScanProbeTimeout)
		if err != nil {
			continue
		}
		app.log.Printf("ID %3d: found (bus voltage %.2fV)", id, vbus)
		found = append(found, id)
	}

	if len(found) == 0 {
		app.log.Warn("No motors found; check power and CAN cabling")
	} else {
		app.log.Printf("Scan complete: %v", found)
	}
	return nil
}

func (app *MotionApp) enableMotor(id motor.MotorID) error {
	m := app.seq.Motor(id)
	if m == nil {
		return fmt.Errorf("motor %d not in config", id)
	}
	if err := m.Enable(MotorEnableTimeout); err != nil {
		return err
	}
	if err := app.telemetry.PublishState(id, m.State()); err != nil {
		app.log.Warn("Telemetry publish failed: %v", err)
	}
	return nil
}

// EmergencyDisable powers off the whole fleet. Invoked by the operator
// over the command channel or by teardown.
func (app *MotionApp) EmergencyDisable() {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.log.Warn("Disabling all motors")
	if err := app.seq.DisableAll(); err != nil {
		app.log.Error("Disable-all reported: %v", err)
	}
	for _, m := range app.seq.Motors() {
		if err := app.telemetry.PublishState(m.ID(), m.State()); err != nil {
			app.log.Warn("Telemetry publish failed: %v", err)
		}
	}
}

func (app *MotionApp) redisHealthCheck() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(app.ctx, 2*time.Second)
			if err := app.redis.Ping(ctx).Err(); err != nil {
				app.log.Error("Redis health check failed: %v", err)
			}
			cancel()
		}
	}
}

func (app *MotionApp) Destroy() {
	app.log.Info("Shutting down...")

	if app.cancel != nil {
		app.cancel()
	}

	if app.commandRx != nil {
		app.commandRx.Destroy()
	}

	// Motors are always disabled on the way out, whatever state the run
	// left them in.
	if app.seq != nil {
		app.EmergencyDisable()
	}

	if app.transport != nil {
		if err := app.transport.Close(); err != nil {
			app.log.Error("Error closing CAN transport: %v", err)
		}
	}

	if app.diag != nil {
		app.diag.Destroy()
	}
	if app.telemetry != nil {
		app.telemetry.Destroy()
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.log.Error("Error closing Redis connection: %v", err)
		}
	}

	app.log.Info("Shutdown complete")
}
