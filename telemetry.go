package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"motor-service/motor"
)

const telemetryChannel = "motor-telemetry"

// Telemetry mirrors motor feedback into Redis so other services can watch
// the fleet without touching the bus.
type Telemetry struct {
	log   *LeveledLogger
	redis *redis.Client
	mu    sync.Mutex
	ctx   context.Context
}

func NewTelemetry(logger *LeveledLogger, redis *redis.Client) *Telemetry {
	return &Telemetry{
		log:   logger,
		redis: redis,
		ctx:   context.Background(),
	}
}

func (t *Telemetry) Destroy() {}

func motorKey(id motor.MotorID) string {
	return fmt.Sprintf("motor:%d", id)
}

// PublishFeedback writes one feedback reading to the motor's hash and
// notifies subscribers.
func (t *Telemetry) PublishFeedback(id motor.MotorID, fb motor.Feedback) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pipe := t.redis.Pipeline()

	pipe.HSet(t.ctx, motorKey(id), map[string]interface{}{
		"position":    fb.Position,
		"velocity":    fb.Velocity,
		"torque":      fb.Torque,
		"temperature": fb.Temperature,
		"faults":      uint32(fb.Faults),
	})
	pipe.Publish(t.ctx, telemetryChannel, motorKey(id))

	if _, err := pipe.Exec(t.ctx); err != nil {
		return fmt.Errorf("failed to publish feedback for motor %d: %v", id, err)
	}
	return nil
}

// PublishState writes a motor's lifecycle state and notifies subscribers.
func (t *Telemetry) PublishState(id motor.MotorID, state motor.State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pipe := t.redis.Pipeline()

	pipe.HSet(t.ctx, motorKey(id), "state", state.String())
	pipe.Publish(t.ctx, telemetryChannel, motorKey(id))

	if _, err := pipe.Exec(t.ctx); err != nil {
		return fmt.Errorf("failed to publish state for motor %d: %v", id, err)
	}
	return nil
}

// WriteDefaults seeds every configured motor's hash so readers see a
// complete fleet before the first feedback arrives.
func (t *Telemetry) WriteDefaults(ids []motor.MotorID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pipe := t.redis.Pipeline()
	for _, id := range ids {
		pipe.HSet(t.ctx, motorKey(id), map[string]interface{}{
			"position":    0.0,
			"velocity":    0.0,
			"torque":      0.0,
			"temperature": 0.0,
			"faults":      0,
			"state":       motor.StateDisabled.String(),
		})
	}

	if _, err := pipe.Exec(t.ctx); err != nil {
		t.log.Error("Failed to write default telemetry: %v", err)
		return
	}
	t.log.Info("Default telemetry written for %d motor(s)", len(ids))
}
