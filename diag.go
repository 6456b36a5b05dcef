package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"motor-service/motor"
)

const (
	diagEventStream         = "events:faults"
	diagEventStreamMaxLen   = 1000
	diagNotificationChannel = "motor-faults"
)

// Diag tracks per-motor fault presence and reports edges to Redis: a
// fault set per motor, a bounded event stream and a pub/sub notification.
type Diag struct {
	log         *LeveledLogger
	redis       *redis.Client
	mu          sync.RWMutex
	faultStates map[motor.MotorID]motor.FaultSet
	ctx         context.Context
}

func NewDiag(logger *LeveledLogger, redis *redis.Client) *Diag {
	return &Diag{
		log:         logger,
		redis:       redis,
		faultStates: make(map[motor.MotorID]motor.FaultSet),
		ctx:         context.Background(),
	}
}

func (d *Diag) Destroy() {}

func diagFaultKey(id motor.MotorID) string {
	return fmt.Sprintf("motor:%d:fault", id)
}

// SetFaults reconciles a motor's reported fault bitset against the last
// known one, reporting only edges.
func (d *Diag) SetFaults(id motor.MotorID, faults motor.FaultSet) {
	d.mu.Lock()
	defer d.mu.Unlock()

	previous := d.faultStates[id]
	if previous == faults {
		return
	}
	d.faultStates[id] = faults

	for bit := 0; bit < 6; bit++ {
		mask := motor.FaultSet(1 << bit)
		wasPresent := previous.Has(mask)
		nowPresent := faults.Has(mask)
		if wasPresent == nowPresent {
			continue
		}

		config, ok := motor.GetFaultConfig(mask)
		if !ok {
			d.log.Warn("Motor %d: unknown fault bit %d", id, bit)
			continue
		}

		if nowPresent {
			d.log.Error("Motor %d fault set: %s", id, config.Description)
			d.reportFaultPresent(id, mask, config)
		} else {
			d.log.Info("Motor %d fault cleared: %s", id, config.Description)
			d.reportFaultAbsent(id, mask)
		}
	}
}

func (d *Diag) reportFaultPresent(id motor.MotorID, fault motor.FaultSet, config motor.FaultConfig) {
	pipe := d.redis.Pipeline()

	pipe.SAdd(d.ctx, diagFaultKey(id), uint32(fault))

	pipe.XAdd(d.ctx, &redis.XAddArgs{
		Stream: diagEventStream,
		MaxLen: diagEventStreamMaxLen,
		Values: map[string]interface{}{
			"motor":       uint32(id),
			"code":        uint32(fault),
			"description": config.Description,
		},
	})

	pipe.Publish(d.ctx, diagNotificationChannel, "fault")

	if _, err := pipe.Exec(d.ctx); err != nil {
		d.log.Error("Failed to report fault present: %v", err)
	}
}

func (d *Diag) reportFaultAbsent(id motor.MotorID, fault motor.FaultSet) {
	pipe := d.redis.Pipeline()

	pipe.SRem(d.ctx, diagFaultKey(id), uint32(fault))

	pipe.XAdd(d.ctx, &redis.XAddArgs{
		Stream: diagEventStream,
		MaxLen: diagEventStreamMaxLen,
		Values: map[string]interface{}{
			"motor": uint32(id),
			"code":  -int32(fault),
		},
	})

	pipe.Publish(d.ctx, diagNotificationChannel, "fault")

	if _, err := pipe.Exec(d.ctx); err != nil {
		d.log.Error("Failed to report fault absent: %v", err)
	}
}
