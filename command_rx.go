package main

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"
)

const commandChannel = "motor-control"

// CommandRx listens for operator commands over Redis pub/sub. The only
// supported command is an emergency disable: cancellation of running
// motion is an explicit operator action, never automatic.
type CommandRx struct {
	log    *LeveledLogger
	redis  *redis.Client
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	subscription *redis.PubSub
	onDisable    func()
}

func NewCommandRx(logger *LeveledLogger, redis *redis.Client, onDisable func()) *CommandRx {
	ctx, cancel := context.WithCancel(context.Background())

	rx := &CommandRx{
		log:       logger,
		redis:     redis,
		ctx:       ctx,
		cancel:    cancel,
		onDisable: onDisable,
	}

	rx.subscription = rx.redis.Subscribe(rx.ctx, commandChannel)
	go rx.handleSubscription()

	return rx
}

func (rx *CommandRx) handleSubscription() {
	rx.log.Info("Starting command subscription handler")

	for {
		msg, err := rx.subscription.Receive(rx.ctx)
		if err != nil {
			if err == context.Canceled {
				return
			}
			if err.Error() == "redis: client is closed" {
				rx.log.Error("Redis connection lost on command subscription")
				return
			}
			rx.log.Error("Command subscription error: %v", err)
			continue
		}

		switch m := msg.(type) {
		case *redis.Message:
			rx.log.Debug("Command received: channel=%s, payload=%s", m.Channel, m.Payload)

			switch m.Payload {
			case "disable":
				rx.log.Warn("Operator disable requested")
				if rx.onDisable != nil {
					rx.onDisable()
				}
			default:
				rx.log.Warn("Unknown command: %s", m.Payload)
			}

		case *redis.Subscription:
			rx.log.Debug("Command subscription event: %s %s", m.Channel, m.Kind)
		}
	}
}

func (rx *CommandRx) Destroy() {
	rx.mu.Lock()
	defer rx.mu.Unlock()

	if rx.cancel != nil {
		rx.cancel()
	}
	if rx.subscription != nil {
		rx.subscription.Close()
	}
}
