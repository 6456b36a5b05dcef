package motor

import (
	"fmt"
	"sync"
	"time"

	"github.com/brutella/can"
)

// Receive buffer depth. Motors answer every host frame, so a burst of
// commands to a full fleet can queue several replies before the control
// loop reads them.
const receiveQueueSize = 64

// Transport is a request/response view of the shared CAN bus. It must not
// be used from more than one goroutine without external locking: frame
// interleaving would corrupt request/response pairing.
type Transport interface {
	// Send puts one frame on the bus.
	Send(frame can.Frame) error

	// Receive returns the next incoming frame, waiting up to timeout.
	Receive(timeout time.Duration) (can.Frame, error)

	// Flush discards all buffered incoming frames.
	Flush()

	// Close releases the bus socket.
	Close() error
}

// BusTransport adapts a socketcan interface to the Transport contract.
type BusTransport struct {
	bus    *can.Bus
	logger Logger
	frames chan can.Frame

	mu     sync.Mutex
	closed bool
}

// Open binds a transport to a named, already-configured CAN interface.
func Open(device string, logger Logger) (*BusTransport, error) {
	bus, err := can.NewBusForInterfaceWithName(device)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnection, device, err)
	}

	t := &BusTransport{
		bus:    bus,
		logger: logger,
		frames: make(chan can.Frame, receiveQueueSize),
	}

	bus.Subscribe(t)

	go func() {
		if err := bus.ConnectAndPublish(); err != nil {
			if logger != nil {
				logger.Error("CAN bus receive loop ended: %v", err)
			}
		}
	}()

	if logger != nil {
		logger.Info("CAN transport open on %s", device)
	}
	return t, nil
}

// Handle implements the bus subscriber, queueing incoming frames for
// Receive. When the queue is full the oldest frame is dropped so the bus
// reader never stalls.
func (t *BusTransport) Handle(frame can.Frame) {
	DebugCANFrame(t.logger, "RX", frame.ID, frame.Data, frame.Length)

	select {
	case t.frames <- frame:
	default:
		select {
		case <-t.frames:
		default:
		}
		select {
		case t.frames <- frame:
		default:
		}
	}
}

func (t *BusTransport) Send(frame can.Frame) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}

	DebugCANFrame(t.logger, "TX", frame.ID, frame.Data, frame.Length)

	if err := t.bus.Publish(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	return nil
}

func (t *BusTransport) Receive(timeout time.Duration) (can.Frame, error) {
	select {
	case frame := <-t.frames:
		return frame, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame := <-t.frames:
		return frame, nil
	case <-timer.C:
		return can.Frame{}, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}

func (t *BusTransport) Flush() {
	for {
		select {
		case <-t.frames:
		default:
			return
		}
	}
}

func (t *BusTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if t.logger != nil {
		t.logger.Info("Closing CAN transport")
	}
	return t.bus.Disconnect()
}
