package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/bscdce/internal/bsc"
	"github.com/danmuck/bscdce/internal/databuf"
	"github.com/danmuck/bscdce/internal/pins"
)

// SendState is the transmitter state.
type SendState int32

const (
	SendOff SendState = iota
	SendIdle
	SendXmit
)

func (s SendState) String() string {
	switch s {
	case SendOff:
		return "off"
	case SendIdle:
		return "idle"
	case SendXmit:
		return "xmit"
	default:
		return "unknown"
	}
}

// pollInterval paces the foreground wait loops.
const pollInterval = 200 * time.Microsecond

// SendEngine drives the outbound data line.
type SendEngine struct {
	out   pins.Output
	queue *databuf.Buffer

	// mu makes a foreground control call atomic with respect to one SendBit.
	mu       sync.Mutex
	shift    byte
	shiftLen int

	state      atomic.Int32
	stopOnIdle atomic.Bool
	lastBit    atomic.Bool
	sent       atomic.Uint64
}

// NewSendEngine builds a transmitter over out with a queue of the given
// capacity. The line is left at mark.
func NewSendEngine(out pins.Output, capacity int) *SendEngine {
	e := &SendEngine{
		out:   out,
		queue: databuf.New(capacity),
	}
	out.Set(pins.Mark)
	e.ClearBuffer()
	return e
}

// ClearBuffer empties the queue, drops the byte in progress and turns the
// transmitter off.
func (e *SendEngine) ClearBuffer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Store(int32(SendOff))
	e.stopOnIdle.Store(false)
	e.queue.Clear()
	e.shiftLen = 0
}

// AddByte queues one byte for transmission.
func (e *SendEngine) AddByte(b byte) (int, error) {
	return e.queue.Write(b)
}

// AddBytes queues data in order, stopping at the first rejected byte.
func (e *SendEngine) AddBytes(data []byte) (int, error) {
	for i, b := range data {
		if _, err := e.queue.Write(b); err != nil {
			return i, err
		}
	}
	return len(data), nil
}

func (e *SendEngine) StartSending() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopOnIdle.Store(false)
	e.state.Store(int32(SendXmit))
}

// StopSending turns the transmitter off immediately and returns the line to
// mark. A byte in progress is truncated.
func (e *SendEngine) StopSending() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Store(int32(SendOff))
	e.out.Set(pins.Mark)
}

// StopSendingOnIdle lets the byte in progress and the rest of the queue go out,
// then turns the transmitter off instead of sending idle fill.
func (e *SendEngine) StopSendingOnIdle() {
	e.stopOnIdle.Store(true)
}

// WaitForSendIdle blocks until the transmitter is idle or off.
func (e *SendEngine) WaitForSendIdle(ctx context.Context) error {
	for {
		switch e.State() {
		case SendIdle, SendOff:
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (e *SendEngine) RemainingDataToBeSent() int {
	return e.queue.Len() - e.queue.Pos()
}

func (e *SendEngine) State() SendState {
	return SendState(e.state.Load())
}

// LastBitSent is the level most recently driven onto the line.
func (e *SendEngine) LastBitSent() bool {
	return e.lastBit.Load()
}

// BytesSent counts queue bytes loaded into the shift register, idle fill excluded.
func (e *SendEngine) BytesSent() uint64 {
	return e.sent.Load()
}

// SendBit emits one bit. Called once per bit period from the clock goroutine.
func (e *SendEngine) SendBit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.State() == SendOff {
		return
	}

	if e.shiftLen == 0 {
		b, _, err := e.queue.Read()
		if err != nil {
			if e.stopOnIdle.Load() {
				e.state.Store(int32(SendOff))
				e.out.Set(pins.Mark)
				return
			}
			e.shift = bsc.IDLE
			e.shiftLen = 8
			e.state.Store(int32(SendIdle))
		} else {
			e.shift = b
			e.shiftLen = 8
			e.sent.Add(1)
			e.state.Store(int32(SendXmit))
		}
	}

	bit := e.shift&0x01 != 0
	e.out.Set(bit)
	e.lastBit.Store(bit)
	e.shift >>= 1
	e.shiftLen--
}
