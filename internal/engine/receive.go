package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/bscdce/internal/bsc"
	"github.com/danmuck/bscdce/internal/databuf"
	"github.com/danmuck/bscdce/internal/pins"
)

var ErrReceiveTimeout = errors.New("engine: timed out waiting for frame")

// ReceiveState is the receive state machine position.
type ReceiveState int32

const (
	RecvOutOfSync ReceiveState = iota
	RecvIdle
	RecvData
	RecvTransparent
	RecvBCC1
	RecvBCC2
	RecvPad
)

func (s ReceiveState) String() string {
	switch s {
	case RecvOutOfSync:
		return "out_of_sync"
	case RecvIdle:
		return "idle"
	case RecvData:
		return "data"
	case RecvTransparent:
		return "transparent_data"
	case RecvBCC1:
		return "bcc1"
	case RecvBCC2:
		return "bcc2"
	case RecvPad:
		return "pad"
	default:
		return "unknown"
	}
}

// FrameObserver is told about every completed frame. It runs on the clock
// goroutine and must not block.
type FrameObserver func(frame *databuf.Snapshot)

// ReceiveConfig tunes a ReceiveEngine.
type ReceiveConfig struct {
	Capacity int
	// HoldForTrailingPad defers completion of EOT, NAK, DLE ACK0/ACK1 and
	// DLE ENQ frames until the following PAD has been appended.
	HoldForTrailingPad bool
	Observer           FrameObserver
}

func DefaultReceiveConfig() ReceiveConfig {
	return ReceiveConfig{Capacity: databuf.DefaultCapacity}
}

// ReceiveEngine samples the inbound data line and assembles frames.
type ReceiveEngine struct {
	in  pins.Input
	cts *pins.Signal
	cfg ReceiveConfig

	slots  [2]*databuf.Buffer
	active atomic.Int32
	saved  atomic.Pointer[databuf.Snapshot]

	// mu makes StartReceiving atomic with respect to one ProcessBit.
	mu       sync.Mutex
	shift    byte
	bitCount int
	prevDLE  bool

	register      atomic.Uint32
	state         atomic.Int32
	inSync        atomic.Bool
	frameComplete atomic.Bool
	frames        atomic.Uint64
	overruns      atomic.Uint64
}

// NewReceiveEngine builds a receiver sampling in. cts is the flow-control
// line raised by StartReceiving.
func NewReceiveEngine(in pins.Input, cts *pins.Signal, cfg ReceiveConfig) *ReceiveEngine {
	if cfg.Capacity <= 0 {
		cfg.Capacity = databuf.DefaultCapacity
	}
	if cts == nil {
		cts = pins.NewSignal(pins.Discard{}, false)
	}
	e := &ReceiveEngine{in: in, cts: cts, cfg: cfg}
	e.slots[0] = databuf.New(cfg.Capacity)
	e.slots[1] = databuf.New(cfg.Capacity)
	e.state.Store(int32(RecvOutOfSync))
	return e
}

// GetBit shifts one sampled bit in. The newest bit lands in bit 7, so with the
// sender's LSB-first order a full byte reads back unchanged.
func (e *ReceiveEngine) GetBit(bit bool) {
	e.shift >>= 1
	if bit {
		e.shift |= 0x80
	}
	e.bitCount++
	e.register.Store(uint32(e.shift))
}

// SampleBit reads the data line and shifts the level in.
func (e *ReceiveEngine) SampleBit() {
	e.GetBit(e.in.Get())
}

// ProcessBit advances the state machine after GetBit.
func (e *ReceiveEngine) ProcessBit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := e.State()

	if state == RecvOutOfSync {
		// Byte boundary is unknown: test every bit position.
		if e.shift == bsc.SYN {
			e.inSync.Store(true)
			e.prevDLE = false
			e.write(bsc.SYN)
			e.bitCount = 0
			e.setState(RecvIdle)
		}
		return
	}

	if e.bitCount < 8 {
		return
	}
	b := e.shift
	e.bitCount = 0

	switch state {
	case RecvPad:
		e.write(b)
		e.completeFrame()
		e.setState(RecvIdle)
	case RecvIdle, RecvData:
		e.processText(state, b)
	case RecvTransparent:
		e.processTransparent(b)
	case RecvBCC1:
		e.write(b)
		e.setState(RecvBCC2)
	case RecvBCC2:
		e.write(b)
		e.setState(RecvPad)
	}
}

func (e *ReceiveEngine) processText(state ReceiveState, b byte) {
	switch {
	case b == bsc.SYN:
		// Idle fill. Kept only as the leading marker of a fresh frame.
		if e.activeBuffer().Len() == 0 {
			e.write(bsc.SYN)
		}
		return
	case b == bsc.DLE:
		e.prevDLE = true
		return
	case e.prevDLE && b == bsc.STX:
		e.write(bsc.DLE)
		e.write(bsc.STX)
		e.prevDLE = false
		e.setState(RecvTransparent)
		return
	case b == bsc.STX || b == bsc.SOH:
		e.write(b)
		e.prevDLE = false
		e.setState(RecvData)
		return
	}

	if state == RecvIdle {
		if e.prevDLE && (b == bsc.ACK0 || b == bsc.ACK1) {
			e.prevDLE = false
			e.write(bsc.DLE)
			e.write(b)
			e.endControlFrame()
			return
		}
		e.prevDLE = false
		if b == bsc.EOT || b == bsc.NAK {
			e.write(b)
			e.endControlFrame()
		}
		return
	}

	// RecvData
	if bsc.IsBlockEnd(b) {
		e.write(b)
		e.setState(RecvBCC1)
		return
	}
	e.write(b)
}

func (e *ReceiveEngine) processTransparent(b byte) {
	if e.prevDLE {
		switch b {
		case bsc.DLE:
			e.prevDLE = false
			e.write(bsc.DLE)
			return
		case bsc.ENQ:
			e.prevDLE = false
			e.write(bsc.DLE)
			e.write(bsc.ENQ)
			e.endControlFrame()
			return
		case bsc.ITB, bsc.ETX, bsc.ETB:
			e.prevDLE = false
			e.write(bsc.DLE)
			e.write(b)
			e.setState(RecvBCC1)
			return
		}
		// DLE followed by anything else: the DLE is dropped.
		e.prevDLE = false
		e.write(b)
		return
	}
	if b == bsc.DLE {
		e.prevDLE = true
		return
	}
	e.write(b)
}

// endControlFrame finishes a frame that has no block check.
func (e *ReceiveEngine) endControlFrame() {
	if e.cfg.HoldForTrailingPad {
		e.setState(RecvPad)
		return
	}
	e.completeFrame()
	e.setState(RecvIdle)
}

// completeFrame publishes the active slot as the saved frame and continues
// assembly in the other slot. A frame completing before the previous one was
// taken replaces it.
func (e *ReceiveEngine) completeFrame() {
	cur := e.active.Load()
	e.slots[cur].SetComplete()
	snap := e.slots[cur].Snapshot()
	e.saved.Store(snap)
	next := 1 - cur
	e.slots[next].Clear()
	e.active.Store(next)
	e.frames.Add(1)
	e.frameComplete.Store(true)
	if e.cfg.Observer != nil {
		e.cfg.Observer(snap)
	}
}

func (e *ReceiveEngine) write(b byte) {
	if _, err := e.activeBuffer().Write(b); err != nil {
		e.overruns.Add(1)
	}
}

func (e *ReceiveEngine) activeBuffer() *databuf.Buffer {
	return e.slots[e.active.Load()]
}

func (e *ReceiveEngine) setState(s ReceiveState) {
	e.state.Store(int32(s))
}

// StartReceiving raises CTS and restarts the sync hunt.
func (e *ReceiveEngine) StartReceiving() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cts.Assert()
	e.inSync.Store(false)
	e.setState(RecvOutOfSync)
}

// StopReceiving drops CTS.
func (e *ReceiveEngine) StopReceiving() {
	e.cts.Deassert()
}

// WaitReceivedFrameComplete polls for a completed frame for up to timeout and
// returns how long it waited.
func (e *ReceiveEngine) WaitReceivedFrameComplete(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	start := time.Now()
	deadline := start.Add(timeout)
	for {
		if e.frameComplete.Load() {
			return time.Since(start), nil
		}
		if !time.Now().Before(deadline) {
			return time.Since(start), ErrReceiveTimeout
		}
		select {
		case <-ctx.Done():
			return time.Since(start), ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// SavedFrame returns the most recently completed frame and clears the
// frame-complete flag. It returns nil before the first completion.
func (e *ReceiveEngine) SavedFrame() *databuf.Snapshot {
	e.frameComplete.Store(false)
	return e.saved.Load()
}

func (e *ReceiveEngine) IsFrameComplete() bool {
	return e.frameComplete.Load()
}

func (e *ReceiveEngine) InCharSync() bool {
	return e.inSync.Load()
}

func (e *ReceiveEngine) State() ReceiveState {
	return ReceiveState(e.state.Load())
}

// BitBuffer is the last value of the input shift register.
func (e *ReceiveEngine) BitBuffer() byte {
	return byte(e.register.Load())
}

// CTSAsserted reports the flow-control line.
func (e *ReceiveEngine) CTSAsserted() bool {
	return e.cts.Asserted()
}

// FrameLength is the length of the frame currently being assembled.
func (e *ReceiveEngine) FrameLength() int {
	return e.activeBuffer().Len()
}

// FrameDataByte reads the frame currently being assembled.
func (e *ReceiveEngine) FrameDataByte(idx int) (byte, error) {
	return e.activeBuffer().Get(idx)
}

// FramesCompleted counts completions since construction.
func (e *ReceiveEngine) FramesCompleted() uint64 {
	return e.frames.Load()
}

// Overruns counts bytes dropped because the active buffer was full.
func (e *ReceiveEngine) Overruns() uint64 {
	return e.overruns.Load()
}
