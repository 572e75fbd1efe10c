package modem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/bscdce/internal/bsc"
	"github.com/danmuck/bscdce/internal/databuf"
	"github.com/danmuck/bscdce/internal/engine"
	"github.com/danmuck/bscdce/internal/observability"
	"github.com/danmuck/bscdce/internal/pins"
	"github.com/danmuck/bscdce/internal/sequencer"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotRunning     = errors.New("modem: clock not running")
	ErrAlreadyRunning = errors.New("modem: clock already running")
	ErrEmptyFrame     = errors.New("modem: empty frame")
)

// ResetTiming holds the pauses of the ready choreography.
type ResetTiming struct {
	NotReadyHold time.Duration
	DSRSettle    time.Duration
	RingOn       time.Duration
	RingOff      time.Duration
	Answer       time.Duration
	CTSSettle    time.Duration
}

func DefaultResetTiming() ResetTiming {
	return ResetTiming{
		NotReadyHold: 2 * time.Second,
		DSRSettle:    500 * time.Millisecond,
		RingOn:       2 * time.Second,
		RingOff:      4 * time.Second,
		Answer:       500 * time.Millisecond,
		CTSSettle:    500 * time.Millisecond,
	}
}

type Config struct {
	BitRate            int
	BufferCapacity     int
	ReceiveTimeout     time.Duration
	HoldForTrailingPad bool
	ActiveLow          bool
	Reset              ResetTiming
}

func DefaultConfig() Config {
	return Config{
		BitRate:        2400,
		BufferCapacity: databuf.DefaultCapacity,
		ReceiveTimeout: 2 * time.Second,
		ActiveLow:      true,
		Reset:          DefaultResetTiming(),
	}
}

// Status is a point-in-time view of the modem for the admin API.
type Status struct {
	Running        bool   `json:"running"`
	Ready          bool   `json:"ready"`
	BitRate        int    `json:"bit_rate"`
	Ticks          uint64 `json:"ticks"`
	SendState      string `json:"send_state"`
	SendRemaining  int    `json:"send_remaining"`
	BytesSent      uint64 `json:"bytes_sent"`
	ReceiveState   string `json:"receive_state"`
	InSync         bool   `json:"in_sync"`
	CTS            bool   `json:"cts"`
	FrameComplete  bool   `json:"frame_complete"`
	FrameLength    int    `json:"frame_length"`
	FramesReceived uint64 `json:"frames_received"`
	Overruns       uint64 `json:"overruns"`
}

// Modem is the context object the clock callback closes over.
type Modem struct {
	cfg   Config
	lines Lines

	send  *engine.SendEngine
	recv  *engine.ReceiveEngine
	seq   *sequencer.Sequencer
	timer sequencer.Timer

	dsr *pins.Signal
	cd  *pins.Signal

	clockMu   sync.Mutex
	stopClock context.CancelFunc
	clockDone <-chan struct{}

	// mu serializes foreground operations that drive the engines.
	mu      sync.Mutex
	running atomic.Bool
	ready   atomic.Bool
	last    atomic.Pointer[databuf.Snapshot]
}

// New wires engines and sequencer onto lines. A nil timer selects a
// TickerTimer.
func New(cfg Config, lines Lines, timer sequencer.Timer) *Modem {
	def := DefaultConfig()
	if cfg.BitRate <= 0 {
		cfg.BitRate = def.BitRate
	}
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = def.BufferCapacity
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = def.ReceiveTimeout
	}
	if timer == nil {
		timer = sequencer.NewTickerTimer()
	}
	lines = lines.withDefaults()

	send := engine.NewSendEngine(lines.RxD, cfg.BufferCapacity)
	cts := pins.NewSignal(lines.CTS, cfg.ActiveLow)
	recv := engine.NewReceiveEngine(lines.TxD, cts, engine.ReceiveConfig{
		Capacity:           cfg.BufferCapacity,
		HoldForTrailingPad: cfg.HoldForTrailingPad,
		Observer: func(*databuf.Snapshot) {
			observability.RecordFrameAssembled()
		},
	})

	return &Modem{
		cfg:   cfg,
		lines: lines,
		send:  send,
		recv:  recv,
		seq:   sequencer.New(send, recv, lines.TxClk, lines.RxClk),
		timer: timer,
		dsr:   pins.NewSignal(lines.DSR, cfg.ActiveLow),
		cd:    pins.NewSignal(lines.CD, cfg.ActiveLow),
	}
}

// Start drops the control lines to not ready and starts the bit clock.
func (m *Modem) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	m.setNotReady()
	ctx, cancel := context.WithCancel(context.Background())
	done, err := sequencer.Run(ctx, m.timer, m.seq, m.cfg.BitRate)
	if err != nil {
		cancel()
		m.running.Store(false)
		return fmt.Errorf("modem: start clock: %w", err)
	}
	m.clockMu.Lock()
	m.stopClock, m.clockDone = cancel, done
	m.clockMu.Unlock()
	log.Info().
		Int("bit_rate", m.cfg.BitRate).
		Dur("period", sequencer.Period(m.cfg.BitRate)).
		Msg("modem clock started")
	return nil
}

// Stop halts the clock and releases the control lines.
func (m *Modem) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.clockMu.Lock()
	cancel, done := m.stopClock, m.clockDone
	m.stopClock, m.clockDone = nil, nil
	m.clockMu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	m.send.StopSending()
	m.setNotReady()
	log.Info().Uint64("ticks", m.seq.Ticks()).Msg("modem clock stopped")
}

func (m *Modem) setNotReady() {
	m.dsr.Deassert()
	m.cd.Deassert()
	m.recv.StopReceiving()
	m.lines.RxD.Set(pins.Mark)
	m.ready.Store(false)
}

// Ready runs the power-on sequence: DSR, a ring on CD, a short answering
// ring, then CTS. It is a no-op when already ready.
func (m *Modem) Ready(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readyLocked(ctx)
}

func (m *Modem) readyLocked(ctx context.Context) error {
	if m.ready.Load() {
		return nil
	}
	t := m.cfg.Reset
	steps := []struct {
		name  string
		apply func()
		pause time.Duration
	}{
		{"dsr_on", m.dsr.Assert, t.DSRSettle},
		{"ring", m.cd.Assert, t.RingOn},
		{"ring_off", m.cd.Deassert, t.RingOff},
		{"answer", m.cd.Assert, t.Answer},
		{"cts_on", func() { m.cd.Deassert(); m.recv.StartReceiving() }, t.CTSSettle},
	}
	for _, s := range steps {
		s.apply()
		log.Debug().Str("step", s.name).Dur("pause", s.pause).Msg("modem ready sequence")
		if err := sleep(ctx, s.pause); err != nil {
			return fmt.Errorf("modem: ready %s: %w", s.name, err)
		}
	}
	m.lines.RxD.Set(pins.Mark)
	m.ready.Store(true)
	log.Info().Msg("modem ready")
	return nil
}

// Reset drops to not ready, holds, and runs the ready sequence again.
func (m *Modem) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setNotReady()
	log.Info().Dur("hold", m.cfg.Reset.NotReadyHold).Msg("modem reset")
	if err := sleep(ctx, m.cfg.Reset.NotReadyHold); err != nil {
		return fmt.Errorf("modem: reset hold: %w", err)
	}
	return m.readyLocked(ctx)
}

// Send transmits frame exactly as given and waits until the last byte has
// left the line. It returns the bytes still queued, which is zero unless ctx
// ended early.
func (m *Modem) Send(ctx context.Context, frame []byte) (int, error) {
	if len(frame) == 0 {
		return 0, ErrEmptyFrame
	}
	if !m.running.Load() {
		return 0, ErrNotRunning
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.send.BytesSent()
	m.send.ClearBuffer()
	if _, err := m.send.AddBytes(frame); err != nil {
		m.send.ClearBuffer()
		return 0, fmt.Errorf("modem: queue %d bytes: %w", len(frame), err)
	}
	m.send.StartSending()
	m.send.StopSendingOnIdle()
	err := m.send.WaitForSendIdle(ctx)
	observability.RecordBytesSent(int(m.send.BytesSent() - before))
	remaining := m.send.RemainingDataToBeSent()
	if err != nil {
		m.send.StopSending()
		return remaining, fmt.Errorf("modem: send: %w", err)
	}
	log.Debug().Int("frame_len", len(frame)).Int("remaining", remaining).Msg("frame sent")
	return remaining, nil
}

// Receive enables the receiver and waits up to the configured timeout for a
// complete frame. Timeouts wrap engine.ErrReceiveTimeout.
func (m *Modem) Receive(ctx context.Context) ([]byte, error) {
	if !m.running.Load() {
		return nil, ErrNotRunning
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recv.StartReceiving()
	waited, err := m.recv.WaitReceivedFrameComplete(ctx, m.cfg.ReceiveTimeout)
	if err != nil {
		if errors.Is(err, engine.ErrReceiveTimeout) {
			observability.RecordReceiveTimeout()
			log.Debug().
				Int("frame_len", m.recv.FrameLength()).
				Str("state", m.recv.State().String()).
				Msg("receive timed out")
		}
		return nil, fmt.Errorf("modem: receive: %w", err)
	}

	snap := m.recv.SavedFrame()
	m.last.Store(snap)
	kind := bsc.Classify(snap.Bytes())
	observability.RecordFrameReceived(kind.String())
	log.Debug().
		Int("frame_len", snap.Len()).
		Str("kind", kind.String()).
		Dur("waited", waited).
		Msg("frame received")
	return snap.Bytes(), nil
}

// ReceiveProgress describes the frame being assembled, for timeout reports.
func (m *Modem) ReceiveProgress() (length int, state string, bits byte) {
	return m.recv.FrameLength(), m.recv.State().String(), m.recv.BitBuffer()
}

// LastFrame is the most recent frame handed out by Receive, or nil.
func (m *Modem) LastFrame() *databuf.Snapshot {
	return m.last.Load()
}

func (m *Modem) Status() Status {
	return Status{
		Running:        m.running.Load(),
		Ready:          m.ready.Load(),
		BitRate:        m.cfg.BitRate,
		Ticks:          m.seq.Ticks(),
		SendState:      m.send.State().String(),
		SendRemaining:  m.send.RemainingDataToBeSent(),
		BytesSent:      m.send.BytesSent(),
		ReceiveState:   m.recv.State().String(),
		InSync:         m.recv.InCharSync(),
		CTS:            m.recv.CTSAsserted(),
		FrameComplete:  m.recv.IsFrameComplete(),
		FrameLength:    m.recv.FrameLength(),
		FramesReceived: m.recv.FramesCompleted(),
		Overruns:       m.recv.Overruns(),
	}
}

func (m *Modem) Config() Config {
	return m.cfg
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
