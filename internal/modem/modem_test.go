package modem

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/bscdce/internal/bsc"
	"github.com/danmuck/bscdce/internal/engine"
	"github.com/danmuck/bscdce/internal/pins"
	"github.com/danmuck/bscdce/internal/testutil/testlog"
)

// spinTimer calls fn back to back on one goroutine, which is much faster than
// any real bit rate.
type spinTimer struct {
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (s *spinTimer) Start(_ time.Duration, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			for i := 0; i < 64; i++ {
				fn()
			}
			runtime.Gosched()
		}
	}()
	return nil
}

func (s *spinTimer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Reset = ResetTiming{}
	cfg.ReceiveTimeout = 2 * time.Second
	return cfg
}

func startLoopback(t *testing.T, cfg Config) (*Modem, Lines) {
	t.Helper()
	lines := Loopback()
	m := New(cfg, lines, &spinTimer{})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(m.Stop)
	if err := m.Ready(context.Background()); err != nil {
		t.Fatalf("ready: %v", err)
	}
	return m, lines
}

func TestStartStopLifecycle(t *testing.T) {
	testlog.Start(t)

	m := New(testConfig(), Loopback(), &spinTimer{})
	if _, err := m.Send(context.Background(), []byte{bsc.PAD}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if _, err := m.Receive(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if !m.Status().Running {
		t.Fatalf("status not running")
	}
	m.Stop()
	m.Stop()
	if m.Status().Running {
		t.Fatalf("status still running")
	}
}

func TestStopHaltsClock(t *testing.T) {
	testlog.Start(t)

	m := New(testConfig(), Loopback(), &spinTimer{})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for m.Status().Ticks == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	m.Stop()
	after := m.Status().Ticks
	if after == 0 {
		t.Fatalf("clock never ticked")
	}
	time.Sleep(5 * time.Millisecond)
	if got := m.Status().Ticks; got != after {
		t.Fatalf("ticks advanced after stop: %d -> %d", after, got)
	}

	// The clock can be restarted after a stop.
	if err := m.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	m.Stop()
}

func TestReadyDrivesControlLines(t *testing.T) {
	testlog.Start(t)

	m, lines := startLoopback(t, testConfig())
	dsr := lines.DSR.(*pins.Line)
	cd := lines.CD.(*pins.Line)
	cts := lines.CTS.(*pins.Line)

	if dsr.Get() {
		t.Fatalf("expected DSR asserted low")
	}
	if !cd.Get() {
		t.Fatalf("expected CD released high after answer")
	}
	if cd.Changes() != 4 {
		t.Fatalf("expected two CD pulses, got %d changes", cd.Changes())
	}
	if cts.Get() {
		t.Fatalf("expected CTS asserted low")
	}
	st := m.Status()
	if !st.Ready || !st.CTS {
		t.Fatalf("unexpected status: %+v", st)
	}

	// Already ready: a second call changes nothing.
	if err := m.Ready(context.Background()); err != nil {
		t.Fatalf("ready again: %v", err)
	}
	if cd.Changes() != 4 {
		t.Fatalf("ready sequence ran twice")
	}
}

func TestResetDropsAndRestoresReady(t *testing.T) {
	testlog.Start(t)

	m, lines := startLoopback(t, testConfig())
	dsr := lines.DSR.(*pins.Line)
	changes := dsr.Changes()

	if err := m.Reset(context.Background()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if dsr.Get() || dsr.Changes() != changes+2 {
		t.Fatalf("DSR did not cycle: level=%v changes=%d", dsr.Get(), dsr.Changes())
	}
	if !m.Status().Ready {
		t.Fatalf("not ready after reset")
	}
}

func TestResetHonoursContext(t *testing.T) {
	testlog.Start(t)

	cfg := testConfig()
	cfg.Reset.NotReadyHold = time.Hour
	m := New(cfg, Loopback(), &spinTimer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Reset(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if m.Status().Ready {
		t.Fatalf("ready after aborted reset")
	}
}

func TestSendReceiveLoopback(t *testing.T) {
	testlog.Start(t)

	m, _ := startLoopback(t, testConfig())
	ctx := context.Background()

	frame := bsc.Envelope([]byte{bsc.SYN, bsc.STX, 0xC1, bsc.ETX, 0x01, 0x02})
	remaining, err := m.Send(ctx, frame)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("unexpected remaining: %d", remaining)
	}

	got, err := m.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	want := []byte{bsc.SYN, bsc.STX, 0xC1, bsc.ETX, 0x01, 0x02, bsc.PAD}
	if !bytes.Equal(got, want) {
		t.Fatalf("unexpected frame: % X", got)
	}
	if last := m.LastFrame(); last == nil || !bytes.Equal(last.Bytes(), want) {
		t.Fatalf("last frame not recorded: %v", last)
	}
	if st := m.Status(); st.BytesSent < uint64(len(frame)) || st.FramesReceived == 0 {
		t.Fatalf("unexpected status counters: %+v", st)
	}
}

func TestReceiveTimeout(t *testing.T) {
	testlog.Start(t)

	cfg := testConfig()
	cfg.ReceiveTimeout = 10 * time.Millisecond
	lines := Loopback()
	lines.TxD = pins.NewLine(pins.Mark)
	m := New(cfg, lines, &spinTimer{})
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()

	if _, err := m.Receive(context.Background()); !errors.Is(err, engine.ErrReceiveTimeout) {
		t.Fatalf("expected receive timeout, got %v", err)
	}
	n, state, _ := m.ReceiveProgress()
	if n != 0 || state != engine.RecvOutOfSync.String() {
		t.Fatalf("unexpected progress: %d %s", n, state)
	}
}

func TestSendRejectsOversizeAndEmpty(t *testing.T) {
	testlog.Start(t)

	cfg := testConfig()
	cfg.BufferCapacity = 8
	m, _ := startLoopback(t, cfg)

	if _, err := m.Send(context.Background(), nil); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("expected ErrEmptyFrame, got %v", err)
	}
	if _, err := m.Send(context.Background(), make([]byte, 32)); err == nil {
		t.Fatalf("expected queue overflow error")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	testlog.Start(t)

	m := New(Config{}, Lines{}, nil)
	cfg := m.Config()
	def := DefaultConfig()
	if cfg.BitRate != def.BitRate || cfg.BufferCapacity != def.BufferCapacity || cfg.ReceiveTimeout != def.ReceiveTimeout {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}
