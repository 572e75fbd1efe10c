package sequencer

import (
	"sync/atomic"
	"time"

	"github.com/danmuck/bscdce/internal/pins"
)

// PhasesPerBit is the number of ticks in one bit period.
const PhasesPerBit = 4

// BitSender is driven once per bit at the start of the period.
type BitSender interface {
	SendBit()
}

// BitReceiver samples mid-period.
type BitReceiver interface {
	SampleBit()
	ProcessBit()
}

// Sequencer runs the send and receive engines in lockstep. Tick must only be
// called from one goroutine.
type Sequencer struct {
	send   BitSender
	recv   BitReceiver
	clocks []pins.Output

	phase atomic.Int32
	ticks atomic.Uint64
}

// New builds a sequencer. clocks are the transmit and receive clock lines;
// they rise on phase 1 and fall on phase 3.
func New(send BitSender, recv BitReceiver, clocks ...pins.Output) *Sequencer {
	s := &Sequencer{send: send, recv: recv, clocks: clocks}
	s.setClocks(false)
	return s
}

// Tick advances one phase.
func (s *Sequencer) Tick() {
	s.ticks.Add(1)
	switch s.phase.Load() {
	case 0:
		s.send.SendBit()
		s.phase.Store(1)
	case 1:
		s.setClocks(true)
		s.phase.Store(2)
	case 2:
		s.recv.SampleBit()
		s.recv.ProcessBit()
		s.phase.Store(3)
	default:
		s.setClocks(false)
		s.phase.Store(0)
	}
}

func (s *Sequencer) setClocks(high bool) {
	for _, c := range s.clocks {
		c.Set(high)
	}
}

// Phase is the phase the next Tick will run.
func (s *Sequencer) Phase() int {
	return int(s.phase.Load())
}

// Ticks counts Tick invocations.
func (s *Sequencer) Ticks() uint64 {
	return s.ticks.Load()
}

// Period is the tick interval for bitRate bits per second.
func Period(bitRate int) time.Duration {
	if bitRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(bitRate*PhasesPerBit)
}
