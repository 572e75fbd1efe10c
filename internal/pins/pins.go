// Package pins describes the line capabilities the modem needs from the board.
//
// Ownership boundary:
// - boolean input / output line contracts
// - active-low signal handling for the RS-232 control lines
// - in-memory lines for loopback and tests
// - periph.io GPIO backend
package pins

import "sync/atomic"

// Input reads the current level of one line.
type Input interface {
	Get() bool
}

// Output drives one line.
type Output interface {
	Set(high bool)
}

// Mark is the idle level of a data line.
const Mark = true

// Signal is a control line that may be wired active low.
type Signal struct {
	Out       Output
	ActiveLow bool
	asserted  atomic.Bool
}

func NewSignal(out Output, activeLow bool) *Signal {
	return &Signal{Out: out, ActiveLow: activeLow}
}

func (s *Signal) Assert() {
	s.asserted.Store(true)
	s.Out.Set(!s.ActiveLow)
}

func (s *Signal) Deassert() {
	s.asserted.Store(false)
	s.Out.Set(s.ActiveLow)
}

func (s *Signal) Asserted() bool {
	return s.asserted.Load()
}

// Line is an in-memory wire. It satisfies both Input and Output, so one Line
// shared by the send and receive data pins loops the modem back on itself.
type Line struct {
	level   atomic.Bool
	changes atomic.Uint64
}

func NewLine(level bool) *Line {
	l := &Line{}
	l.level.Store(level)
	return l
}

func (l *Line) Get() bool {
	return l.level.Load()
}

func (l *Line) Set(high bool) {
	if l.level.Swap(high) != high {
		l.changes.Add(1)
	}
}

// Changes counts level transitions since creation.
func (l *Line) Changes() uint64 {
	return l.changes.Load()
}

// Discard is an Output that drops every write.
type Discard struct{}

func (Discard) Set(bool) {}
