package sequencer

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrTimerRunning  = errors.New("sequencer: timer already running")
	ErrInvalidPeriod = errors.New("sequencer: period must be positive")
)

// Timer calls fn every period until stopped.
type Timer interface {
	Start(period time.Duration, fn func()) error
	Stop()
}

// TickerTimer is a Timer backed by one goroutine and a time.Ticker. Callbacks
// never overlap.
type TickerTimer struct {
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewTickerTimer() *TickerTimer {
	return &TickerTimer{}
}

func (t *TickerTimer) Start(period time.Duration, fn func()) error {
	if period <= 0 {
		return ErrInvalidPeriod
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return ErrTimerRunning
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop, t.done = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return nil
}

// Stop halts the timer and waits for an in-flight callback to return.
func (t *TickerTimer) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Run registers s.Tick on timer at the rate for bitRate and stops the timer
// when ctx ends. The returned channel is closed once the timer has stopped.
func Run(ctx context.Context, timer Timer, s *Sequencer, bitRate int) (<-chan struct{}, error) {
	if err := timer.Start(Period(bitRate), s.Tick); err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		timer.Stop()
	}()
	return done, nil
}
