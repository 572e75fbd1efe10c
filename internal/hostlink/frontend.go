package hostlink

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog/log"
)

// Options select the starting state of a FrontEnd.
type Options struct {
	Mode  Mode
	Debug bool
}

// FrontEnd owns the active processor for one host stream and swaps it when
// the host asks for the other command mode. Both processors share one
// buffered reader so no input is lost across a switch.
type FrontEnd struct {
	r      *bufio.Reader
	w      io.Writer
	dev    Device
	debug  bool
	active Processor
}

func NewFrontEnd(rw io.ReadWriter, dev Device, opts Options) *FrontEnd {
	f := &FrontEnd{
		r:     bufio.NewReader(rw),
		w:     rw,
		dev:   dev,
		debug: opts.Debug,
	}
	mode := opts.Mode
	if mode == 0 {
		mode = ModeBinary
	}
	f.active = f.build(mode)
	return f
}

func (f *FrontEnd) build(mode Mode) Processor {
	if mode == ModeText {
		return NewText(f.r, f.w, f.dev, f.debug)
	}
	return NewBinary(f.r, f.w, f.dev, f.debug)
}

func (f *FrontEnd) Mode() Mode {
	return f.active.Mode()
}

// SetDebug changes the debug flag of the active processor and of any
// processor created by a later switch.
func (f *FrontEnd) SetDebug(on bool) {
	f.debug = on
	f.active.SetDebug(on)
}

// Debug reports the debug flag of the active processor, which the host may
// have toggled.
func (f *FrontEnd) Debug() bool {
	return f.active.Debug()
}

// Process runs one command on the active processor, then applies any
// requested mode switch. The new processor inherits the current debug flag.
func (f *FrontEnd) Process(ctx context.Context) error {
	err := f.active.Process(ctx)
	if next, ok := f.active.SwitchRequested(); ok && next != f.active.Mode() {
		log.Info().Str("from", f.active.Mode().String()).Str("to", next.String()).Msg("host link mode switch")
		f.debug = f.active.Debug()
		f.active = f.build(next)
	}
	return err
}

// Serve processes commands until the stream ends or ctx is done. A clean end
// of stream returns nil.
func (f *FrontEnd) Serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.Process(ctx); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}
