package hostlink

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownMode = errors.New("hostlink: unknown mode")

// Device is the modem as seen by the host link.
type Device interface {
	// Send transmits frame as-is and returns the bytes left unsent.
	Send(ctx context.Context, frame []byte) (int, error)
	// Receive waits for the next complete frame.
	Receive(ctx context.Context) ([]byte, error)
	Reset(ctx context.Context) error
	// ReceiveProgress describes the partial frame after a timeout.
	ReceiveProgress() (length int, state string, bits byte)
}

type Mode int

const (
	ModeBinary Mode = iota + 1
	ModeText
)

func (m Mode) String() string {
	switch m {
	case ModeBinary:
		return "binary"
	case ModeText:
		return "text"
	default:
		return "unknown"
	}
}

func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "binary", "bin", "":
		return ModeBinary, nil
	case "text", "txt":
		return ModeText, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, raw)
	}
}

// Processor handles one command per Process call.
type Processor interface {
	Process(ctx context.Context) error
	Mode() Mode
	// SwitchRequested reports a pending change of command mode.
	SwitchRequested() (Mode, bool)
	SetDebug(on bool)
	Debug() bool
}
