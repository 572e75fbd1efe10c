package hostlink

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/danmuck/bscdce/internal/bsc"
	"github.com/danmuck/bscdce/internal/engine"
	"github.com/danmuck/bscdce/internal/observability"
	"github.com/rs/zerolog/log"
)

// Command codes. A response echoes the code with RespBit set.
const (
	CmdWrite     byte = 0x01
	CmdRead      byte = 0x02
	CmdWriteRead byte = 0x03
	CmdDebug     byte = 0x09
	CmdReset     byte = 0x0F
	CmdTextMode  byte = '0'

	RespBit    byte = 0x80
	ErrorBit   byte = 0x40
	TimeoutBit byte = 0x10

	// RespMemory carries a two byte heap figure in KiB after DEBUG.
	RespMemory byte = 0x8C
)

func commandName(cmd byte) string {
	switch cmd {
	case CmdWrite:
		return "write"
	case CmdRead:
		return "read"
	case CmdWriteRead:
		return "write_read"
	case CmdDebug:
		return "debug"
	case CmdReset:
		return "reset"
	case CmdTextMode:
		return "textmode"
	default:
		return "unknown"
	}
}

// Binary speaks the framed protocol: a command byte and a big-endian length,
// followed by that many data bytes. Responses use the same layout.
type Binary struct {
	r     *bufio.Reader
	w     io.Writer
	dev   Device
	debug bool

	switchTo Mode
}

func NewBinary(r *bufio.Reader, w io.Writer, dev Device, debug bool) *Binary {
	return &Binary{r: r, w: w, dev: dev, debug: debug}
}

func (b *Binary) Mode() Mode { return ModeBinary }

func (b *Binary) SetDebug(on bool) { b.debug = on }

func (b *Binary) Debug() bool { return b.debug }

func (b *Binary) SwitchRequested() (Mode, bool) {
	return b.switchTo, b.switchTo != 0
}

// Process reads and executes one command. Only stream errors are returned;
// command failures are reported to the host in the response code.
func (b *Binary) Process(ctx context.Context) error {
	var hdr [3]byte
	if _, err := io.ReadFull(b.r, hdr[:]); err != nil {
		return err
	}
	cmd := hdr[0]
	data := make([]byte, binary.BigEndian.Uint16(hdr[1:]))
	if _, err := io.ReadFull(b.r, data); err != nil {
		return fmt.Errorf("hostlink: read %d data bytes for 0x%02X: %w", len(data), cmd, err)
	}

	start := time.Now()
	status, err := b.execute(ctx, cmd, data)
	observability.RecordHostCommand(ModeBinary.String(), commandName(cmd), status, time.Since(start))
	log.Debug().
		Str("cmd", commandName(cmd)).
		Int("data_len", len(data)).
		Str("status", status).
		Msg("host command")
	return err
}

func (b *Binary) execute(ctx context.Context, cmd byte, data []byte) (string, error) {
	switch cmd {
	case CmdReset:
		if err := b.dev.Reset(ctx); err != nil {
			return "error", b.fail(cmd, err)
		}
		if err := b.sendDebug("RESET command completed"); err != nil {
			return "ok", err
		}
		return "ok", b.respond(RespBit|CmdReset, nil)

	case CmdDebug:
		b.debug = len(data) > 0 && data[0] != 0
		if err := b.sendDebug("DEBUG command completed"); err != nil {
			return "ok", err
		}
		if err := b.respond(RespMemory, heapKiB()); err != nil {
			return "ok", err
		}
		return "ok", b.respond(RespBit|CmdDebug, nil)

	case CmdTextMode:
		b.switchTo = ModeText
		if err := b.sendDebug("TEXTMODE command processed ... mode will be changed"); err != nil {
			return "ok", err
		}
		return "ok", b.respond(RespBit|CmdTextMode, nil)

	case CmdWrite:
		if err := b.write(ctx, cmd, data); err != nil {
			return "error", b.fail(cmd, err)
		}
		return "ok", b.respond(RespBit|CmdWrite, nil)

	case CmdWriteRead:
		if err := b.write(ctx, cmd, data); err != nil {
			return "error", b.fail(cmd, err)
		}
		return b.read(ctx, cmd)

	case CmdRead:
		return b.read(ctx, cmd)

	default:
		if err := b.sendDebug(fmt.Sprintf("Unrecognized command code %d", cmd)); err != nil {
			return "unknown", err
		}
		return "unknown", b.respond(RespBit|ErrorBit|cmd, nil)
	}
}

func (b *Binary) write(ctx context.Context, cmd byte, data []byte) error {
	remaining, err := b.dev.Send(ctx, bsc.Envelope(data))
	if err != nil {
		return err
	}
	return b.sendDebug(fmt.Sprintf("%s command completed with %d bytes of data remaining to be sent",
		commandLabel(cmd), remaining))
}

func (b *Binary) read(ctx context.Context, cmd byte) (string, error) {
	if err := b.sendDebug("Reading response ..."); err != nil {
		return "ok", err
	}
	frame, err := b.dev.Receive(ctx)
	switch {
	case errors.Is(err, engine.ErrReceiveTimeout):
		return "timeout", b.respond(RespBit|TimeoutBit|cmd, nil)
	case err != nil:
		return "error", b.fail(cmd, err)
	}
	return "ok", b.respond(RespBit|cmd, frame)
}

// fail reports err to the host as a debug message and an error response.
func (b *Binary) fail(cmd byte, err error) error {
	log.Warn().Err(err).Str("cmd", commandName(cmd)).Msg("host command failed")
	if werr := b.sendDebug(err.Error()); werr != nil {
		return werr
	}
	return b.respond(RespBit|ErrorBit|cmd, nil)
}

func (b *Binary) sendDebug(msg string) error {
	if !b.debug {
		return nil
	}
	return b.respond(RespBit|CmdDebug, []byte(msg))
}

func (b *Binary) respond(code byte, data []byte) error {
	if len(data) > 0xFFFF {
		data = data[:0xFFFF]
	}
	out := make([]byte, 3, 3+len(data))
	out[0] = code
	binary.BigEndian.PutUint16(out[1:], uint16(len(data)))
	out = append(out, data...)
	_, err := b.w.Write(out)
	return err
}

func commandLabel(cmd byte) string {
	if cmd == CmdWriteRead {
		return "WRITE_READ"
	}
	return "WRITE"
}

func heapKiB() []byte {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	kib := ms.HeapAlloc / 1024
	if kib > 0xFFFF {
		kib = 0xFFFF
	}
	return []byte{byte(kib >> 8), byte(kib)}
}
