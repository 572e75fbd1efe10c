package hostlink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/danmuck/bscdce/internal/bsc"
	"github.com/danmuck/bscdce/internal/engine"
	"github.com/danmuck/bscdce/internal/observability"
	"github.com/rs/zerolog/log"
)

const maxCommandLine = 80

// Addresses are the station addresses used by POLL and WRITE.
type Addresses struct {
	Poll   byte
	Select byte
	Device byte
}

func DefaultAddresses() Addresses {
	return Addresses{Poll: 0x40, Select: 0x60, Device: 0x40}
}

// eraseWriteHello is a 3270 Erase/Write that clears the screen and puts
// HELLO WORLD in a protected field at the top left.
var eraseWriteHello = []byte{
	0x27, 0xF5, 0x42, // ESC EW WCC
	0x11, 0x40, 0x40, // SBA 0,0
	0x1D, 0x60, // SF
	0xC8, 0xC5, 0xD3, 0xD3, 0xD6, 0x40, 0xE6, 0xD6, 0xD9, 0xD3, 0xC4, 0x40, 0x40,
	0x13, // IC
}

var errLineTooLong = errors.New("hostlink: command line too long")

// Text is the interactive terminal shell.
type Text struct {
	r     *bufio.Reader
	w     io.Writer
	dev   Device
	debug bool
	addr  Addresses

	// pause separates select, write and read in WRITE.
	pause time.Duration

	switchTo Mode
}

func NewText(r *bufio.Reader, w io.Writer, dev Device, debug bool) *Text {
	return &Text{
		r:     r,
		w:     w,
		dev:   dev,
		debug: debug,
		addr:  DefaultAddresses(),
		pause: 50 * time.Millisecond,
	}
}

func (t *Text) Mode() Mode { return ModeText }

func (t *Text) SetDebug(on bool) { t.debug = on }

func (t *Text) Debug() bool { return t.debug }

func (t *Text) SwitchRequested() (Mode, bool) {
	return t.switchTo, t.switchTo != 0
}

func (t *Text) Addresses() Addresses {
	return t.addr
}

// Process prompts, reads one line and runs it.
func (t *Text) Process(ctx context.Context) error {
	if err := t.print("> "); err != nil {
		return err
	}
	line, err := t.readLine()
	if errors.Is(err, errLineTooLong) {
		return t.println("ERROR: Command too long.")
	}
	if err != nil {
		return err
	}

	fields := strings.FieldsFunc(line, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) == 0 {
		return nil
	}
	name, args := fields[0], fields[1:]
	t.debugf("Command is '%s'", name)

	start := time.Now()
	status, err := t.execute(ctx, name, args)
	observability.RecordHostCommand(ModeText.String(), strings.ToLower(name), status, time.Since(start))
	log.Debug().Str("cmd", name).Strs("args", args).Str("status", status).Msg("host command")
	return err
}

// readLine collects one upper-cased line. CR is ignored and backspace
// removes the previous character.
func (t *Text) readLine() (string, error) {
	buf := make([]byte, 0, maxCommandLine)
	for {
		c, err := t.r.ReadByte()
		if err != nil {
			return "", err
		}
		switch c {
		case '\r':
		case '\n':
			return string(buf), nil
		case '\b', 0x7F:
			if len(buf) > 0 {
				buf = buf[:len(buf)-1]
			}
		default:
			if len(buf) >= maxCommandLine-1 {
				t.discardLine()
				return "", errLineTooLong
			}
			buf = append(buf, toUpper(c))
		}
	}
}

func (t *Text) discardLine() {
	for {
		c, err := t.r.ReadByte()
		if err != nil || c == '\n' {
			return
		}
	}
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

func (t *Text) execute(ctx context.Context, name string, args []string) (string, error) {
	switch name {
	case "DEBUG":
		v, ok, err := t.hexArg(args, 0)
		if err != nil || !ok {
			return "error", err
		}
		t.debug = v != 0
		return "ok", nil

	case "ADDR":
		var vals [3]int
		for i := range vals {
			v, ok, err := t.hexArg(args, i)
			if err != nil || !ok {
				return "error", err
			}
			vals[i] = v
		}
		t.addr = Addresses{Poll: byte(vals[0]), Select: byte(vals[1]), Device: byte(vals[2])}
		return "ok", nil

	case "POLL":
		steps := []outbound{
			{bsc.LineReset(), "Sent EOT to tributary stations"},
			{bsc.Poll(t.addr.Poll, t.addr.Device), "Sent poll to specific station/device"},
		}
		if ok, err := t.sendAll(ctx, steps); !ok || err != nil {
			return "error", err
		}
		return t.read(ctx)

	case "WRITE":
		steps := []outbound{
			{bsc.LineReset(), "Sent EOT to tributary stations"},
			{bsc.Select(t.addr.Select, t.addr.Device), "Sent select to station/device"},
		}
		if ok, err := t.sendAll(ctx, steps); !ok || err != nil {
			return "error", err
		}
		if err := sleepCtx(ctx, t.pause); err != nil {
			return "error", err
		}
		block := bsc.TransparentBlock(eraseWriteHello, bsc.ETX)
		if ok, err := t.send(ctx, block, "Sent EW / HELLO WORLD to station/device"); !ok || err != nil {
			return "error", err
		}
		status, err := t.read(ctx)
		if err != nil {
			return status, err
		}
		return status, sleepCtx(ctx, t.pause)

	case "MEM":
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return "ok", t.println(fmt.Sprintf("Memory has %d bytes in use, %d bytes reserved.", ms.HeapAlloc, ms.Sys))

	case "RESET":
		if err := t.println("Starting RESET."); err != nil {
			return "error", err
		}
		if err := t.dev.Reset(ctx); err != nil {
			return "error", t.println("ERROR: " + err.Error())
		}
		return "ok", t.println("RESET complete.")

	case "BIN":
		t.switchTo = ModeBinary
		t.debugf("BIN command processed ... mode will be changed")
		return "ok", nil

	case "HELP", "?":
		return "ok", t.print(strings.Join([]string{
			"Commands are --",
			"ADDR hex-addr-poll,hex-addr-select,hex-dev-addr",
			"DEBUG 0|1",
			"POLL",
			"WRITE",
			"RESET",
			"MEM",
			"BIN",
			"",
		}, "\r\n"))

	default:
		return "unknown", t.println("ERROR: Invalid command.")
	}
}

// hexArg parses args[i] as hex. Spaces and an x marker are skipped, so 40,
// 0x40 and 0X40 are equal. ok is false when the argument was reported bad.
func (t *Text) hexArg(args []string, i int) (int, bool, error) {
	if i >= len(args) {
		return 0, false, t.println("ERROR: Missing parameter in command.")
	}
	raw := args[i]
	v := 0
	for j := 0; j < len(raw); j++ {
		c := raw[j]
		var digit int
		switch {
		case c == ' ' || c == 'x' || c == 'X':
			continue
		case c >= '0' && c <= '9':
			digit = int(c - '0')
		case c >= 'A' && c <= 'F':
			digit = int(c-'A') + 10
		case c >= 'a' && c <= 'f':
			digit = int(c-'a') + 10
		default:
			return 0, false, t.println(fmt.Sprintf("ERROR: Invalid parameter in command - '%s'", raw))
		}
		v = v*16 + digit
	}
	t.debugf("Returning param value of %d for string - %s", v, raw)
	return v, true, nil
}

// send transmits frame and reports the outcome on the terminal. The error is
// only set when the terminal itself failed.
func (t *Text) send(ctx context.Context, frame []byte, done string) (bool, error) {
	if _, err := t.dev.Send(ctx, frame); err != nil {
		log.Warn().Err(err).Msg("text command send failed")
		return false, t.println("ERROR: " + err.Error())
	}
	return true, t.println(done)
}

type outbound struct {
	frame []byte
	done  string
}

func (t *Text) sendAll(ctx context.Context, steps []outbound) (bool, error) {
	for _, s := range steps {
		if ok, err := t.send(ctx, s.frame, s.done); !ok || err != nil {
			return false, err
		}
	}
	return true, nil
}

func (t *Text) read(ctx context.Context) (string, error) {
	t.debugf("Reading response ...")
	frame, err := t.dev.Receive(ctx)
	if errors.Is(err, engine.ErrReceiveTimeout) {
		n, state, bits := t.dev.ReceiveProgress()
		return "timeout", t.print(fmt.Sprintf(
			"Error: Timeout. We have %d bytes of data received, receive state is %s\r\n"+
				"Error: bit buffer = %08b\r\n"+
				"Error: Response timeout\r\n",
			n, state, bits))
	}
	if err != nil {
		return "error", t.println("ERROR: " + err.Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Response received, \r\n%d bytes of received data follows ...\r\n", len(frame))
	for _, b := range frame {
		fmt.Fprintf(&sb, "0x%02X ", b)
	}
	sb.WriteString("**END**\r\n")
	return "ok", t.print(sb.String())
}

func (t *Text) debugf(format string, args ...any) {
	if !t.debug {
		return
	}
	_ = t.println("DEBUG: " + fmt.Sprintf(format, args...))
}

func (t *Text) print(s string) error {
	_, err := io.WriteString(t.w, s)
	return err
}

func (t *Text) println(s string) error {
	return t.print(s + "\r\n")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
