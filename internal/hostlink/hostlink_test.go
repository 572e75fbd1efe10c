package hostlink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/danmuck/bscdce/internal/engine"
)

type fakeDevice struct {
	sent     [][]byte
	frames   [][]byte
	sendErr  error
	resets   int
	resetErr error
}

func (d *fakeDevice) Send(_ context.Context, frame []byte) (int, error) {
	if d.sendErr != nil {
		return 0, d.sendErr
	}
	d.sent = append(d.sent, append([]byte(nil), frame...))
	return 0, nil
}

func (d *fakeDevice) Receive(context.Context) ([]byte, error) {
	if len(d.frames) == 0 {
		return nil, fmt.Errorf("fake: %w", engine.ErrReceiveTimeout)
	}
	f := d.frames[0]
	d.frames = d.frames[1:]
	return f, nil
}

func (d *fakeDevice) Reset(context.Context) error {
	d.resets++
	return d.resetErr
}

func (d *fakeDevice) ReceiveProgress() (int, string, byte) {
	return 3, "data", 0x32
}

// stream is a host connection: in holds what the host sends, out collects
// what the modem answers.
type stream struct {
	in  *bytes.Reader
	out bytes.Buffer
}

func newStream(in []byte) *stream {
	return &stream{in: bytes.NewReader(in)}
}

func (s *stream) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *stream) Write(p []byte) (int, error) { return s.out.Write(p) }

func command(cmd byte, data ...byte) []byte {
	out := []byte{cmd, 0, 0}
	binary.BigEndian.PutUint16(out[1:], uint16(len(data)))
	return append(out, data...)
}

type response struct {
	code byte
	data []byte
}

func parseResponses(t *testing.T, raw []byte) []response {
	t.Helper()
	var out []response
	r := bytes.NewReader(raw)
	for r.Len() > 0 {
		var hdr [3]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			t.Fatalf("short response header: %v", err)
		}
		data := make([]byte, binary.BigEndian.Uint16(hdr[1:]))
		if _, err := io.ReadFull(r, data); err != nil {
			t.Fatalf("short response data: %v", err)
		}
		out = append(out, response{code: hdr[0], data: data})
	}
	return out
}

// final is the response that ends a command; debug messages come before it.
func final(t *testing.T, rs []response) response {
	t.Helper()
	if len(rs) == 0 {
		t.Fatalf("no responses")
	}
	return rs[len(rs)-1]
}

func bufioReader(r io.Reader) *bufio.Reader {
	return bufio.NewReader(r)
}

func runBinary(t *testing.T, dev Device, debug bool, in []byte) ([]response, *Binary) {
	t.Helper()
	s := newStream(in)
	b := NewBinary(bufio.NewReader(s), s, dev, debug)
	for {
		err := b.Process(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	return parseResponses(t, s.out.Bytes()), b
}
