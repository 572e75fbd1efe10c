package databuf

import (
	"fmt"
	"strings"
)

// Snapshot is a read-only copy of a completed frame. It shares nothing with
// the buffer it was taken from.
type Snapshot struct {
	data []byte
}

func NewSnapshot(data []byte) *Snapshot {
	cp := make([]byte, len(data))
	copy(cp, data)
	return &Snapshot{data: cp}
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.data)
}

func (s *Snapshot) Get(idx int) (byte, error) {
	if s == nil || idx < 0 || idx >= len(s.data) {
		return 0, ErrOutOfRange
	}
	return s.data[idx], nil
}

// Bytes returns a copy of the frame contents.
func (s *Snapshot) Bytes() []byte {
	if s == nil {
		return nil
	}
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out
}

// String renders the frame as space separated 0xNN tokens.
func (s *Snapshot) String() string {
	if s == nil {
		return ""
	}
	var sb strings.Builder
	for i, b := range s.data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "0x%02X", b)
	}
	return sb.String()
}
