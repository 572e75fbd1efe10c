// Package databuf provides the fixed-capacity byte arena the line engines
// operate on and the immutable snapshots handed to consumers.
package databuf

import (
	"errors"
	"sync/atomic"
)

// DefaultCapacity matches the frame size the attached terminals produce.
const DefaultCapacity = 300

var (
	ErrFull       = errors.New("databuf: buffer full")
	ErrEmpty      = errors.New("databuf: no data available")
	ErrOutOfRange = errors.New("databuf: index out of range")
)

// Buffer is an append-only byte sequence with a sequential read cursor and a
// completion flag. The last slot is never used.
//
// One goroutine writes and one goroutine reads. Length and cursor are atomics
// so a byte stored before the length is published is visible to the reader.
type Buffer struct {
	data     []byte
	len      atomic.Int32
	pos      atomic.Int32
	complete atomic.Bool
}

// New allocates a buffer of the given capacity. Capacities below 2 leave no
// usable slot and are raised to 2.
func New(capacity int) *Buffer {
	if capacity < 2 {
		capacity = 2
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Clear resets length, cursor and completion without reallocating.
func (b *Buffer) Clear() {
	b.complete.Store(false)
	b.len.Store(0)
	b.pos.Store(0)
}

// Write appends one byte and returns the new length.
func (b *Buffer) Write(v byte) (int, error) {
	n := int(b.len.Load())
	if n >= len(b.data)-1 {
		return n, ErrFull
	}
	b.data[n] = v
	b.len.Store(int32(n + 1))
	return n + 1, nil
}

// Read returns the byte at the cursor and the position it was read from, then
// advances the cursor.
func (b *Buffer) Read() (byte, int, error) {
	n := b.len.Load()
	p := b.pos.Load()
	if n == 0 || p >= n {
		return 0, int(p), ErrEmpty
	}
	v := b.data[p]
	b.pos.Store(p + 1)
	return v, int(p), nil
}

// Get returns the byte at idx without moving the cursor.
func (b *Buffer) Get(idx int) (byte, error) {
	if idx < 0 || idx >= int(b.len.Load()) {
		return 0, ErrOutOfRange
	}
	return b.data[idx], nil
}

// ReadLast returns the most recently written byte.
func (b *Buffer) ReadLast() (byte, error) {
	n := b.len.Load()
	if n == 0 {
		return 0, ErrEmpty
	}
	return b.data[n-1], nil
}

func (b *Buffer) Len() int {
	return int(b.len.Load())
}

func (b *Buffer) Pos() int {
	return int(b.pos.Load())
}

func (b *Buffer) Cap() int {
	return len(b.data)
}

// SetComplete marks the buffer complete when it holds data and reports the
// resulting flag.
func (b *Buffer) SetComplete() bool {
	if b.len.Load() > 0 {
		b.complete.Store(true)
	}
	return b.complete.Load()
}

func (b *Buffer) IsComplete() bool {
	return b.complete.Load()
}

// Snapshot copies the current contents into an independent Snapshot.
func (b *Buffer) Snapshot() *Snapshot {
	n := b.len.Load()
	return NewSnapshot(b.data[:n])
}
