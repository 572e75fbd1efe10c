package databuf

import (
	"errors"
	"testing"

	"github.com/danmuck/bscdce/internal/testutil/testlog"
)

func TestWriteFillsToCapacityMinusOne(t *testing.T) {
	testlog.Start(t)

	b := New(DefaultCapacity)
	for i := 1; i < DefaultCapacity; i++ {
		n, err := b.Write(byte(i))
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if n != i {
			t.Fatalf("write %d returned %d", i, n)
		}
	}
	if _, err := b.Write(0xAA); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	if b.Len() != DefaultCapacity-1 {
		t.Fatalf("length changed on rejected write: %d", b.Len())
	}
}

func TestReadIsSequentialAndDestructive(t *testing.T) {
	testlog.Start(t)

	b := New(8)
	if _, _, err := b.Read(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty on empty buffer, got %v", err)
	}
	for _, v := range []byte{0x10, 0x20, 0x30} {
		if _, err := b.Write(v); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for i, want := range []byte{0x10, 0x20, 0x30} {
		v, pos, err := b.Read()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if v != want || pos != i {
			t.Fatalf("read %d: got 0x%02X at %d", i, v, pos)
		}
	}
	if _, _, err := b.Read(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty past end, got %v", err)
	}
	if b.Pos() != 3 {
		t.Fatalf("unexpected pos: %d", b.Pos())
	}
}

func TestGetAndReadLast(t *testing.T) {
	testlog.Start(t)

	b := New(8)
	if _, err := b.ReadLast(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	_, _ = b.Write(0x01)
	_, _ = b.Write(0x02)

	if v, err := b.Get(1); err != nil || v != 0x02 {
		t.Fatalf("get(1): 0x%02X %v", v, err)
	}
	if _, err := b.Get(2); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := b.Get(-1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for negative index, got %v", err)
	}
	if v, err := b.ReadLast(); err != nil || v != 0x02 {
		t.Fatalf("readLast: 0x%02X %v", v, err)
	}
	if b.Pos() != 0 {
		t.Fatalf("get/readLast moved the cursor: %d", b.Pos())
	}
}

func TestCompleteRequiresData(t *testing.T) {
	testlog.Start(t)

	b := New(4)
	if b.SetComplete() {
		t.Fatalf("empty buffer must not become complete")
	}
	_, _ = b.Write(0x37)
	if !b.SetComplete() || !b.IsComplete() {
		t.Fatalf("expected complete flag")
	}
	b.Clear()
	if b.IsComplete() || b.Len() != 0 || b.Pos() != 0 {
		t.Fatalf("clear did not reset state: len=%d pos=%d complete=%v", b.Len(), b.Pos(), b.IsComplete())
	}
	if b.Cap() != 4 {
		t.Fatalf("clear changed capacity: %d", b.Cap())
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	testlog.Start(t)

	b := New(8)
	_, _ = b.Write(0x32)
	_, _ = b.Write(0x02)
	snap := b.Snapshot()

	b.Clear()
	_, _ = b.Write(0xFF)

	if snap.Len() != 2 {
		t.Fatalf("unexpected snapshot length: %d", snap.Len())
	}
	if v, _ := snap.Get(0); v != 0x32 {
		t.Fatalf("snapshot mutated by buffer reuse: 0x%02X", v)
	}
	out := snap.Bytes()
	out[0] = 0
	if v, _ := snap.Get(0); v != 0x32 {
		t.Fatalf("Bytes must return a copy")
	}
	if snap.String() != "0x32 0x02" {
		t.Fatalf("unexpected string: %q", snap.String())
	}
	var empty *Snapshot
	if empty.Len() != 0 || empty.Bytes() != nil {
		t.Fatalf("nil snapshot must behave as empty")
	}
}
