package bytebuf_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/kaoqibutaitou/aoa-port-forward/bytebuf"
)

func ExampleBuffer_Flip() {
	b := bytebuf.Allocate(8)
	src := bytebuf.Wrap([]byte{1, 2, 3})
	b.Put(src)
	b.Flip()
	fmt.Println(b.Position(), b.Limit(), b.Remaining())
	// Output: 0 3 3
}

func ExampleBuffer_GetShort() {
	b := bytebuf.Wrap([]byte{0x01, 0x02})
	fmt.Println(b.GetShort())
	// Output: 258
}

func TestWrapCursors(t *testing.T) {
	b := bytebuf.Wrap([]byte{1, 2, 3, 4})
	if b.Position() != 0 || b.Limit() != 4 || b.Capacity() != 4 {
		t.Errorf("wrap cursors wrong: pos %d limit %d cap %d", b.Position(), b.Limit(), b.Capacity())
	}
	if b.Remaining() != 4 || !b.HasRemaining() {
		t.Error("expected 4 remaining")
	}
}

func TestGetShortGetInt(t *testing.T) {
	b := bytebuf.Wrap([]byte{0x12, 0x34, 0xDE, 0xAD, 0xBE, 0xEF})
	if v := b.GetShort(); v != 0x1234 {
		t.Errorf("GetShort = %#x, want 0x1234", v)
	}
	if v := b.GetInt(); v != 0xDEADBEEF {
		t.Errorf("GetInt = %#x, want 0xDEADBEEF", v)
	}
	if b.HasRemaining() {
		t.Error("expected buffer exhausted")
	}
}

func TestGetBytesAdvances(t *testing.T) {
	b := bytebuf.Wrap([]byte{1, 2, 3, 4, 5})
	got := b.GetBytes(3)
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("GetBytes = %v", got)
	}
	if b.Position() != 3 {
		t.Errorf("position = %d, want 3", b.Position())
	}
}

func TestGetPastLimitPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic reading past limit")
		}
	}()
	b := bytebuf.Wrap([]byte{1})
	b.GetShort()
}

func TestPutAdvancesBoth(t *testing.T) {
	dst := bytebuf.Allocate(8)
	src := bytebuf.Wrap([]byte{9, 8, 7})
	dst.Put(src)
	if dst.Position() != 3 || src.Remaining() != 0 {
		t.Errorf("put cursors: dst pos %d src rem %d", dst.Position(), src.Remaining())
	}
}

func TestPutOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on put overflow")
		}
	}()
	dst := bytebuf.Allocate(2)
	dst.Put(bytebuf.Wrap([]byte{1, 2, 3}))
}

func TestFillPartial(t *testing.T) {
	dst := bytebuf.Allocate(2)
	src := bytebuf.Wrap([]byte{1, 2, 3, 4})
	n := dst.Fill(src)
	if n != 2 {
		t.Errorf("Fill copied %d, want 2", n)
	}
	if src.Position() != 2 || dst.Remaining() != 0 {
		t.Errorf("fill cursors: src pos %d dst rem %d", src.Position(), dst.Remaining())
	}
	dst.Flip()
	if !bytes.Equal(dst.Bytes(), []byte{1, 2}) {
		t.Errorf("fill contents: %v", dst.Bytes())
	}
}

func TestFillDrainsShortSource(t *testing.T) {
	dst := bytebuf.Allocate(8)
	src := bytebuf.Wrap([]byte{5})
	if n := dst.Fill(src); n != 1 {
		t.Errorf("Fill copied %d, want 1", n)
	}
	if src.HasRemaining() {
		t.Error("source should be drained")
	}
}

func TestClearAndFlip(t *testing.T) {
	b := bytebuf.Allocate(4)
	b.Put(bytebuf.Wrap([]byte{1, 2}))
	b.Flip()
	if b.Position() != 0 || b.Limit() != 2 {
		t.Errorf("flip cursors: pos %d limit %d", b.Position(), b.Limit())
	}
	b.Clear()
	if b.Position() != 0 || b.Limit() != 4 {
		t.Errorf("clear cursors: pos %d limit %d", b.Position(), b.Limit())
	}
}

func TestCompact(t *testing.T) {
	b := bytebuf.Wrap([]byte{1, 2, 3, 4})
	b.GetBytes(2)
	b.Compact()
	if b.Position() != 2 || b.Limit() != 4 {
		t.Errorf("compact cursors: pos %d limit %d", b.Position(), b.Limit())
	}
	b.Flip()
	if !bytes.Equal(b.Bytes(), []byte{3, 4}) {
		t.Errorf("compact contents: %v", b.Bytes())
	}
}

func TestDuplicateIndependentCursors(t *testing.T) {
	b := bytebuf.Wrap([]byte{1, 2, 3, 4})
	d := b.Duplicate()
	d.SetLimit(2)
	d.GetBytes(2)
	if b.Position() != 0 || b.Limit() != 4 {
		t.Error("duplicate cursor mutation leaked into original")
	}
}

func TestDuplicateSharesBytes(t *testing.T) {
	back := []byte{1, 2, 3, 4}
	b := bytebuf.Wrap(back)
	d := b.Duplicate()
	back[0] = 99
	if d.GetBytes(1)[0] != 99 {
		t.Error("duplicate does not share backing bytes")
	}
}

func TestSetLimitPullsPositionBack(t *testing.T) {
	b := bytebuf.Wrap([]byte{1, 2, 3, 4})
	b.GetBytes(3)
	b.SetLimit(2)
	if b.Position() != 2 {
		t.Errorf("position = %d, want 2 after limit shrink", b.Position())
	}
}
