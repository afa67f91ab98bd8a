/*Package bytebuf provides a position/limit/capacity cursor view over a byte
slice, in the style of a classic NIO buffer.

A buffer always satisfies 0 <= position <= limit <= capacity.  Relative reads
consume bytes between position and limit; Flip converts a buffer that was
just written into one ready to be read, Clear resets it for writing, and
Compact retains the unread tail for further filling.

The accessor methods panic on cursor violations, the same way slice indexing
panics on an out of range index.  Callers are expected to gate reads on
Remaining, which is what the frame decoder does.
*/
package bytebuf

import "encoding/binary"

// Buffer is a mutable byte region with position and limit cursors.
type Buffer struct {
	data  []byte
	pos   int
	limit int
}

// Allocate returns a zeroed buffer with the given capacity, position 0 and
// limit equal to the capacity.
func Allocate(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity), limit: capacity}
}

// Wrap returns a buffer backed by b with position 0 and limit len(b).
// The buffer aliases b; writes through either are visible to both.
func Wrap(b []byte) *Buffer {
	return &Buffer{data: b, limit: len(b)}
}

// Capacity returns the size of the backing store.
func (b *Buffer) Capacity() int { return len(b.data) }

// Position returns the read/write cursor.
func (b *Buffer) Position() int { return b.pos }

// SetPosition moves the cursor.  Panics if p is negative or beyond the limit.
func (b *Buffer) SetPosition(p int) {
	if p < 0 || p > b.limit {
		panic("bytebuf: position out of range")
	}
	b.pos = p
}

// Limit returns the index one past the last readable/writable byte.
func (b *Buffer) Limit() int { return b.limit }

// SetLimit moves the limit.  If the position is beyond the new limit it is
// pulled back to it.  Panics if l is negative or beyond the capacity.
func (b *Buffer) SetLimit(l int) {
	if l < 0 || l > len(b.data) {
		panic("bytebuf: limit out of range")
	}
	b.limit = l
	if b.pos > l {
		b.pos = l
	}
}

// Remaining returns limit - position.
func (b *Buffer) Remaining() int { return b.limit - b.pos }

// HasRemaining reports whether any bytes remain between position and limit.
func (b *Buffer) HasRemaining() bool { return b.pos < b.limit }

// GetBytes returns the next n bytes and advances the position.  The returned
// slice aliases the backing store.  Panics if fewer than n bytes remain.
func (b *Buffer) GetBytes(n int) []byte {
	if n < 0 || n > b.Remaining() {
		panic("bytebuf: get past limit")
	}
	out := b.data[b.pos : b.pos+n]
	b.pos += n
	return out
}

// GetShort reads a big-endian uint16 and advances the position by 2.
// Panics if fewer than 2 bytes remain.
func (b *Buffer) GetShort() uint16 {
	return binary.BigEndian.Uint16(b.GetBytes(2))
}

// GetInt reads a big-endian uint32 and advances the position by 4.
// Panics if fewer than 4 bytes remain.
func (b *Buffer) GetInt() uint32 {
	return binary.BigEndian.Uint32(b.GetBytes(4))
}

// Put copies all of src's remaining bytes into b starting at its position,
// advancing both positions.  Panics if b cannot hold them.
func (b *Buffer) Put(src *Buffer) {
	n := src.Remaining()
	if n > b.Remaining() {
		panic("bytebuf: put overflows destination")
	}
	copy(b.data[b.pos:], src.data[src.pos:src.limit])
	b.pos += n
	src.pos += n
}

// Fill copies min(src.Remaining, b.Remaining) bytes from src into b,
// advancing both positions.  It never panics; a full destination or an
// empty source copies nothing.
func (b *Buffer) Fill(src *Buffer) int {
	n := src.Remaining()
	if r := b.Remaining(); r < n {
		n = r
	}
	copy(b.data[b.pos:b.pos+n], src.data[src.pos:src.pos+n])
	b.pos += n
	src.pos += n
	return n
}

// Bytes returns the remaining bytes without consuming them.  The returned
// slice aliases the backing store.
func (b *Buffer) Bytes() []byte { return b.data[b.pos:b.limit] }

// Flip makes a buffer that was just written readable: the limit moves to the
// position and the position returns to zero.
func (b *Buffer) Flip() {
	b.limit = b.pos
	b.pos = 0
}

// Clear resets the cursors for writing: position 0, limit at capacity.
// The contents are untouched.
func (b *Buffer) Clear() {
	b.pos = 0
	b.limit = len(b.data)
}

// Compact moves the unread bytes to the front of the buffer, sets the
// position just past them and the limit to the capacity.
func (b *Buffer) Compact() {
	n := copy(b.data, b.data[b.pos:b.limit])
	b.pos = n
	b.limit = len(b.data)
}

// Duplicate returns an independent view over the same backing store with
// the same cursors.  Cursor mutations do not propagate between the views;
// byte mutations do.
func (b *Buffer) Duplicate() *Buffer {
	return &Buffer{data: b.data, pos: b.pos, limit: b.limit}
}
