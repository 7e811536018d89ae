package cursor

// Bounds-checked reads over an immutable capture buffer. Every byte a
// dissector looks at goes through a Cursor.

import (
	"bytes"

	"github.com/tonylturner/tlvscope/internal/errors"
)

// Endian selects the byte order of multi-byte integers.
type Endian uint8

const (
	BigEndian Endian = iota
	LittleEndian
)

// String returns a short label for the byte order.
func (e Endian) String() string {
	if e == LittleEndian {
		return "little"
	}
	return "big"
}

// MaxUintWidth is the widest integer Uint can read.
const MaxUintWidth = 8

// Cursor is a read position inside buf[start:limit]. Offsets are absolute
// positions in the shared buffer, so a sub-cursor reports the same offsets
// as its parent would.
//
// Invariant: start <= off <= limit <= len(buf).
type Cursor struct {
	buf   []byte
	start int
	off   int
	limit int
}

// New returns a cursor over the whole buffer. The buffer is borrowed, never
// copied, and must not be modified while cursors over it are in use.
func New(buf []byte) *Cursor {
	return &Cursor{buf: buf, limit: len(buf)}
}

// Offset returns the absolute read position.
func (c *Cursor) Offset() int { return c.off }

// Start returns the absolute offset at which this cursor's window begins.
func (c *Cursor) Start() int { return c.start }

// Limit returns the absolute end of this cursor's window.
func (c *Cursor) Limit() int { return c.limit }

// Remaining returns the number of bytes left before the limit.
func (c *Cursor) Remaining() int { return c.limit - c.off }

// Consumed returns how many bytes of the window have been read.
func (c *Cursor) Consumed() int { return c.off - c.start }

// Buffer returns the underlying shared buffer.
func (c *Cursor) Buffer() []byte { return c.buf }

// Clone returns an independent cursor at the same position and window.
func (c *Cursor) Clone() *Cursor {
	cp := *c
	return &cp
}

func (c *Cursor) truncated(n int) error {
	return &errors.TruncatedError{Offset: c.off, Needed: n, Available: c.Remaining()}
}

// check validates that n bytes can be read at the current offset.
// n < 0 is rejected as well so that a negative computed length can never
// move the offset backwards.
func (c *Cursor) check(n int) error {
	if n < 0 || n > c.limit-c.off {
		return c.truncated(n)
	}
	return nil
}

// U8 reads one byte.
func (c *Cursor) U8() (uint8, error) {
	if err := c.check(1); err != nil {
		return 0, err
	}
	v := c.buf[c.off]
	c.off++
	return v, nil
}

// Uint reads an unsigned integer of width bytes (1..8).
func (c *Cursor) Uint(width int, e Endian) (uint64, error) {
	if width < 1 || width > MaxUintWidth {
		return 0, errors.Malformedf(c.off, "unsupported integer width %d", width)
	}
	if err := c.check(width); err != nil {
		return 0, err
	}
	v := decodeUint(c.buf[c.off:c.off+width], e)
	c.off += width
	return v, nil
}

// PeekUint reads an unsigned integer without advancing.
func (c *Cursor) PeekUint(width int, e Endian) (uint64, error) {
	v, err := c.Uint(width, e)
	if err != nil {
		return 0, err
	}
	c.off -= width
	return v, nil
}

func decodeUint(b []byte, e Endian) uint64 {
	var v uint64
	if e == LittleEndian {
		for i := len(b) - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v
	}
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// U16 reads a 16-bit integer.
func (c *Cursor) U16(e Endian) (uint16, error) {
	v, err := c.Uint(2, e)
	return uint16(v), err
}

// U24 reads a 24-bit integer.
func (c *Cursor) U24(e Endian) (uint32, error) {
	v, err := c.Uint(3, e)
	return uint32(v), err
}

// U32 reads a 32-bit integer.
func (c *Cursor) U32(e Endian) (uint32, error) {
	v, err := c.Uint(4, e)
	return uint32(v), err
}

// U40 reads a 40-bit integer.
func (c *Cursor) U40(e Endian) (uint64, error) { return c.Uint(5, e) }

// U48 reads a 48-bit integer.
func (c *Cursor) U48(e Endian) (uint64, error) { return c.Uint(6, e) }

// U64 reads a 64-bit integer.
func (c *Cursor) U64(e Endian) (uint64, error) { return c.Uint(8, e) }

// Bits returns byte[at] & mask without moving the cursor. at is an absolute
// offset and must fall inside this cursor's window. Several bit-fields can
// be read from the same byte; the caller advances past it once.
func (c *Cursor) Bits(at int, mask uint8) (uint8, error) {
	b, err := c.ByteAt(at)
	if err != nil {
		return 0, err
	}
	return b & mask, nil
}

// ByteAt returns the byte at absolute offset at without moving the cursor.
func (c *Cursor) ByteAt(at int) (uint8, error) {
	if at < c.start || at >= c.limit {
		avail := c.limit - at
		if avail < 0 || at < c.start {
			avail = 0
		}
		return 0, &errors.TruncatedError{Offset: at, Needed: 1, Available: avail}
	}
	return c.buf[at], nil
}

// Bytes returns the next n bytes as a borrowed sub-slice and advances.
// The slice is capped so that appending to it cannot clobber the buffer.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if err := c.check(n); err != nil {
		return nil, err
	}
	b := c.buf[c.off : c.off+n : c.off+n]
	c.off += n
	return b, nil
}

// Peek returns the next n bytes without advancing.
func (c *Cursor) Peek(n int) ([]byte, error) {
	if err := c.check(n); err != nil {
		return nil, err
	}
	return c.buf[c.off : c.off+n : c.off+n], nil
}

// Rest returns every remaining byte without advancing.
func (c *Cursor) Rest() []byte {
	return c.buf[c.off:c.limit:c.limit]
}

// String returns the next n bytes as a string. No NUL terminator is
// assumed; embedded NULs are kept.
func (c *Cursor) String(n int) (string, error) {
	b, err := c.Bytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CString reads up to and including a NUL byte within max bytes and
// returns the string without the terminator. If no NUL is found within
// max (or before the limit) it fails and the cursor does not move.
func (c *Cursor) CString(max int) (string, error) {
	if max > c.Remaining() || max < 0 {
		max = c.Remaining()
	}
	i := bytes.IndexByte(c.buf[c.off:c.off+max], 0)
	if i < 0 {
		return "", c.truncated(max + 1)
	}
	s := string(c.buf[c.off : c.off+i])
	c.off += i + 1
	return s, nil
}

// Line reads up to and including the next '\n' and returns the line with
// any trailing "\r\n" or "\n" removed. The last line may be unterminated.
func (c *Cursor) Line() ([]byte, error) {
	if c.Remaining() == 0 {
		return nil, c.truncated(1)
	}
	rest := c.buf[c.off:c.limit]
	n := len(rest)
	line := rest
	if i := bytes.IndexByte(rest, '\n'); i >= 0 {
		n = i + 1
		line = rest[:i]
	}
	line = bytes.TrimSuffix(line, []byte{'\r'})
	c.off += n
	return line[:len(line):len(line)], nil
}

// Sub returns a cursor over the next n bytes whose limit keeps a nested
// handler from reading into sibling data. The parent does not move; call
// Advance(n) once the nested record has been handled.
func (c *Cursor) Sub(n int) (*Cursor, error) {
	if err := c.check(n); err != nil {
		return nil, err
	}
	end := c.off + n
	if end > c.limit {
		end = c.limit
	}
	return &Cursor{buf: c.buf, start: c.off, off: c.off, limit: end}, nil
}

// Advance skips n bytes without decoding them.
func (c *Cursor) Advance(n int) error {
	if err := c.check(n); err != nil {
		return err
	}
	c.off += n
	return nil
}

// Seek moves to absolute offset at inside the window.
func (c *Cursor) Seek(at int) error {
	if at < c.start || at > c.limit {
		return &errors.TruncatedError{Offset: c.off, Needed: at - c.off, Available: c.Remaining()}
	}
	c.off = at
	return nil
}
