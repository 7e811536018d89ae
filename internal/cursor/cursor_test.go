package cursor

import (
	stderrors "errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonylturner/tlvscope/internal/errors"
)

func TestUintWidths(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	tests := []struct {
		width int
		e     Endian
		want  uint64
	}{
		{1, BigEndian, 0x01},
		{2, BigEndian, 0x0102},
		{2, LittleEndian, 0x0201},
		{3, BigEndian, 0x010203},
		{3, LittleEndian, 0x030201},
		{4, BigEndian, 0x01020304},
		{5, BigEndian, 0x0102030405},
		{6, LittleEndian, 0x060504030201},
		{8, BigEndian, 0x0102030405060708},
		{8, LittleEndian, 0x0807060504030201},
	}
	for _, tt := range tests {
		c := New(buf)
		got, err := c.Uint(tt.width, tt.e)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "width %d %s", tt.width, tt.e)
		assert.Equal(t, tt.width, c.Offset())
	}
}

func TestTypedReaders(t *testing.T) {
	c := New([]byte{0xAA, 0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC, 0xDE})
	u8, err := c.U8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xAA), u8)
	u16, err := c.U16(BigEndian)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), u16)
	u24, err := c.U24(LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x9A7856), u24)
	assert.Equal(t, 2, c.Remaining())
	_, err = c.U32(BigEndian)
	require.Error(t, err)
	assert.Equal(t, 6, c.Offset(), "failed read must not move the cursor")
}

func TestTruncatedReportsOffsetAndSizes(t *testing.T) {
	c := New([]byte{0x01, 0x02, 0x03})
	require.NoError(t, c.Advance(2))

	_, err := c.U32(BigEndian)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrTruncated))

	var te *errors.TruncatedError
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, 2, te.Offset)
	assert.Equal(t, 4, te.Needed)
	assert.Equal(t, 1, te.Available)
}

func TestNegativeLengthRejected(t *testing.T) {
	c := New([]byte{0x01, 0x02})
	require.NoError(t, c.Advance(1))
	assert.Error(t, c.Advance(-1))
	_, err := c.Bytes(-1)
	assert.Error(t, err)
	_, err = c.Sub(-5)
	assert.Error(t, err)
	assert.Equal(t, 1, c.Offset())
}

func TestSubCursorLimitsNestedReads(t *testing.T) {
	c := New([]byte{0x10, 0x20, 0x30, 0x40, 0x50})
	require.NoError(t, c.Advance(1))

	sub, err := c.Sub(2)
	require.NoError(t, err)
	assert.Equal(t, 1, sub.Start())
	assert.Equal(t, 3, sub.Limit())
	assert.Equal(t, 1, c.Offset(), "parent does not move on Sub")

	v, err := sub.U16(BigEndian)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x2030), v)

	_, err = sub.U8()
	assert.Error(t, err, "sub cursor must not read sibling data")

	_, err = c.Sub(5)
	assert.Error(t, err, "sub longer than the parent's remainder fails")
}

func TestBitsDoesNotAdvance(t *testing.T) {
	c := New([]byte{0xA5, 0xFF})
	hi, err := c.Bits(0, 0xF0)
	require.NoError(t, err)
	lo, err := c.Bits(0, 0x0F)
	require.NoError(t, err)
	assert.Equal(t, uint8(0xA0), hi)
	assert.Equal(t, uint8(0x05), lo)
	assert.Equal(t, 0, c.Offset())

	sub, err := c.Sub(1)
	require.NoError(t, err)
	_, err = sub.Bits(1, 0xFF)
	assert.Error(t, err, "bits outside the window fail")
}

func TestStringsAndLines(t *testing.T) {
	c := New([]byte("ab\x00cd\r\nlast"))
	s, err := c.CString(8)
	require.NoError(t, err)
	assert.Equal(t, "ab", s)

	line, err := c.Line()
	require.NoError(t, err)
	assert.Equal(t, "cd", string(line))

	line, err = c.Line()
	require.NoError(t, err)
	assert.Equal(t, "last", string(line))

	_, err = c.Line()
	assert.Error(t, err)

	c = New([]byte("abc"))
	_, err = c.CString(3)
	assert.Error(t, err)
	assert.Equal(t, 0, c.Offset())

	str, err := c.String(3)
	require.NoError(t, err)
	assert.Equal(t, "abc", str)
	_, err = c.String(1)
	assert.Error(t, err)
}

func TestBytesAreBorrowedAndCapped(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	c := New(buf)
	b, err := c.Bytes(2)
	require.NoError(t, err)
	assert.Equal(t, 2, cap(b))
	b = append(b, 9)
	assert.Equal(t, byte(3), buf[2], "append must not write into the shared buffer")
}

// Random operation sequences never panic and never leave the window.
func TestRandomOperationsStayInBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for iter := 0; iter < 2000; iter++ {
		buf := make([]byte, rng.IntN(32))
		for i := range buf {
			buf[i] = byte(rng.UintN(256))
		}
		c := New(buf)
		for step := 0; step < 20; step++ {
			n := rng.IntN(12) - 2
			switch rng.IntN(8) {
			case 0:
				_, _ = c.U8()
			case 1:
				_, _ = c.Uint(rng.IntN(10), Endian(rng.IntN(2)))
			case 2:
				_, _ = c.Bytes(n)
			case 3:
				if sub, err := c.Sub(n); err == nil {
					c = sub
				}
			case 4:
				_ = c.Advance(n)
			case 5:
				_, _ = c.Bits(rng.IntN(40)-4, 0xFF)
			case 6:
				_, _ = c.Line()
			case 7:
				_, _ = c.CString(n)
			}
			require.GreaterOrEqual(t, c.Offset(), c.Start())
			require.LessOrEqual(t, c.Offset(), c.Limit())
			require.LessOrEqual(t, c.Limit(), len(buf))
		}
	}
}
