package codec

import "github.com/tonylturner/tlvscope/internal/cursor"

// AppendUint appends value as a width-byte integer in the given order.
// It is the inverse of cursor.Uint and is used to build fixtures.
func AppendUint(dst []byte, width int, e cursor.Endian, value uint64) []byte {
	var buf [cursor.MaxUintWidth]byte
	for i := 0; i < width; i++ {
		shift := uint(8 * i)
		if e == cursor.BigEndian {
			buf[width-1-i] = byte(value >> shift)
		} else {
			buf[i] = byte(value >> shift)
		}
	}
	return append(dst, buf[:width]...)
}

// AppendUint16 appends a big-endian uint16.
func AppendUint16(dst []byte, value uint16) []byte {
	return AppendUint(dst, 2, cursor.BigEndian, uint64(value))
}

// AppendUint32 appends a big-endian uint32.
func AppendUint32(dst []byte, value uint32) []byte {
	return AppendUint(dst, 4, cursor.BigEndian, uint64(value))
}
