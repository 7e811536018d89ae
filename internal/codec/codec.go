package codec

// Typed field decoders. Each one reads through a cursor, so truncation is
// reported as an error and never zero-filled; on error the cursor has
// not moved.

import (
	"encoding/hex"
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/field"
)

// maxBytesDisplay caps how many bytes a bytes field shows inline.
const maxBytesDisplay = 24

func formatUint(v uint64, width int, o options) string {
	var s string
	if o.base == BaseHex {
		s = fmt.Sprintf("0x%0*x", width*2, v)
	} else {
		s = strconv.FormatUint(v, 10)
	}
	return s + o.unit
}

// DecodeUint reads a width-byte unsigned integer.
func DecodeUint(c *cursor.Cursor, width int, e cursor.Endian, label string, opts ...Option) (field.Field, error) {
	start := c.Offset()
	v, err := c.Uint(width, e)
	if err != nil {
		return field.Field{}, err
	}
	return field.Field{
		Label:   label,
		Kind:    field.KindUint,
		Range:   field.Range{Start: start, Length: width},
		Value:   v,
		Display: formatUint(v, width, collect(opts)),
	}, nil
}

// DecodeEnum reads an integer and displays its name from values, falling
// back to "Unknown (n)".
func DecodeEnum(c *cursor.Cursor, width int, e cursor.Endian, label string, values ValueMap, opts ...Option) (field.Field, error) {
	f, err := DecodeUint(c, width, e, label, opts...)
	if err != nil {
		return field.Field{}, err
	}
	o := collect(opts)
	v := f.Value.(uint64)
	f.Display = enumDisplay(v, width, values, o)
	return f, nil
}

func enumDisplay(v uint64, width int, values ValueMap, o options) string {
	if name, ok := values[v]; ok {
		return fmt.Sprintf("%s (%s)", name, formatUint(v, width, options{base: o.base}))
	}
	return values.Lookup(v, o.fallback)
}

// DecodeBitfield extracts (byte[at] & mask) >> shift without advancing.
// The caller advances past the byte once all of its bit-fields are read.
func DecodeBitfield(c *cursor.Cursor, at int, mask uint8, shift uint, label string, values ValueMap, opts ...Option) (field.Field, error) {
	b, err := c.Bits(at, mask)
	if err != nil {
		return field.Field{}, err
	}
	v := uint64(b >> shift)
	o := collect(opts)
	display := formatUint(v, 1, o)
	if values != nil {
		display = enumDisplay(v, 1, values, o)
	}
	return field.Field{
		Label:   label,
		Kind:    field.KindUint,
		Range:   field.Range{Start: at, Length: 1},
		Value:   v,
		Display: bitPattern(uint64(b), uint64(mask), 8) + " = " + display,
	}, nil
}

// Bit describes one named bit-field inside a group read as one integer.
// The shift is derived from the lowest set bit of Mask.
type Bit struct {
	Label  string
	Mask   uint64
	Values ValueMap
	Flag   bool
}

// DecodeBitGroup reads width bytes once and decodes every bit-field from
// that single value. All children share the group's byte range.
func DecodeBitGroup(c *cursor.Cursor, width int, e cursor.Endian, label string, group []Bit, opts ...Option) (field.Field, error) {
	start := c.Offset()
	raw, err := c.Uint(width, e)
	if err != nil {
		return field.Field{}, err
	}
	r := field.Range{Start: start, Length: width}
	o := collect(append([]Option{Hex()}, opts...))
	t := field.NewTree("", label, r)
	for _, b := range group {
		if b.Mask == 0 {
			continue
		}
		v := (raw & b.Mask) >> uint(bits.TrailingZeros64(b.Mask))
		var display string
		switch {
		case b.Flag:
			display = "Not set"
			if v != 0 {
				display = "Set"
			}
		case b.Values != nil:
			display = enumDisplay(v, width, b.Values, options{})
		default:
			display = strconv.FormatUint(v, 10)
		}
		kind := field.KindUint
		var value any = v
		if b.Flag {
			kind = field.KindBool
			value = v != 0
		}
		t.Add(field.Field{
			Label:   b.Label,
			Kind:    kind,
			Range:   r,
			Value:   value,
			Display: bitPattern(raw, b.Mask, width*8) + " = " + display,
		})
	}
	return field.Field{
		Label:   label,
		Kind:    field.KindTree,
		Range:   r,
		Value:   raw,
		Display: formatUint(raw, width, o),
		Tree:    t,
	}, nil
}

// bitPattern renders the masked bits of v in the familiar dotted form,
// e.g. "..10 ...." for mask 0x30.
func bitPattern(v, mask uint64, nbits int) string {
	var sb strings.Builder
	for i := nbits - 1; i >= 0; i-- {
		bit := uint64(1) << uint(i)
		switch {
		case mask&bit == 0:
			sb.WriteByte('.')
		case v&bit != 0:
			sb.WriteByte('1')
		default:
			sb.WriteByte('0')
		}
		if i%4 == 0 && i != 0 {
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

// DecodeFixedBytes reads n opaque bytes. The value borrows the buffer.
func DecodeFixedBytes(c *cursor.Cursor, n int, label string) (field.Field, error) {
	start := c.Offset()
	b, err := c.Bytes(n)
	if err != nil {
		return field.Field{}, err
	}
	return field.Field{
		Label:   label,
		Kind:    field.KindBytes,
		Range:   field.Range{Start: start, Length: n},
		Value:   b,
		Display: FormatHex(b),
	}, nil
}

// FormatHex renders bytes as hex, abbreviated past maxBytesDisplay.
func FormatHex(b []byte) string {
	if len(b) == 0 {
		return "<empty>"
	}
	if len(b) <= maxBytesDisplay {
		return hex.EncodeToString(b)
	}
	return fmt.Sprintf("%s... (%d bytes)", hex.EncodeToString(b[:maxBytesDisplay]), len(b))
}

// DecodeString reads n bytes and decodes them in the given charset.
// Trailing NULs are dropped from the value.
func DecodeString(c *cursor.Cursor, n int, cs Charset, label string) (field.Field, error) {
	start := c.Offset()
	b, err := c.Peek(n)
	if err != nil {
		return field.Field{}, err
	}
	s, err := cs.Decode(b)
	if err != nil {
		return field.Field{}, errors.Malformedf(start, "%s: %v", label, err)
	}
	_ = c.Advance(n)
	s = strings.TrimRight(s, "\x00")
	return field.Field{
		Label:   label,
		Kind:    field.KindString,
		Range:   field.Range{Start: start, Length: n},
		Value:   s,
		Display: strconv.Quote(s),
	}, nil
}

// Formatter turns raw bytes into a display string and a typed value.
type Formatter func(b []byte) (display string, value any, err error)

// DecodeCustom reads n bytes and formats them with fn. A formatter error
// is reported at the field's offset and leaves the cursor unmoved.
func DecodeCustom(c *cursor.Cursor, n int, label string, fn Formatter) (field.Field, error) {
	start := c.Offset()
	b, err := c.Peek(n)
	if err != nil {
		return field.Field{}, err
	}
	display, value, err := fn(b)
	if err != nil {
		return field.Field{}, errors.Malformedf(start, "%s: %v", label, err)
	}
	_ = c.Advance(n)
	kind := field.KindBytes
	switch value.(type) {
	case string:
		kind = field.KindString
	case uint64:
		kind = field.KindUint
	case int64:
		kind = field.KindInt
	case bool:
		kind = field.KindBool
	}
	return field.Field{
		Label:   label,
		Kind:    kind,
		Range:   field.Range{Start: start, Length: n},
		Value:   value,
		Display: display,
	}, nil
}

// Add appends f to t unless err is set. A decode error is returned
// unchanged so the caller can stop; nothing is appended.
func Add(t *field.Tree, f field.Field, err error) error {
	if err != nil {
		return err
	}
	t.Add(f)
	return nil
}
