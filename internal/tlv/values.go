package tlv

import (
	"github.com/tonylturner/tlvscope/internal/codec"
	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/field"
)

// Value decoders for Records. Each one decodes a whole record value.

// WrongLength shows the rest of a value as bytes and reports that the
// record length does not fit its type, which needs want bytes.
func WrongLength(cur *cursor.Cursor, tree *field.Tree, want int) error {
	declared := cur.Consumed() + cur.Remaining()
	if cur.Remaining() > 0 {
		f, _ := codec.DecodeFixedBytes(cur, cur.Remaining(), "Value")
		tree.Add(f)
	}
	return &errors.LengthMismatchError{
		Offset:    cur.Start(),
		Declared:  declared,
		Available: declared,
		Expected:  want,
		Reason:    "Wrong TLV length",
	}
}

// Uint decodes a big-endian integer as wide as the value, up to 8 bytes.
// A non-nil values map displays the value as an enum.
func Uint(label string, values codec.ValueMap, opts ...codec.Option) dissector.Handler {
	return dissector.HandlerFunc(func(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
		n := cur.Remaining()
		if n < 1 || n > cursor.MaxUintWidth {
			return WrongLength(cur, tree, cursor.MaxUintWidth)
		}
		return addUint(cur, tree, n, label, values, opts)
	})
}

// FixedUint decodes an integer that must be exactly width bytes.
func FixedUint(label string, width int, values codec.ValueMap, opts ...codec.Option) dissector.Handler {
	return dissector.HandlerFunc(func(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
		if cur.Remaining() != width {
			return WrongLength(cur, tree, width)
		}
		return addUint(cur, tree, width, label, values, opts)
	})
}

func addUint(cur *cursor.Cursor, tree *field.Tree, width int, label string, values codec.ValueMap, opts []codec.Option) error {
	var (
		f   field.Field
		err error
	)
	if values != nil {
		f, err = codec.DecodeEnum(cur, width, cursor.BigEndian, label, values, opts...)
	} else {
		f, err = codec.DecodeUint(cur, width, cursor.BigEndian, label, opts...)
	}
	return codec.Add(tree, f, err)
}

// Text decodes the value as a string.
func Text(label string, cs codec.Charset) dissector.Handler {
	return dissector.HandlerFunc(func(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
		f, err := codec.DecodeString(cur, cur.Remaining(), cs, label)
		return codec.Add(tree, f, err)
	})
}

// Bytes shows the value as opaque bytes.
func Bytes(label string) dissector.Handler {
	return dissector.HandlerFunc(func(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
		f, err := codec.DecodeFixedBytes(cur, cur.Remaining(), label)
		return codec.Add(tree, f, err)
	})
}

// Formatted decodes a value of exactly n bytes with fn.
func Formatted(label string, n int, fn codec.Formatter) dissector.Handler {
	return dissector.HandlerFunc(func(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
		if cur.Remaining() != n {
			return WrongLength(cur, tree, n)
		}
		f, err := codec.DecodeCustom(cur, n, label, fn)
		return codec.Add(tree, f, err)
	})
}
