package field

import (
	"fmt"
)

// Kind is the type of value a Field carries.
type Kind uint8

const (
	KindNone Kind = iota
	KindUint
	KindInt
	KindBool
	KindString
	KindBytes
	KindTree
	KindExpert
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindTree:
		return "tree"
	case KindExpert:
		return "expert"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Range is the span of the capture buffer a field was decoded from.
// Start is an absolute offset.
type Range struct {
	Start  int
	Length int
}

// End returns the offset one past the last byte.
func (r Range) End() int { return r.Start + r.Length }

// Contains reports whether o lies entirely inside r.
func (r Range) Contains(o Range) bool {
	return o.Length >= 0 && o.Start >= r.Start && o.End() <= r.End()
}

func (r Range) String() string {
	return fmt.Sprintf("%d+%d", r.Start, r.Length)
}

// Field is one decoded value. Fields are values: once added to a Tree they
// are not changed. A KindBytes Value borrows the capture buffer.
type Field struct {
	Label   string
	Kind    Kind
	Range   Range
	Value   any
	Display string
	Expert  *Expert
	Tree    *Tree
}

// String renders the field as "label: display".
func (f Field) String() string {
	if f.Display == "" {
		return f.Label
	}
	return f.Label + ": " + f.Display
}

// Uint returns the value as uint64 for integer fields.
func (f Field) Uint() (uint64, bool) {
	switch v := f.Value.(type) {
	case uint64:
		return v, true
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	}
	return 0, false
}

// Text returns the value for string fields.
func (f Field) Text() (string, bool) {
	s, ok := f.Value.(string)
	return s, ok
}

// Raw returns the value for bytes fields.
func (f Field) Raw() ([]byte, bool) {
	b, ok := f.Value.([]byte)
	return b, ok
}
