package codec

// Base selects how integers are displayed.
type Base uint8

const (
	BaseDec Base = iota
	BaseHex
)

type options struct {
	base     Base
	unit     string
	fallback string
}

// Option tunes how a decoded value is displayed.
type Option func(*options)

// Hex displays integers as 0x-prefixed hex padded to the field width.
func Hex() Option { return func(o *options) { o.base = BaseHex } }

// Unit appends a unit suffix such as " s" or " bytes".
func Unit(u string) Option { return func(o *options) { o.unit = u } }

// Fallback sets the display format used when an enum value is unknown.
func Fallback(format string) Option { return func(o *options) { o.fallback = format } }

func collect(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
