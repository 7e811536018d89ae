package codec

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Charset names the text encoding of a string field.
type Charset uint8

const (
	ASCII Charset = iota
	UTF8
	Latin1
	UTF16BE
	UTF16LE
)

var charsetNames = map[string]Charset{
	"ascii":     ASCII,
	"utf-8":     UTF8,
	"utf8":      UTF8,
	"latin1":    Latin1,
	"iso8859-1": Latin1,
	"utf-16be":  UTF16BE,
	"utf-16le":  UTF16LE,
}

// ParseCharset resolves a charset name used in catalogs.
func ParseCharset(name string) (Charset, error) {
	if name == "" {
		return ASCII, nil
	}
	cs, ok := charsetNames[strings.ToLower(name)]
	if !ok {
		return ASCII, fmt.Errorf("unknown charset %q", name)
	}
	return cs, nil
}

func (cs Charset) String() string {
	switch cs {
	case ASCII:
		return "ascii"
	case UTF8:
		return "utf-8"
	case Latin1:
		return "latin1"
	case UTF16BE:
		return "utf-16be"
	case UTF16LE:
		return "utf-16le"
	default:
		return "unknown"
	}
}

func (cs Charset) encoding() encoding.Encoding {
	switch cs {
	case Latin1:
		return charmap.ISO8859_1
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	default:
		return nil
	}
}

// Decode converts b to a Go string. ASCII bytes above 0x7f and invalid
// UTF-8 sequences become U+FFFD rather than failing.
func (cs Charset) Decode(b []byte) (string, error) {
	switch cs {
	case ASCII:
		var sb strings.Builder
		sb.Grow(len(b))
		for _, x := range b {
			if x < 0x80 {
				sb.WriteByte(x)
			} else {
				sb.WriteRune(utf8.RuneError)
			}
		}
		return sb.String(), nil
	case UTF8:
		return strings.ToValidUTF8(string(b), string(utf8.RuneError)), nil
	}
	enc := cs.encoding()
	if enc == nil {
		return "", fmt.Errorf("unsupported charset %d", cs)
	}
	if (cs == UTF16BE || cs == UTF16LE) && len(b)%2 != 0 {
		return "", fmt.Errorf("odd byte count %d for %s", len(b), cs)
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
