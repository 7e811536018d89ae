package catalog

import (
	"fmt"
	"regexp"

	"github.com/tonylturner/tlvscope/internal/codec"
)

// ValidationError locates a problem in a catalog.
type ValidationError struct {
	Protocol string
	Field    string
	Message  string
}

func (e ValidationError) Error() string {
	if e.Protocol == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Protocol, e.Field, e.Message)
}

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

func validWidth(w int) bool { return w == 1 || w == 2 || w == 4 }

func validEndian(s string) bool { return s == "" || s == "big" || s == "little" }

// Validate checks the catalog file for consistency.
func (f *File) Validate() error {
	if f.Version != 1 {
		return fmt.Errorf("unsupported catalog version: %d", f.Version)
	}
	if len(f.Protocols) == 0 {
		return fmt.Errorf("catalog defines no protocols")
	}

	names := make(map[string]bool)
	for i, p := range f.Protocols {
		if p == nil || p.Name == "" {
			return ValidationError{Field: fmt.Sprintf("protocols[%d].name", i), Message: "missing name"}
		}
		if !namePattern.MatchString(p.Name) {
			return ValidationError{Protocol: p.Name, Field: "name", Message: "use lower-case letters, digits, '-' and '_'"}
		}
		if names[p.Name] {
			return ValidationError{Protocol: p.Name, Field: "name", Message: "duplicate protocol"}
		}
		names[p.Name] = true
		if err := p.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Protocol) fail(field, format string, v ...interface{}) error {
	return ValidationError{Protocol: p.Name, Field: field, Message: fmt.Sprintf(format, v...)}
}

func (p *Protocol) validate() error {
	if len(p.Header) == 0 && p.TLV == nil {
		return p.fail("header", "protocol needs a header, a tlv layout or both")
	}
	for i, b := range p.Bindings {
		if b.Table == "" {
			return p.fail(fmt.Sprintf("bindings[%d].table", i), "missing table")
		}
		if len(b.Keys) == 0 {
			return p.fail(fmt.Sprintf("bindings[%d].keys", i), "no keys")
		}
	}
	for i, h := range p.Header {
		if err := p.validateHeader(i, h); err != nil {
			return err
		}
	}
	if p.TLV != nil {
		return p.validateTLV(p.TLV)
	}
	return nil
}

func (p *Protocol) validateHeader(i int, h *HeaderField) error {
	at := fmt.Sprintf("header[%d]", i)
	if h == nil || h.Name == "" {
		return p.fail(at+".name", "missing name")
	}
	if !validEndian(h.Endian) {
		return p.fail(at+".endian", "unknown endian %q", h.Endian)
	}
	if _, ok := uintWidths[h.Type]; ok {
		return nil
	}
	switch h.Type {
	case TypeBytes:
		if h.Length <= 0 {
			return p.fail(at+".length", "bytes field needs a positive length")
		}
	case TypeString:
		if h.Length <= 0 {
			return p.fail(at+".length", "string field needs a positive length")
		}
		if _, err := codec.ParseCharset(h.Charset); err != nil {
			return p.fail(at+".charset", "%v", err)
		}
	case TypeBits:
		if !validWidth(h.Width) {
			return p.fail(at+".width", "width %d must be 1, 2 or 4", h.Width)
		}
		if len(h.Bits) == 0 {
			return p.fail(at+".bits", "bits group has no fields")
		}
		limit := uint64(1)<<(uint(h.Width)*8) - 1
		for j, b := range h.Bits {
			if b.Mask == 0 || b.Mask&^limit != 0 {
				return p.fail(fmt.Sprintf("%s.bits[%d].mask", at, j), "mask 0x%x does not fit %d bytes", b.Mask, h.Width)
			}
		}
	case TypeIPv4, TypeIPv6, TypeMAC:
	default:
		return p.fail(at+".type", "unknown type %q", h.Type)
	}
	return nil
}

func (p *Protocol) validateTLV(l *TLVLayout) error {
	if !validWidth(l.TagWidth) {
		return p.fail("tlv.tag_width", "width %d must be 1, 2 or 4", l.TagWidth)
	}
	if !validWidth(l.LengthWidth) {
		return p.fail("tlv.length_width", "width %d must be 1, 2 or 4", l.LengthWidth)
	}
	if !validEndian(l.Endian) {
		return p.fail("tlv.endian", "unknown endian %q", l.Endian)
	}
	maxTag := uint64(1)<<(uint(l.TagWidth)*8) - 1
	for tag, o := range l.LengthOverrides {
		if tag > maxTag {
			return p.fail("tlv.length_overrides", "tag %d does not fit %d bytes", tag, l.TagWidth)
		}
		if o.Width != 0 && !validWidth(o.Width) {
			return p.fail("tlv.length_overrides", "tag %d: width %d must be 1, 2 or 4", tag, o.Width)
		}
		if o.Fixed < 0 {
			return p.fail("tlv.length_overrides", "tag %d: negative fixed length", tag)
		}
	}
	if l.EndTag != nil && *l.EndTag > maxTag {
		return p.fail("tlv.end_tag", "tag %d does not fit %d bytes", *l.EndTag, l.TagWidth)
	}

	tags := make(map[uint64]bool)
	for i, r := range l.Records {
		at := fmt.Sprintf("tlv.records[%d]", i)
		if r == nil || r.Name == "" {
			return p.fail(at+".name", "missing name")
		}
		if r.Tag > maxTag {
			return p.fail(at+".tag", "tag %d does not fit %d bytes", r.Tag, l.TagWidth)
		}
		if tags[r.Tag] {
			return p.fail(at+".tag", "duplicate tag %d", r.Tag)
		}
		tags[r.Tag] = true
		if l.EndTag != nil && r.Tag == *l.EndTag {
			return p.fail(at+".tag", "tag %d is the end tag", r.Tag)
		}
		if _, ok := uintWidths[r.Type]; ok {
			continue
		}
		if len(r.Values) > 0 {
			return p.fail(at+".values", "values need an integer type, not %q", r.Type)
		}
		switch r.Type {
		case TypeString:
			if _, err := codec.ParseCharset(r.Charset); err != nil {
				return p.fail(at+".charset", "%v", err)
			}
		case TypeBytes, TypeIPv4, TypeIPv6, TypeMAC, TypeTLV:
		default:
			return p.fail(at+".type", "unknown type %q", r.Type)
		}
	}
	return nil
}
