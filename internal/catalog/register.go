package catalog

import (
	"fmt"
	"math/bits"

	"github.com/tonylturner/tlvscope/internal/codec"
	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/field"
	"github.com/tonylturner/tlvscope/internal/tlv"
)

var tagKeyTypes = map[int]dissector.KeyType{
	1: dissector.KeyUint8,
	2: dissector.KeyUint16,
	4: dissector.KeyUint32,
}

func endian(s string) cursor.Endian {
	if s == "little" {
		return cursor.LittleEndian
	}
	return cursor.BigEndian
}

func valueMap(m map[uint64]string) codec.ValueMap {
	if len(m) == 0 {
		return nil
	}
	return codec.ValueMap(m)
}

func options(hex bool) []codec.Option {
	if hex {
		return []codec.Option{codec.Hex()}
	}
	return nil
}

// Register adds every protocol of the file to b: the protocol itself, a
// "<name>.tlv" table with one entry per record, and the bindings.
func (f *File) Register(b *dissector.Builder) error {
	for _, p := range f.Protocols {
		if err := p.Register(b); err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
	}
	return nil
}

// Register adds one protocol to b. Conflicts with existing registrations
// are reported by b.Build.
func (p *Protocol) Register(b *dissector.Builder) error {
	var walker *tlv.Walker
	if p.TLV != nil {
		cfg, err := p.TLV.walkerConfig(p)
		if err != nil {
			return err
		}
		if walker, err = tlv.New(cfg); err != nil {
			return err
		}
		table := p.TableName()
		b.RegisterTable(table, tagKeyTypes[p.TLV.TagWidth])
		for _, r := range p.TLV.Records {
			h := p.TLV.recordHandler(r, walker)
			b.AddUint(table, r.Tag, b.RegisterProtocol(fmt.Sprintf("%s.tlv.%d", p.Name, r.Tag), r.Name, h))
		}
	}

	b.RegisterProtocol(p.Name, p.Title(), p.handler(walker))
	for _, bind := range p.Bindings {
		for _, k := range bind.Keys {
			b.Alias(bind.Table, string(k), p.Name)
		}
	}
	return nil
}

func (l *TLVLayout) walkerConfig(p *Protocol) (tlv.Config, error) {
	cfg := tlv.Config{
		Protocol:             p.Name,
		TagWidth:             l.TagWidth,
		LengthWidth:          l.LengthWidth,
		Endian:               endian(l.Endian),
		LengthIncludesHeader: l.LengthIncludesHeader,
		Table:                p.TableName(),
	}
	if len(l.LengthOverrides) > 0 {
		cfg.Lengths = make(map[uint64]tlv.LengthRule, len(l.LengthOverrides))
		for tag, o := range l.LengthOverrides {
			cfg.Lengths[tag] = tlv.LengthRule{Width: o.Width, Fixed: o.Fixed}
		}
	}
	if l.EndTag != nil {
		cfg.EndTag, cfg.HasEnd = *l.EndTag, true
	}
	cfg.Names = make(codec.ValueMap, len(l.Records))
	for _, r := range l.Records {
		cfg.Names[r.Tag] = r.Name
	}
	if _, err := tlv.New(cfg); err != nil {
		return tlv.Config{}, err
	}
	return cfg, nil
}

// recordHandler decodes one record value. Integer values must fill the
// record exactly.
func (l *TLVLayout) recordHandler(r *Record, walker *tlv.Walker) dissector.Handler {
	if width, ok := uintWidths[r.Type]; ok {
		return fixedUint(r.Name, width, endian(l.Endian), valueMap(r.Values), options(r.Hex))
	}
	switch r.Type {
	case TypeString:
		cs, _ := codec.ParseCharset(r.Charset)
		return tlv.Text(r.Name, cs)
	case TypeIPv4:
		return tlv.Formatted(r.Name, 4, codec.FormatIPv4)
	case TypeIPv6:
		return tlv.Formatted(r.Name, 16, codec.FormatIPv6)
	case TypeMAC:
		return tlv.Formatted(r.Name, 6, codec.FormatMAC)
	case TypeTLV:
		return walker.Handler()
	default:
		return tlv.Bytes(r.Name)
	}
}

func fixedUint(label string, width int, e cursor.Endian, values codec.ValueMap, opts []codec.Option) dissector.Handler {
	return dissector.HandlerFunc(func(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
		if cur.Remaining() != width {
			return tlv.WrongLength(cur, tree, width)
		}
		f, err := decodeUint(cur, width, e, label, values, opts)
		return codec.Add(tree, f, err)
	})
}

func decodeUint(cur *cursor.Cursor, width int, e cursor.Endian, label string, values codec.ValueMap, opts []codec.Option) (field.Field, error) {
	if values != nil {
		return codec.DecodeEnum(cur, width, e, label, values, opts...)
	}
	return codec.DecodeUint(cur, width, e, label, opts...)
}

type headerDecoder func(cur *cursor.Cursor, tree *field.Tree) error

func (h *HeaderField) decoder() headerDecoder {
	e := endian(h.Endian)
	if width, ok := uintWidths[h.Type]; ok {
		values, opts := valueMap(h.Values), options(h.Hex)
		return func(cur *cursor.Cursor, tree *field.Tree) error {
			f, err := decodeUint(cur, width, e, h.Name, values, opts)
			return codec.Add(tree, f, err)
		}
	}
	switch h.Type {
	case TypeString:
		cs, _ := codec.ParseCharset(h.Charset)
		return func(cur *cursor.Cursor, tree *field.Tree) error {
			f, err := codec.DecodeString(cur, h.Length, cs, h.Name)
			return codec.Add(tree, f, err)
		}
	case TypeBits:
		group := make([]codec.Bit, len(h.Bits))
		for i, b := range h.Bits {
			group[i] = codec.Bit{
				Label:  b.Name,
				Mask:   b.Mask,
				Values: valueMap(b.Values),
				Flag:   bits.OnesCount64(b.Mask) == 1 && len(b.Values) == 0,
			}
		}
		return func(cur *cursor.Cursor, tree *field.Tree) error {
			f, err := codec.DecodeBitGroup(cur, h.Width, e, h.Name, group)
			return codec.Add(tree, f, err)
		}
	case TypeIPv4, TypeIPv6, TypeMAC:
		n, fn := 4, codec.Formatter(codec.FormatIPv4)
		if h.Type == TypeIPv6 {
			n, fn = 16, codec.FormatIPv6
		} else if h.Type == TypeMAC {
			n, fn = 6, codec.FormatMAC
		}
		return func(cur *cursor.Cursor, tree *field.Tree) error {
			f, err := codec.DecodeCustom(cur, n, h.Name, fn)
			return codec.Add(tree, f, err)
		}
	default:
		return func(cur *cursor.Cursor, tree *field.Tree) error {
			f, err := codec.DecodeFixedBytes(cur, h.Length, h.Name)
			return codec.Add(tree, f, err)
		}
	}
}

// handler decodes the header fields in order, then walks the records. A
// protocol without a TLV layout shows what follows its header as data.
func (p *Protocol) handler(walker *tlv.Walker) dissector.Handler {
	decoders := make([]headerDecoder, len(p.Header))
	for i, h := range p.Header {
		decoders[i] = h.decoder()
	}
	return dissector.HandlerFunc(func(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
		for _, d := range decoders {
			if err := d(cur, tree); err != nil {
				return err
			}
		}
		switch {
		case walker != nil:
			walker.Walk(dc, cur, tree)
		case cur.Remaining() > 0:
			dc.CallData(cur, tree)
		}
		return nil
	})
}
