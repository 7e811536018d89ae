// Package enttec decodes the ENTTEC DMX-over-UDP protocol.
package enttec

import (
	"fmt"
	"strings"

	"github.com/tonylturner/tlvscope/internal/codec"
	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/field"
)

// Port is the ENTTEC UDP port.
const Port = 3333

// Packet heads.
const (
	HeadPollReply = 0x45535052 // ESPR
	HeadPoll      = 0x45535050 // ESPP
	HeadAck       = 0x45534150 // ESAP
	HeadDMXData   = 0x45534444 // ESDD
	HeadConfig    = 0x45534e43 // ESNC
	HeadReset     = 0x45535a5a // ESZZ
)

// DMX data encodings.
const (
	DataDMX          = 1
	DataChannelValue = 2
	DataRLE          = 4
)

// MaxChannels is the size of one DMX universe.
const MaxChannels = 512

const (
	rleRepeat = 0xfe
	rleEscape = 0xfd
	rowWidth  = 16
)

var heads = codec.ValueMap{
	HeadPollReply: "Poll Reply",
	HeadPoll:      "Poll",
	HeadAck:       "Ack/nAck",
	HeadDMXData:   "DMX Data",
	HeadConfig:    "Config",
	HeadReset:     "Reset",
}

var dataTypes = codec.ValueMap{
	DataDMX:          "Uncompressed DMX",
	DataChannelValue: "Channel+Value",
	DataRLE:          "RLE Compressed DMX",
}

// Register binds ENTTEC to udp.port 3333.
func Register(b *dissector.Builder) {
	b.AddUint("udp.port", Port, b.RegisterProtocol("enttec", "ENTTEC", dissector.HandlerFunc(dissect)))
}

type reader struct {
	cur  *cursor.Cursor
	tree *field.Tree
}

func (r reader) uint(width int, label string, opts ...codec.Option) (uint64, error) {
	f, err := codec.DecodeUint(r.cur, width, cursor.BigEndian, label, opts...)
	if err := codec.Add(r.tree, f, err); err != nil {
		return 0, err
	}
	return f.Value.(uint64), nil
}

func (r reader) text(n int, label string) error {
	f, err := codec.DecodeString(r.cur, n, codec.ASCII, label)
	return codec.Add(r.tree, f, err)
}

func dissect(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	head, err := codec.DecodeEnum(cur, 4, cursor.BigEndian, "Head", heads, codec.Hex())
	if err := codec.Add(tree, head, err); err != nil {
		return err
	}
	h := head.Value.(uint64)
	dc.SetInfo("%s", heads.Lookup(h, "Unknown head 0x%08x"))

	r := reader{cur: cur, tree: tree}
	switch h {
	case HeadPollReply:
		err = pollReply(r)
	case HeadPoll:
		_, err = r.uint(1, "Reply Type")
	case HeadAck:
		_, err = r.uint(1, "Ack")
	case HeadDMXData:
		err = dmxData(dc, r)
	case HeadReset:
	default:
		if cur.Remaining() > 0 {
			f, ferr := codec.DecodeFixedBytes(cur, cur.Remaining(), "Data")
			err = codec.Add(tree, f, ferr)
		}
	}
	return err
}

func pollReply(r reader) error {
	f, err := codec.DecodeCustom(r.cur, 6, "MAC", codec.FormatMAC)
	if err := codec.Add(r.tree, f, err); err != nil {
		return err
	}
	for _, fld := range []struct {
		label string
		width int
	}{{"Node Type", 2}, {"Version", 1}, {"Switch", 1}} {
		if _, err := r.uint(fld.width, fld.label, codec.Hex()); err != nil {
			return err
		}
	}
	if err := r.text(10, "Name"); err != nil {
		return err
	}
	for _, label := range []string{"Option", "TOS", "TTL"} {
		if _, err := r.uint(1, label); err != nil {
			return err
		}
	}
	return nil
}

// dmxData decodes an ESDD block. A count larger than one universe or
// than the bytes present is reported, and whatever data is present is
// still shown.
func dmxData(dc *dissector.Context, r reader) error {
	universe, err := r.uint(1, "Universe")
	if err != nil {
		return err
	}
	if _, err := r.uint(1, "Start Code"); err != nil {
		return err
	}
	dt, err := codec.DecodeEnum(r.cur, 1, cursor.BigEndian, "Data Type", dataTypes)
	if err := codec.Add(r.tree, dt, err); err != nil {
		return err
	}
	countAt := r.cur.Offset()
	count, err := r.uint(2, "Count")
	if err != nil {
		return err
	}
	dc.AppendInfo("Universe %d", universe)

	n := int(count)
	if n > MaxChannels {
		r.tree.Diagnose(&errors.LengthMismatchError{Offset: countAt, Declared: n, Available: r.cur.Remaining(), Expected: MaxChannels, Reason: "DMX count exceeds one universe"}, countAt)
	}
	if n > r.cur.Remaining() {
		r.tree.Diagnose(&errors.LengthMismatchError{Offset: countAt, Declared: n, Available: r.cur.Remaining(), Reason: "DMX count exceeds remaining bytes"}, countAt)
		n = r.cur.Remaining()
	}
	if n == 0 {
		return nil
	}
	start := r.cur.Offset()
	f, err := codec.DecodeFixedBytes(r.cur, n, "DMX Data")
	if err := codec.Add(r.tree, f, err); err != nil {
		return err
	}
	raw := f.Value.([]byte)
	rng := field.Range{Start: start, Length: n}

	switch dt.Value.(uint64) {
	case DataDMX:
		levels(r.tree, raw, rng, true)
	case DataRLE:
		decoded, err := expandRLE(dc, raw, start)
		if err != nil {
			return err
		}
		levels(r.tree, decoded, rng, false)
	}
	return nil
}

// expandRLE undoes ENTTEC run-length encoding. A run is 0xfe, count,
// value; 0xfd escapes the next byte. Expansion stops at one universe.
func expandRLE(dc *dissector.Context, b []byte, base int) ([]byte, error) {
	out := make([]byte, 0, MaxChannels)
	for i := 0; i < len(b) && len(out) < MaxChannels; {
		if err := dc.Step(base + i); err != nil {
			return out, err
		}
		switch b[i] {
		case rleRepeat:
			if i+2 >= len(b) {
				return out, &errors.TruncatedError{Offset: base + i, Needed: 3, Available: len(b) - i}
			}
			run := int(b[i+1])
			if room := MaxChannels - len(out); run > room {
				run = room
			}
			for j := 0; j < run; j++ {
				out = append(out, b[i+2])
			}
			i += 3
		case rleEscape:
			if i+1 >= len(b) {
				return out, &errors.TruncatedError{Offset: base + i, Needed: 2, Available: len(b) - i}
			}
			out = append(out, b[i+1])
			i += 2
		default:
			out = append(out, b[i])
			i++
		}
	}
	return out, nil
}

// levels lays channel levels out in rows of sixteen. Rows of an
// uncompressed block cover their own bytes; decoded rows all point at the
// compressed block.
func levels(tree *field.Tree, lv []byte, rng field.Range, direct bool) {
	t := tree.AddTree("", "DMX Channels", rng)
	for i := 0; i < len(lv); i += rowWidth {
		end := min(i+rowWidth, len(lv))
		row := lv[i:end]
		r := rng
		if direct {
			r = field.Range{Start: rng.Start + i, Length: len(row)}
		}
		t.Add(field.Field{
			Label:   fmt.Sprintf("Channels %d-%d", i+1, end),
			Kind:    field.KindBytes,
			Range:   r,
			Value:   row,
			Display: formatLevels(row),
		})
	}
}

func formatLevels(row []byte) string {
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = fmt.Sprintf("%3d%%", int(v)*100/255)
	}
	return strings.Join(parts, " ")
}
