// Package tlv walks buffers of tag-length-value records.
package tlv

import (
	stderrors "errors"
	"fmt"

	"github.com/tonylturner/tlvscope/internal/codec"
	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/field"
)

// State is a step of the walk loop.
type State uint8

const (
	Scanning State = iota
	TagRead
	LengthRead
	ValueDispatched
	Done
	Failed
)

var stateNames = map[State]string{
	Scanning:        "Scanning",
	TagRead:         "TagRead",
	LengthRead:      "LengthRead",
	ValueDispatched: "ValueDispatched",
	Done:            "Done",
	Failed:          "Failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// LengthRule overrides how the length of one tag is encoded. A zero Width
// means the tag has no length field and its value is always Fixed bytes.
type LengthRule struct {
	Width int
	Fixed int
}

// Record names a tag and optionally decodes its value.
type Record struct {
	Name    string
	Handler dissector.Handler
}

// Config describes one TLV layout.
type Config struct {
	// Protocol is recorded on every record subtree.
	Protocol string

	TagWidth    int
	LengthWidth int
	Endian      cursor.Endian

	// Packed selects a 16-bit header with a 7-bit tag and a 9-bit length,
	// as used by LLDP. TagWidth and LengthWidth are ignored.
	Packed bool

	// Lengths overrides the length encoding for specific tags.
	Lengths map[uint64]LengthRule

	// LengthIncludesHeader is set when the declared length counts the
	// tag and length fields as well as the value.
	LengthIncludesHeader bool

	// EndTag, when HasEnd is set, terminates the walk. Outside packed
	// headers the end marker is the tag alone, with no length field.
	EndTag uint64
	HasEnd bool

	// Records holds per-tag handlers local to the protocol. Table, when
	// set, names a registry table consulted for tags Records lacks.
	Records map[uint64]Record
	Table   string

	// Names labels tags that have no Record.
	Names codec.ValueMap

	// Trace, if set, is called on every state transition.
	Trace func(s State, offset int)
}

// Outcome summarizes one walk.
type Outcome struct {
	State    State
	Records  int
	Consumed int
	Err      error
}

// Walker walks one TLV layout. It holds no per-packet state and may be
// shared by concurrent dissections once configured.
type Walker struct {
	cfg Config
}

// New validates cfg and returns a walker for it.
func New(cfg Config) (*Walker, error) {
	if !cfg.Packed {
		if !validWidth(cfg.TagWidth) {
			return nil, fmt.Errorf("tlv %s: tag width %d not in 1..4", cfg.Protocol, cfg.TagWidth)
		}
		if !validWidth(cfg.LengthWidth) {
			return nil, fmt.Errorf("tlv %s: length width %d not in 1..4", cfg.Protocol, cfg.LengthWidth)
		}
	}
	for tag, rule := range cfg.Lengths {
		if rule.Width == 0 && rule.Fixed < 0 {
			return nil, fmt.Errorf("tlv %s: tag %d: negative fixed length", cfg.Protocol, tag)
		}
		if rule.Width != 0 && !validWidth(rule.Width) {
			return nil, fmt.Errorf("tlv %s: tag %d: length width %d not in 1..4", cfg.Protocol, tag, rule.Width)
		}
		if cfg.Packed {
			return nil, fmt.Errorf("tlv %s: length overrides are not supported with packed headers", cfg.Protocol)
		}
	}
	if cfg.Records == nil {
		cfg.Records = make(map[uint64]Record)
	}
	return &Walker{cfg: cfg}, nil
}

// MustNew is New for layouts fixed at compile time.
func MustNew(cfg Config) *Walker {
	w, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return w
}

func validWidth(w int) bool { return w >= 1 && w <= 4 }

// Nest makes tag a container whose value is walked with this same layout.
// It must be called before the walker is used.
func (w *Walker) Nest(tag uint64, name string) {
	w.cfg.Records[tag] = Record{Name: name, Handler: w.Handler()}
}

// Handler returns a handler that walks its whole cursor. Failures are
// already reported in the tree, so the handler itself never fails.
func (w *Walker) Handler() dissector.Handler {
	return dissector.HandlerFunc(func(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
		w.Walk(dc, cur, tree)
		return nil
	})
}

func (w *Walker) trace(s State, offset int) {
	if w.cfg.Trace != nil {
		w.cfg.Trace(s, offset)
	}
}

// Walk decodes records from cur into tree until cur is exhausted, an end
// marker is read or a record cannot be framed. Every record strictly
// advances cur, so the number of iterations is bounded by the bytes
// available. Bytes that cannot be framed are added as one opaque field
// and consumed.
func (w *Walker) Walk(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) Outcome {
	begin := cur.Offset()
	out := Outcome{State: Scanning}
	w.trace(Scanning, begin)

	if err := dc.Enter(begin); err != nil {
		return w.stop(cur, tree, out, Failed, err, begin)
	}
	defer dc.Leave()

	for {
		if cur.Remaining() == 0 {
			out.State = Done
			out.Consumed = cur.Offset() - begin
			w.trace(Done, cur.Offset())
			return out
		}
		start := cur.Offset()
		if err := dc.Step(start); err != nil {
			return w.stop(cur, tree, out, Failed, err, begin)
		}

		h, err := w.readHeader(cur)
		if err != nil {
			s := Failed
			if stderrors.Is(err, errors.ErrLengthMismatch) {
				s = Done
			}
			return w.stop(cur, tree, out, s, err, begin)
		}
		if h.end {
			w.addEnd(tree, h, start)
			out.Records++
			out.State = Done
			out.Consumed = cur.Offset() - begin
			w.trace(Done, cur.Offset())
			return out
		}

		if h.length > cur.Remaining() {
			_ = cur.Seek(start)
			mismatch := &errors.LengthMismatchError{
				Offset:    h.lengthAt,
				Tag:       h.tag,
				HasTag:    true,
				Declared:  int(h.declared),
				Available: cur.Remaining() - h.size,
				Reason:    "declared length exceeds remaining bytes",
			}
			return w.stop(cur, tree, out, Done, mismatch, begin)
		}

		w.dispatch(dc, cur, tree, h, start)
		out.Records++
		w.trace(ValueDispatched, cur.Offset())
		w.trace(Scanning, cur.Offset())
	}
}

// stop records err, shows the unframed remainder from the current record
// as opaque bytes and consumes it.
func (w *Walker) stop(cur *cursor.Cursor, tree *field.Tree, out Outcome, s State, err error, begin int) Outcome {
	tree.Diagnose(err, cur.Offset())
	dissector.Undecoded(cur, tree)
	out.State = s
	out.Err = err
	out.Consumed = cur.Offset() - begin
	w.trace(s, cur.Offset())
	return out
}

type header struct {
	tag      uint64
	tagAt    int
	tagSize  int
	length   int // value length
	lengthAt int
	lenSize  int
	declared uint64
	size     int // header bytes
	end      bool
}

// readHeader reads tag and length. On error the cursor is left at the
// start of the record.
func (w *Walker) readHeader(cur *cursor.Cursor) (header, error) {
	start := cur.Offset()
	if w.cfg.Packed {
		v, err := cur.Uint(2, cursor.BigEndian)
		if err != nil {
			return header{}, err
		}
		h := header{
			tag:      v >> 9,
			tagAt:    start,
			tagSize:  2,
			length:   int(v & 0x1FF),
			lengthAt: start,
			lenSize:  2,
			declared: v & 0x1FF,
			size:     2,
		}
		w.trace(TagRead, start)
		w.trace(LengthRead, cur.Offset())
		h.end = w.cfg.HasEnd && h.tag == w.cfg.EndTag
		return h, nil
	}

	tag, err := cur.Uint(w.cfg.TagWidth, w.cfg.Endian)
	if err != nil {
		return header{}, err
	}
	w.trace(TagRead, cur.Offset())
	h := header{tag: tag, tagAt: start, tagSize: w.cfg.TagWidth, lengthAt: cur.Offset()}
	if w.cfg.HasEnd && tag == w.cfg.EndTag {
		h.end = true
		h.size = h.tagSize
		return h, nil
	}

	width := w.cfg.LengthWidth
	if rule, ok := w.cfg.Lengths[tag]; ok {
		if rule.Width == 0 {
			h.length = rule.Fixed
			h.declared = uint64(rule.Fixed)
			h.size = h.tagSize
			w.trace(LengthRead, cur.Offset())
			return h, nil
		}
		width = rule.Width
	}
	n, err := cur.Uint(width, w.cfg.Endian)
	if err != nil {
		_ = cur.Seek(start)
		return header{}, err
	}
	h.lenSize = width
	h.declared = n
	h.size = h.tagSize + width
	w.trace(LengthRead, cur.Offset())

	if w.cfg.LengthIncludesHeader {
		if n < uint64(h.size) {
			_ = cur.Seek(start)
			return header{}, &errors.LengthMismatchError{
				Offset:    h.lengthAt,
				Tag:       tag,
				HasTag:    true,
				Declared:  int(n),
				Available: cur.Remaining(),
				Expected:  h.size,
				Reason:    "length shorter than its own header",
			}
		}
		n -= uint64(h.size)
	}
	if n > uint64(cur.Remaining()) {
		// Anything this large cannot fit; keep it representable.
		h.length = cur.Remaining() + 1
	} else {
		h.length = int(n)
	}
	return h, nil
}

func (w *Walker) name(tag uint64) string {
	if r, ok := w.cfg.Records[tag]; ok && r.Name != "" {
		return r.Name
	}
	if name, ok := w.cfg.Names[tag]; ok {
		return name
	}
	return ""
}

func (w *Walker) headerFields(rec *field.Tree, h header) {
	tagDisplay := fmt.Sprintf("%d", h.tag)
	if name := w.name(h.tag); name != "" {
		tagDisplay = fmt.Sprintf("%s (%d)", name, h.tag)
	}
	rec.Add(field.Field{
		Label:   "Type",
		Kind:    field.KindUint,
		Range:   field.Range{Start: h.tagAt, Length: h.tagSize},
		Value:   h.tag,
		Display: tagDisplay,
	})
	if h.lenSize == 0 {
		return
	}
	rec.Add(field.Field{
		Label:   "Length",
		Kind:    field.KindUint,
		Range:   field.Range{Start: h.lengthAt, Length: h.lenSize},
		Value:   h.declared,
		Display: fmt.Sprintf("%d", h.declared),
	})
}

func (w *Walker) addEnd(tree *field.Tree, h header, start int) {
	rec := tree.AddTree(w.cfg.Protocol, "End", field.Range{Start: start, Length: h.size})
	w.headerFields(rec, h)
}

func (w *Walker) dispatch(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree, h header, start int) {
	valueAt := cur.Offset()
	label := w.name(h.tag)
	handler, title := w.handler(dc, h.tag)
	if label == "" {
		label = title
	}
	if handler == nil && label == "" {
		label = "Unknown TLV"
	}
	rec := tree.AddTree(w.cfg.Protocol, label, field.Range{Start: start, Length: cur.Offset() - start + h.length})
	w.headerFields(rec, h)

	value, _ := cur.Sub(h.length)
	if handler == nil {
		raw := value.Rest()
		rec.Add(field.Field{
			Label:   "Value",
			Kind:    field.KindBytes,
			Range:   field.Range{Start: valueAt, Length: len(raw)},
			Value:   raw,
			Display: codec.FormatHex(raw),
		})
		if !w.cfg.Names.Has(h.tag) {
			rec.Note(field.ReasonUnknownTag, h.tagAt, "no decoder for tag %d", h.tag)
		}
	} else {
		dc.Run(handler, value, rec)
		if at := value.Offset(); value.Remaining() > 0 {
			rec.Note(field.ReasonTrailingData, at, "%d bytes left in value", dissector.Undecoded(value, rec))
		}
	}
	_ = cur.Advance(h.length)
}

func (w *Walker) handler(dc *dissector.Context, tag uint64) (dissector.Handler, string) {
	if r, ok := w.cfg.Records[tag]; ok && r.Handler != nil {
		return r.Handler, r.Name
	}
	if w.cfg.Table != "" && dc.Registry != nil {
		if p, ok := dc.Registry.LookupUint(w.cfg.Table, tag); ok {
			return p.Handler, p.Title
		}
	}
	return nil, ""
}
