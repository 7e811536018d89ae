package tlv

import (
	stderrors "errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonylturner/tlvscope/internal/codec"
	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/field"
)

func emptyRegistry(t testing.TB) *dissector.Registry {
	t.Helper()
	reg, err := dissector.NewBuilder().Build()
	require.NoError(t, err)
	return reg
}

func u8Value(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	f, err := codec.DecodeUint(cur, 1, cursor.BigEndian, "Value")
	return codec.Add(tree, f, err)
}

func walk(t testing.TB, w *Walker, buf []byte, limits dissector.Limits) (Outcome, *field.Tree, *dissector.Context) {
	t.Helper()
	dc := dissector.NewContext(emptyRegistry(t), dissector.Frame{Data: buf}, limits)
	tree := field.NewTree("test", "Test", field.Range{Start: 0, Length: len(buf)})
	out := w.Walk(dc, cursor.New(buf), tree)
	tree.Freeze()
	return out, tree, dc
}

func TestNewRejectsBadLayouts(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"tag width", Config{TagWidth: 0, LengthWidth: 1}},
		{"length width", Config{TagWidth: 1, LengthWidth: 5}},
		{"override width", Config{TagWidth: 1, LengthWidth: 1, Lengths: map[uint64]LengthRule{6: {Width: 3 + 5}}}},
		{"negative fixed", Config{TagWidth: 1, LengthWidth: 1, Lengths: map[uint64]LengthRule{6: {Fixed: -1}}}},
		{"packed overrides", Config{Packed: true, Lengths: map[uint64]LengthRule{6: {Width: 2}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
	_, err := New(Config{Packed: true})
	assert.NoError(t, err)
}

// A declared length larger than the rest of the buffer stops the walk with
// a LengthMismatch warning and the rest shown as opaque bytes.
func TestWalkLengthExceedsRemaining(t *testing.T) {
	w := MustNew(Config{Protocol: "test", TagWidth: 1, LengthWidth: 2, Endian: cursor.BigEndian})
	out, tree, _ := walk(t, w, []byte{0x05, 0x00, 0x00, 0x00, 0x02, 0x01, 0x02}, dissector.Limits{})

	assert.Equal(t, Done, out.State)
	assert.Equal(t, 1, out.Records)
	assert.Equal(t, 7, out.Consumed)
	require.Error(t, out.Err)
	var lm *errors.LengthMismatchError
	require.True(t, stderrors.As(out.Err, &lm))
	assert.Equal(t, 0x0201, lm.Declared)
	assert.Equal(t, 1, lm.Available)
	assert.Equal(t, 4, lm.Offset)

	experts := tree.Experts()
	require.NotEmpty(t, experts)
	var found bool
	for _, e := range experts {
		if e.Reason == field.ReasonLengthMismatch {
			found = true
			assert.Equal(t, field.SeverityWarn, e.Severity)
		}
	}
	assert.True(t, found)

	undecoded, ok := tree.Find("Undecoded")
	require.True(t, ok)
	assert.Equal(t, field.Range{Start: 3, Length: 4}, undecoded.Range)
}

// A handler that needs more than a zero-length value reports Truncated;
// the walk still finishes with every byte consumed.
func TestWalkZeroLengthValue(t *testing.T) {
	var states []State
	w := MustNew(Config{
		Protocol:    "test",
		TagWidth:    1,
		LengthWidth: 1,
		Records:     map[uint64]Record{1: {Name: "Single", Handler: dissector.HandlerFunc(u8Value)}},
		Trace:       func(s State, _ int) { states = append(states, s) },
	})
	out, tree, _ := walk(t, w, []byte{0x01, 0x00}, dissector.Limits{})

	assert.Equal(t, Done, out.State)
	assert.NoError(t, out.Err)
	assert.Equal(t, 2, out.Consumed)
	assert.Equal(t, 1, out.Records)
	assert.True(t, tree.HasReason(field.ReasonTruncated))
	assert.Equal(t, []State{Scanning, TagRead, LengthRead, ValueDispatched, Scanning, Done}, states)

	rec, ok := tree.Find("Single")
	require.True(t, ok)
	assert.Equal(t, field.Range{Start: 0, Length: 2}, rec.Range)
}

func TestWalkPerTagLengthWidth(t *testing.T) {
	w := MustNew(Config{
		Protocol:    "test",
		TagWidth:    1,
		LengthWidth: 1,
		Lengths:     map[uint64]LengthRule{6: {Width: 2}, 9: {Fixed: 2}},
		Names:       codec.ValueMap{6: "Vector", 1: "Small", 9: "Fixed"},
	})
	buf := []byte{
		0x06, 0x00, 0x03, 0xaa, 0xbb, 0xcc,
		0x01, 0x01, 0x07,
		0x09, 0xde, 0xad,
	}
	out, tree, _ := walk(t, w, buf, dissector.Limits{})
	require.Equal(t, Done, out.State)
	require.NoError(t, out.Err)
	assert.Equal(t, 3, out.Records)

	fields := tree.Fields()
	require.Len(t, fields, 3)
	vector := fields[0].Tree
	require.NotNil(t, vector)
	assert.Equal(t, "Vector", vector.Label)
	assert.Equal(t, field.Range{Start: 0, Length: 6}, vector.Range)
	length, ok := vector.Find("Length")
	require.True(t, ok)
	assert.Equal(t, uint64(3), length.Value)
	assert.Equal(t, field.Range{Start: 1, Length: 2}, length.Range)
	value, ok := vector.Find("Value")
	require.True(t, ok)
	assert.Equal(t, field.Range{Start: 3, Length: 3}, value.Range)

	fixed := fields[2].Tree
	require.NotNil(t, fixed)
	assert.Equal(t, field.Range{Start: 9, Length: 3}, fixed.Range)
	_, hasLength := fixed.Find("Length")
	assert.False(t, hasLength)
	assert.False(t, tree.HasReason(field.ReasonUnknownTag), "named tags are not unknown")
}

func nested(levels int) []byte {
	var inner []byte
	for i := 0; i < levels; i++ {
		inner = append([]byte{0x01, byte(len(inner))}, inner...)
	}
	return inner
}

// Nesting deeper than the limit stops that branch with a diagnostic and
// keeps the partial tree.
func TestWalkRecursionLimit(t *testing.T) {
	w := MustNew(Config{Protocol: "test", TagWidth: 1, LengthWidth: 1})
	w.Nest(1, "Container")

	out, tree, dc := walk(t, w, nested(40), dissector.Limits{MaxDepth: 20})
	assert.Equal(t, Done, out.State, "the top-level record still completes")
	assert.Equal(t, 80, out.Consumed)
	assert.True(t, tree.HasReason(field.ReasonRecursionLimit))
	assert.Equal(t, 20, tree.Depth())
	assert.Equal(t, 0, dc.Depth())

	out, tree, _ = walk(t, w, nested(10), dissector.Limits{MaxDepth: 20})
	assert.Equal(t, Done, out.State)
	assert.False(t, tree.HasReason(field.ReasonRecursionLimit))
	assert.Equal(t, 10, tree.Depth())
}

func TestWalkUnknownTagTolerance(t *testing.T) {
	w := MustNew(Config{
		Protocol:    "test",
		TagWidth:    1,
		LengthWidth: 1,
		Records:     map[uint64]Record{1: {Name: "Known", Handler: dissector.HandlerFunc(u8Value)}},
	})
	out, tree, _ := walk(t, w, []byte{0x01, 0x01, 0x2a, 0x09, 0x02, 0xbe, 0xef}, dissector.Limits{})
	require.Equal(t, Done, out.State)
	assert.Equal(t, 2, out.Records)

	known, ok := tree.Find("Known")
	require.True(t, ok)
	v, ok := known.Tree.Find("Value")
	require.True(t, ok)
	assert.Equal(t, uint64(42), v.Value)

	unknown, ok := tree.Find("Unknown TLV")
	require.True(t, ok)
	assert.Equal(t, field.Range{Start: 3, Length: 4}, unknown.Range)
	raw, ok := unknown.Tree.Find("Value")
	require.True(t, ok)
	assert.Equal(t, []byte{0xbe, 0xef}, raw.Value)
	assert.True(t, tree.HasReason(field.ReasonUnknownTag))
}

func TestWalkTrailingBytesInValue(t *testing.T) {
	w := MustNew(Config{
		Protocol:    "test",
		TagWidth:    1,
		LengthWidth: 1,
		Records:     map[uint64]Record{1: {Name: "Known", Handler: dissector.HandlerFunc(u8Value)}},
	})
	out, tree, _ := walk(t, w, []byte{0x01, 0x03, 0x2a, 0x00, 0x00}, dissector.Limits{})
	assert.Equal(t, Done, out.State)
	assert.True(t, tree.HasReason(field.ReasonTrailingData))
	rest, ok := tree.Find("Undecoded")
	require.True(t, ok)
	assert.Equal(t, field.Range{Start: 3, Length: 2}, rest.Range)
}

func TestWrongLengthKeepsAvailableAndExpectedApart(t *testing.T) {
	buf := []byte{0x0a, 0x0b, 0x0c, 0x0d}
	tree := field.NewTree("test", "Test", field.Range{Start: 0, Length: len(buf)})
	err := WrongLength(cursor.New(buf), tree, 5)

	var lm *errors.LengthMismatchError
	require.True(t, stderrors.As(err, &lm))
	assert.Equal(t, 4, lm.Declared)
	assert.Equal(t, 4, lm.Available)
	assert.Equal(t, 5, lm.Expected)
	assert.Contains(t, lm.Error(), "available 4, expected 5")

	v, ok := tree.Find("Value")
	require.True(t, ok)
	assert.Equal(t, field.Range{Start: 0, Length: 4}, v.Range)
}

func TestWalkTruncatedHeader(t *testing.T) {
	w := MustNew(Config{Protocol: "test", TagWidth: 2, LengthWidth: 2, Endian: cursor.LittleEndian})
	out, tree, _ := walk(t, w, []byte{0x01, 0x00, 0x00, 0x00, 0x01, 0x00, 0x05}, dissector.Limits{})
	assert.Equal(t, Failed, out.State)
	assert.Equal(t, 1, out.Records)
	assert.True(t, stderrors.Is(out.Err, errors.ErrTruncated))
	assert.Equal(t, 7, out.Consumed)
	undecoded, ok := tree.Find("Undecoded")
	require.True(t, ok)
	assert.Equal(t, field.Range{Start: 4, Length: 3}, undecoded.Range)
}

func TestWalkLengthIncludesHeaderWithEndMark(t *testing.T) {
	w := MustNew(Config{
		Protocol:             "test",
		TagWidth:             1,
		LengthWidth:          1,
		LengthIncludesHeader: true,
		HasEnd:               true,
		EndTag:               0,
	})
	buf := []byte{0x02, 0x04, 0xaa, 0xbb, 0x00, 0xff}
	dc := dissector.NewContext(emptyRegistry(t), dissector.Frame{}, dissector.Limits{})
	tree := field.NewTree("test", "Test", field.Range{Start: 0, Length: len(buf)})
	cur := cursor.New(buf)
	out := w.Walk(dc, cur, tree)

	assert.Equal(t, Done, out.State)
	assert.Equal(t, 2, out.Records)
	assert.Equal(t, 5, out.Consumed)
	assert.Equal(t, 1, cur.Remaining(), "bytes after the end mark belong to the caller")
	_, ok := tree.Find("End")
	assert.True(t, ok)

	out, tree, _ = walk(t, w, []byte{0x02, 0x01, 0xaa}, dissector.Limits{})
	assert.Equal(t, Done, out.State)
	assert.True(t, stderrors.Is(out.Err, errors.ErrLengthMismatch))
	assert.True(t, tree.HasReason(field.ReasonLengthMismatch))
}

func TestWalkPackedHeader(t *testing.T) {
	w := MustNew(Config{Protocol: "lldp", Packed: true, HasEnd: true, EndTag: 0, Names: codec.ValueMap{1: "Chassis ID"}})
	buf := []byte{
		0x02, 0x07, 0x04, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
		0x00, 0x00,
	}
	out, tree, _ := walk(t, w, buf, dissector.Limits{})
	assert.Equal(t, Done, out.State)
	assert.Equal(t, 2, out.Records)
	assert.Equal(t, len(buf), out.Consumed)

	chassis, ok := tree.Find("Chassis ID")
	require.True(t, ok)
	assert.Equal(t, field.Range{Start: 0, Length: 9}, chassis.Range)
	typ, _ := chassis.Tree.Find("Type")
	assert.Equal(t, uint64(1), typ.Value)
	length, _ := chassis.Tree.Find("Length")
	assert.Equal(t, uint64(7), length.Value)
}

func TestWalkStepBudget(t *testing.T) {
	w := MustNew(Config{Protocol: "test", TagWidth: 1, LengthWidth: 1})
	out, tree, dc := walk(t, w, []byte{1, 0, 2, 0, 3, 0}, dissector.Limits{StepBudget: 2})
	assert.Equal(t, Failed, out.State)
	assert.Equal(t, 2, out.Records)
	assert.True(t, tree.HasReason(field.ReasonStepBudget))
	assert.Equal(t, 3, dc.Steps())
}

func TestWalkRegistryTable(t *testing.T) {
	b := dissector.NewBuilder()
	b.RegisterTable("sample.tlv", dissector.KeyUint8)
	b.AddUint("sample.tlv", 3, b.RegisterProtocol("sample.count", "Count", dissector.HandlerFunc(u8Value)))
	reg, err := b.Build()
	require.NoError(t, err)

	w := MustNew(Config{Protocol: "sample", TagWidth: 1, LengthWidth: 1, Table: "sample.tlv"})
	buf := []byte{0x03, 0x01, 0x09}
	dc := dissector.NewContext(reg, dissector.Frame{}, dissector.Limits{})
	tree := field.NewTree("sample", "Sample", field.Range{Start: 0, Length: len(buf)})
	out := w.Walk(dc, cursor.New(buf), tree)
	require.Equal(t, Done, out.State)
	rec, ok := tree.Find("Count")
	require.True(t, ok)
	v, ok := rec.Tree.Find("Value")
	require.True(t, ok)
	assert.Equal(t, uint64(9), v.Value)
	assert.False(t, tree.HasReason(field.ReasonUnknownTag))
}

func TestWalkIdempotent(t *testing.T) {
	w := MustNew(Config{Protocol: "test", TagWidth: 1, LengthWidth: 1})
	w.Nest(1, "Container")
	buf := append(nested(5), 0x07, 0x02, 0x01)
	_, first, _ := walk(t, w, buf, dissector.Limits{})
	_, second, _ := walk(t, w, buf, dissector.Limits{})
	h1, err := first.Hash()
	require.NoError(t, err)
	h2, err := second.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, first.Snapshot(), second.Snapshot())
}

func checkContainment(t *testing.T, tree *field.Tree) {
	t.Helper()
	for _, f := range tree.Fields() {
		if f.Kind == field.KindExpert {
			continue
		}
		assert.True(t, tree.Range.Contains(f.Range), "%s %s not in %s", f.Label, f.Range, tree.Range)
		if f.Tree != nil {
			checkContainment(t, f.Tree)
		}
	}
}

// Random and mutated buffers never panic, always terminate within the
// byte budget, and every child range stays inside its parent.
func TestWalkRandomInput(t *testing.T) {
	layouts := []Config{
		{Protocol: "a", TagWidth: 1, LengthWidth: 1},
		{Protocol: "b", TagWidth: 1, LengthWidth: 2, Lengths: map[uint64]LengthRule{6: {Width: 2}, 7: {Fixed: 3}}},
		{Protocol: "c", TagWidth: 2, LengthWidth: 4, Endian: cursor.LittleEndian},
		{Protocol: "d", TagWidth: 1, LengthWidth: 1, LengthIncludesHeader: true, HasEnd: true},
		{Protocol: "e", Packed: true, HasEnd: true},
	}
	rng := rand.New(rand.NewPCG(1, 2))
	for _, cfg := range layouts {
		w := MustNew(cfg)
		w.Nest(1, "Container")
		w.cfg.Records[2] = Record{Name: "Byte", Handler: dissector.HandlerFunc(u8Value)}
		for i := 0; i < 500; i++ {
			buf := make([]byte, rng.IntN(64))
			for j := range buf {
				buf[j] = byte(rng.IntN(8))
				if rng.IntN(4) == 0 {
					buf[j] = byte(rng.Uint32())
				}
			}
			var steps int
			w.cfg.Trace = func(s State, _ int) {
				if s == ValueDispatched {
					steps++
				}
			}
			var (
				out  Outcome
				tree *field.Tree
			)
			require.NotPanics(t, func() {
				out, tree, _ = walk(t, w, buf, dissector.Limits{MaxDepth: 16})
			})
			assert.LessOrEqual(t, steps, len(buf), "%s: %x", cfg.Protocol, buf)
			assert.Contains(t, []State{Done, Failed}, out.State)
			assert.False(t, tree.HasReason(field.ReasonRangeViolation), "%s: %x", cfg.Protocol, buf)
			checkContainment(t, tree)
			if !cfg.HasEnd {
				assert.Equal(t, len(buf), out.Consumed)
			}
		}
	}
}
