package field

import (
	"encoding/hex"
	"fmt"

	"github.com/mitchellh/hashstructure/v2"
)

// Tree is an ordered list of fields decoded from one record, in buffer
// order. A tree is built while its handler runs and frozen afterwards;
// presentation code only reads frozen trees.
type Tree struct {
	Protocol string
	Label    string
	Range    Range
	fields   []Field
	frozen   bool
}

// NewTree returns an empty tree covering r.
func NewTree(protocol, label string, r Range) *Tree {
	return &Tree{Protocol: protocol, Label: label, Range: r}
}

func (t *Tree) mustBeOpen() {
	if t.frozen {
		panic(fmt.Sprintf("field: add to frozen tree %q", t.Label))
	}
}

// Add appends f. A field that does not lie inside the tree's range is a
// dissector bug; it is still added, followed by a RangeViolation
// diagnostic, so the output shows what happened instead of crashing.
func (t *Tree) Add(f Field) {
	t.mustBeOpen()
	t.fields = append(t.fields, f)
	if f.Kind != KindExpert && !t.Range.Contains(f.Range) {
		t.fields = append(t.fields, expertField(Expert{
			Reason:   ReasonRangeViolation,
			Severity: SeverityError,
			Offset:   f.Range.Start,
			Message:  fmt.Sprintf("field %q [%s] outside parent %q [%s]", f.Label, f.Range, t.Label, t.Range),
		}))
	}
}

// AddTree appends a nested tree covering r and returns it for filling.
func (t *Tree) AddTree(protocol, label string, r Range) *Tree {
	child := NewTree(protocol, label, r)
	t.Add(Field{Label: label, Kind: KindTree, Range: r, Tree: child})
	return child
}

// AddExpert appends a diagnostic.
func (t *Tree) AddExpert(e Expert) {
	t.mustBeOpen()
	t.fields = append(t.fields, expertField(e))
}

// Diagnose appends the diagnostic for err.
func (t *Tree) Diagnose(err error, fallbackOffset int) {
	t.AddExpert(ExpertFromError(err, fallbackOffset))
}

// Note appends an informational diagnostic.
func (t *Tree) Note(reason Reason, offset int, format string, v ...interface{}) {
	t.AddExpert(Expert{Reason: reason, Severity: SeverityNote, Offset: offset, Message: fmt.Sprintf(format, v...)})
}

func expertField(e Expert) Field {
	return Field{
		Label:   e.Reason.String(),
		Kind:    KindExpert,
		Range:   Range{Start: e.Offset},
		Display: e.Message,
		Expert:  &e,
	}
}

// SetRange adjusts the tree's span before it is frozen, for records whose
// length is only known after decoding. The field entry in the parent
// is not updated; callers that need both should size the tree up front.
func (t *Tree) SetRange(r Range) {
	t.mustBeOpen()
	t.Range = r
}

// Fields returns the children in insertion order. The slice must not be
// modified.
func (t *Tree) Fields() []Field { return t.fields[:len(t.fields):len(t.fields)] }

// Len returns the number of direct children.
func (t *Tree) Len() int { return len(t.fields) }

// Freeze marks the tree and every subtree read-only.
func (t *Tree) Freeze() {
	if t.frozen {
		return
	}
	t.frozen = true
	for _, f := range t.fields {
		if f.Tree != nil {
			f.Tree.Freeze()
		}
	}
}

// Frozen reports whether Freeze has been called.
func (t *Tree) Frozen() bool { return t.frozen }

// Walk visits every field depth-first. Returning false from fn skips the
// field's subtree.
func (t *Tree) Walk(fn func(depth int, f Field) bool) {
	t.walk(0, fn)
}

func (t *Tree) walk(depth int, fn func(int, Field) bool) {
	for _, f := range t.fields {
		if fn(depth, f) && f.Tree != nil {
			f.Tree.walk(depth+1, fn)
		}
	}
}

// Experts returns every diagnostic in the tree, depth-first.
func (t *Tree) Experts() []Expert {
	var out []Expert
	t.Walk(func(_ int, f Field) bool {
		if f.Expert != nil {
			out = append(out, *f.Expert)
		}
		return true
	})
	return out
}

// HasReason reports whether any diagnostic of the given reason exists.
func (t *Tree) HasReason(r Reason) bool {
	for _, e := range t.Experts() {
		if e.Reason == r {
			return true
		}
	}
	return false
}

// Find returns the first field, depth-first, with the given label.
func (t *Tree) Find(label string) (Field, bool) {
	var out Field
	found := false
	t.Walk(func(_ int, f Field) bool {
		if found {
			return false
		}
		if f.Label == label {
			out, found = f, true
			return false
		}
		return true
	})
	return out, found
}

// Depth returns the maximum nesting of subtrees below t.
func (t *Tree) Depth() int {
	max := 0
	for _, f := range t.fields {
		if f.Tree != nil {
			if d := f.Tree.Depth() + 1; d > max {
				max = d
			}
		}
	}
	return max
}

// Node is a plain, serializable copy of a tree or field.
type Node struct {
	Label    string `json:"label"`
	Protocol string `json:"protocol,omitempty"`
	Kind     string `json:"kind"`
	Start    int    `json:"start"`
	Length   int    `json:"length"`
	Display  string `json:"display,omitempty"`
	Value    any    `json:"value,omitempty"`
	Severity string `json:"severity,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Children []Node `json:"children,omitempty"`
}

// Snapshot copies the tree into Nodes. Byte values are hex encoded.
func (t *Tree) Snapshot() Node {
	n := Node{
		Label:    t.Label,
		Protocol: t.Protocol,
		Kind:     KindTree.String(),
		Start:    t.Range.Start,
		Length:   t.Range.Length,
	}
	for _, f := range t.fields {
		n.Children = append(n.Children, snapshotField(f))
	}
	return n
}

func snapshotField(f Field) Node {
	if f.Tree != nil {
		n := f.Tree.Snapshot()
		n.Label = f.Label
		n.Display = f.Display
		return n
	}
	n := Node{
		Label:   f.Label,
		Kind:    f.Kind.String(),
		Start:   f.Range.Start,
		Length:  f.Range.Length,
		Display: f.Display,
		Value:   f.Value,
	}
	if b, ok := f.Value.([]byte); ok {
		n.Value = hex.EncodeToString(b)
	}
	if f.Expert != nil {
		n.Severity = f.Expert.Severity.String()
		n.Reason = f.Expert.Reason.String()
		n.Value = nil
	}
	return n
}

// Hash returns a structural hash of the tree. Two dissections of the same
// buffer with the same registry hash equal.
func (t *Tree) Hash() (uint64, error) {
	h, err := hashstructure.Hash(t.Snapshot(), hashstructure.FormatV2, nil)
	if err != nil {
		return 0, fmt.Errorf("hash tree: %w", err)
	}
	return h, nil
}
