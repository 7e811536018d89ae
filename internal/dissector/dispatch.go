package dissector

import (
	"fmt"

	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/field"
)

// Run invokes h on cur, converting a returned error or a panic into a
// diagnostic at the failure offset. This is the only place handler
// failures are caught; nothing escapes it.
func (dc *Context) Run(h Handler, cur *cursor.Cursor, tree *field.Tree) {
	defer func() {
		if r := recover(); r != nil && !tree.Frozen() {
			tree.AddExpert(field.Expert{
				Reason:   field.ReasonMalformed,
				Severity: field.SeverityError,
				Offset:   cur.Offset(),
				Message:  fmt.Sprintf("dissector failure: %v", r),
			})
		}
	}()
	if err := h.Dissect(dc, cur, tree); err != nil {
		tree.Diagnose(err, cur.Offset())
	}
}

// Call runs protocol p over the rest of cur inside a new subtree of
// parent. Whatever p leaves unread is shown as Undecoded, so cur is always
// consumed to its limit. Protocol nesting counts against the recursion
// limit.
func (dc *Context) Call(p *Protocol, cur *cursor.Cursor, parent *field.Tree) *field.Tree {
	sub, _ := cur.Sub(cur.Remaining())
	t := parent.AddTree(p.Name, p.Title, field.Range{Start: sub.Offset(), Length: sub.Remaining()})
	if err := dc.Enter(sub.Offset()); err != nil {
		t.Diagnose(err, sub.Offset())
		Undecoded(sub, t)
		_ = cur.Advance(sub.Consumed())
		return t
	}
	defer dc.Leave()
	if p.Name != DataProtocol {
		dc.SetProtocol(p.Column())
	}
	dc.Run(p.Handler, sub, t)
	if sub.Remaining() > 0 {
		// A protocol that stopped early without saying why gets a note;
		// otherwise its own diagnostic explains the remainder.
		at, quiet := sub.Offset(), len(t.Experts()) == 0
		n := Undecoded(sub, t)
		if quiet {
			t.Note(field.ReasonTrailingData, at, "%d bytes not decoded by %s", n, p.Name)
		}
	}
	_ = cur.Advance(sub.Consumed())
	return t
}

// Undecoded adds the rest of cur to tree as one opaque field and consumes
// it. It returns the number of bytes shown.
func Undecoded(cur *cursor.Cursor, tree *field.Tree) int {
	n := cur.Remaining()
	if n == 0 {
		return 0
	}
	start := cur.Offset()
	rest := cur.Rest()
	_ = cur.Advance(n)
	tree.Add(field.Field{
		Label:   "Undecoded",
		Kind:    field.KindBytes,
		Range:   field.Range{Start: start, Length: n},
		Value:   rest,
		Display: fmt.Sprintf("%d bytes", n),
	})
	return n
}

// TryUint dispatches cur to the protocol bound to key in table. It
// reports false, without touching cur or parent, when nothing is bound.
func (dc *Context) TryUint(table string, key uint64, cur *cursor.Cursor, parent *field.Tree) (*field.Tree, bool) {
	p, ok := dc.Registry.LookupUint(table, key)
	if !ok {
		return nil, false
	}
	return dc.Call(p, cur, parent), true
}

// TryString dispatches cur through a string-keyed table.
func (dc *Context) TryString(table, key string, cur *cursor.Cursor, parent *field.Tree) (*field.Tree, bool) {
	p, ok := dc.Registry.LookupString(table, key)
	if !ok {
		return nil, false
	}
	return dc.Call(p, cur, parent), true
}

// TryHeuristics offers cur to each matcher of the heuristic list and
// dispatches to the first that accepts it. A matcher that panics is
// treated as a rejection.
func (dc *Context) TryHeuristics(list string, cur *cursor.Cursor, parent *field.Tree) (*field.Tree, bool) {
	for _, h := range dc.Registry.heuristics[list] {
		if safeMatch(h.match, cur.Clone()) {
			return dc.Call(h.protocol, cur, parent), true
		}
	}
	return nil, false
}

func safeMatch(fn HeuristicFunc, cur *cursor.Cursor) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return fn(cur)
}

// CallData shows the rest of cur as raw bytes.
func (dc *Context) CallData(cur *cursor.Cursor, parent *field.Tree) *field.Tree {
	return dc.Call(dc.Registry.data, cur, parent)
}

// DispatchUint tries table, then the heuristic list of the same name,
// then falls back to raw data. Empty payloads add nothing.
func (dc *Context) DispatchUint(table string, key uint64, cur *cursor.Cursor, parent *field.Tree) *field.Tree {
	if cur.Remaining() == 0 {
		return nil
	}
	if t, ok := dc.TryUint(table, key, cur, parent); ok {
		return t
	}
	if t, ok := dc.TryHeuristics(table, cur, parent); ok {
		return t
	}
	return dc.CallData(cur, parent)
}
