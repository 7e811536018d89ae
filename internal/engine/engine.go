// Package engine runs dissections of whole frames over a frozen registry.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/field"
)

// LinkTypeTable is the table frames enter the registry through, keyed by
// pcap link type.
const LinkTypeTable = "link.type"

// DefaultWorkers is the DissectAll concurrency when none is configured.
const DefaultWorkers = 4

// Options configure an Engine.
type Options struct {
	Limits  dissector.Limits
	Workers int
	// OnResult, if set, is called once per frame by DissectAll, from
	// worker goroutines.
	OnResult func(Result)
}

// Result is the outcome of dissecting one frame. The tree is frozen.
type Result struct {
	Frame       dissector.Frame
	Tree        *field.Tree
	Protocol    string
	Info        string
	Diagnostics []field.Expert
}

// Malformed reports whether any diagnostic is a warning or an error.
func (r Result) Malformed() bool {
	for _, d := range r.Diagnostics {
		if d.Severity >= field.SeverityWarn {
			return true
		}
	}
	return false
}

// Engine dissects frames. It is safe for concurrent use.
type Engine struct {
	reg  *dissector.Registry
	opts Options
}

// New returns an engine over reg.
func New(reg *dissector.Registry, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Engine{reg: reg, opts: opts}
}

// Registry returns the engine's registry.
func (e *Engine) Registry() *dissector.Registry { return e.reg }

func frameTree(f dissector.Frame, reg *dissector.Registry) *field.Tree {
	wire := f.OrigLength
	if wire == 0 {
		wire = len(f.Data)
	}
	root := field.NewTree("frame", fmt.Sprintf("Frame %d: %d bytes on wire, %d bytes captured", f.Number, wire, len(f.Data)),
		field.Range{Start: 0, Length: len(f.Data)})
	meta := func(label string, kind field.Kind, v any, display string) {
		root.Add(field.Field{Label: label, Kind: kind, Value: v, Display: display})
	}
	meta("Frame Number", field.KindUint, uint64(f.Number), strconv.Itoa(f.Number))
	if !f.Timestamp.IsZero() {
		ts := f.Timestamp.UTC().Format(time.RFC3339Nano)
		meta("Arrival Time", field.KindString, ts, ts)
	}
	meta("Frame Length", field.KindUint, uint64(wire), fmt.Sprintf("%d bytes", wire))
	meta("Capture Length", field.KindUint, uint64(len(f.Data)), fmt.Sprintf("%d bytes", len(f.Data)))
	meta("Encapsulation", field.KindUint, uint64(f.LinkType), reg.LookupOrDefault(LinkTypeTable, uint64(f.LinkType), "Unknown (%d)"))
	return root
}

func finish(dc *dissector.Context, f dissector.Frame, root *field.Tree) Result {
	root.Freeze()
	proto := dc.Protocol()
	if proto == "" {
		proto = "DATA"
	}
	return Result{
		Frame:       f,
		Tree:        root,
		Protocol:    proto,
		Info:        dc.Info(),
		Diagnostics: root.Experts(),
	}
}

// Dissect decodes one frame, starting at its link type. It never fails:
// problems in the frame are reported as diagnostics in the tree.
func (e *Engine) Dissect(f dissector.Frame) Result {
	dc := dissector.NewContext(e.reg, f, e.opts.Limits)
	root := frameTree(f, e.reg)
	dc.DispatchUint(LinkTypeTable, uint64(f.LinkType), cursor.New(f.Data), root)
	return finish(dc, f, root)
}

// DissectAll decodes frames on a bounded pool of workers and returns the
// results in input order. Cancelling ctx stops scheduling further
// frames; the results gathered so far are returned with ctx's error.
func (e *Engine) DissectAll(ctx context.Context, frames []dissector.Frame) ([]Result, error) {
	results := make([]Result, len(frames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	done := 0
	for i := range frames {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := e.Dissect(frames[i])
			results[i] = r
			if e.opts.OnResult != nil {
				e.opts.OnResult(r)
			}
			return nil
		})
		done++
	}
	if err := g.Wait(); err != nil {
		return compact(results), err
	}
	if err := ctx.Err(); err != nil || done < len(frames) {
		if err == nil {
			err = context.Canceled
		}
		return compact(results), err
	}
	return results, nil
}

// compact drops the slots of frames that were never dissected.
func compact(results []Result) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Tree != nil {
			out = append(out, r)
		}
	}
	return out
}

// Target selects what Decode hands a raw buffer to: a protocol by name,
// or the protocol bound to Key in Table.
type Target struct {
	Protocol string
	Table    string
	Key      string
}

func (t Target) String() string {
	if t.Protocol != "" {
		return t.Protocol
	}
	return t.Table + "=" + t.Key
}

// Decode dissects a bare payload that did not come from a capture.
// Unlike Dissect it fails when the target does not resolve to a protocol.
func (e *Engine) Decode(t Target, data []byte) (Result, error) {
	p, err := e.resolve(t)
	if err != nil {
		return Result{}, err
	}
	f := dissector.Frame{Number: 1, Data: data}
	dc := dissector.NewContext(e.reg, f, e.opts.Limits)
	root := field.NewTree("frame", fmt.Sprintf("Payload: %d bytes", len(data)), field.Range{Start: 0, Length: len(data)})
	dc.Call(p, cursor.New(data), root)
	return finish(dc, f, root), nil
}

func (e *Engine) resolve(t Target) (*dissector.Protocol, error) {
	if t.Protocol != "" {
		p, ok := e.reg.FindProtocol(t.Protocol)
		if !ok {
			return nil, fmt.Errorf("unknown protocol %q", t.Protocol)
		}
		return p, nil
	}
	kt, ok := e.reg.KeyTypeOf(t.Table)
	if !ok {
		return nil, fmt.Errorf("unknown table %q", t.Table)
	}
	var (
		p     *dissector.Protocol
		found bool
	)
	if kt == dissector.KeyString {
		p, found = e.reg.LookupString(t.Table, t.Key)
	} else {
		key, err := strconv.ParseUint(t.Key, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("table %s has %s keys: %w", t.Table, kt, err)
		}
		p, found = e.reg.LookupUint(t.Table, key)
	}
	if !found {
		return nil, fmt.Errorf("nothing registered for %s", t)
	}
	return p, nil
}
