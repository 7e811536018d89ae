package dissector

import (
	"fmt"
	"strings"
	"time"

	"github.com/tonylturner/tlvscope/internal/errors"
)

// DefaultMaxDepth bounds nested dissection when no limit is configured.
const DefaultMaxDepth = 100

// Frame is one captured packet as handed over by the capture layer.
type Frame struct {
	Number    int
	Timestamp time.Time
	LinkType  uint32
	Data      []byte
	// OrigLength is the on-the-wire length; zero means len(Data).
	OrigLength int
}

// Limits bound the work spent on one packet.
type Limits struct {
	MaxDepth   int // nesting limit; <= 0 selects DefaultMaxDepth
	StepBudget int // records walked per packet; <= 0 is unlimited
}

// Context carries per-packet state through every handler of one
// dissection. It is not shared between packets or goroutines.
type Context struct {
	Registry *Registry
	Frame    Frame

	limits   Limits
	depth    int
	steps    int
	protocol string
	info     []string
	ports    Ports
}

// Ports are the transport endpoints of the packet, when it has them.
type Ports struct {
	Src, Dst uint16
	Set      bool
}

// NewContext returns the context for dissecting frame with reg.
func NewContext(reg *Registry, frame Frame, limits Limits) *Context {
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = DefaultMaxDepth
	}
	return &Context{Registry: reg, Frame: frame, limits: limits}
}

// Limits returns the effective limits.
func (dc *Context) Limits() Limits { return dc.limits }

// Enter records one more level of nesting at offset. It fails without
// changing the depth once the limit would be exceeded.
func (dc *Context) Enter(offset int) error {
	if dc.depth+1 > dc.limits.MaxDepth {
		return &errors.RecursionLimitError{Offset: offset, Depth: dc.depth + 1, Limit: dc.limits.MaxDepth}
	}
	dc.depth++
	return nil
}

// Leave undoes one Enter.
func (dc *Context) Leave() {
	if dc.depth > 0 {
		dc.depth--
	}
}

// Depth returns the current nesting level.
func (dc *Context) Depth() int { return dc.depth }

// Step counts one unit of work (one TLV record) at offset and fails once
// the step budget is spent.
func (dc *Context) Step(offset int) error {
	dc.steps++
	if dc.limits.StepBudget > 0 && dc.steps > dc.limits.StepBudget {
		return &errors.StepBudgetError{Offset: offset, Budget: dc.limits.StepBudget}
	}
	return nil
}

// Steps returns the number of steps counted so far.
func (dc *Context) Steps() int { return dc.steps }

// SetProtocol sets the protocol column. The innermost dissector wins.
func (dc *Context) SetProtocol(name string) { dc.protocol = name }

// Protocol returns the protocol column.
func (dc *Context) Protocol() string { return dc.protocol }

// SetInfo replaces the info column.
func (dc *Context) SetInfo(format string, v ...interface{}) {
	dc.info = dc.info[:0]
	dc.info = append(dc.info, fmt.Sprintf(format, v...))
}

// ClearInfo empties the info column so that a dissector can build it
// from fragments.
func (dc *Context) ClearInfo() { dc.info = dc.info[:0] }

// AppendInfo adds a fragment to the info column.
func (dc *Context) AppendInfo(format string, v ...interface{}) {
	dc.info = append(dc.info, fmt.Sprintf(format, v...))
}

// SetPorts records the transport ports for dissectors above UDP or TCP.
func (dc *Context) SetPorts(src, dst uint16) {
	dc.ports = Ports{Src: src, Dst: dst, Set: true}
}

// Ports returns the transport ports set by the transport dissector.
func (dc *Context) Ports() Ports { return dc.ports }

// Info returns the info column.
func (dc *Context) Info() string { return strings.Join(dc.info, ", ") }
