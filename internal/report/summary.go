package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tonylturner/tlvscope/internal/engine"
)

// Summary accumulates run statistics. It is safe for concurrent use, so it
// can be fed from engine.Options.OnResult.
type Summary struct {
	mu          sync.Mutex
	files       int
	frames      int
	bytes       uint64
	malformed   int
	protocols   map[string]int
	diagnostics map[string]int
	trees       map[uint64]struct{}
	started     time.Time
}

// SummaryReport is the JSON form of a Summary.
type SummaryReport struct {
	Files       int            `json:"files"`
	Frames      int            `json:"frames"`
	Bytes       uint64         `json:"bytes"`
	Malformed   int            `json:"malformed_frames"`
	Distinct    int            `json:"distinct_trees"`
	Protocols   map[string]int `json:"protocols,omitempty"`
	Diagnostics map[string]int `json:"diagnostics,omitempty"`
	ElapsedMs   int64          `json:"elapsed_ms"`
}

// NewSummary starts an empty summary.
func NewSummary() *Summary {
	return &Summary{
		protocols:   make(map[string]int),
		diagnostics: make(map[string]int),
		trees:       make(map[uint64]struct{}),
		started:     time.Now(),
	}
}

// AddFile counts one input file.
func (s *Summary) AddFile() {
	s.mu.Lock()
	s.files++
	s.mu.Unlock()
}

// Add records one dissected frame. Frames whose trees hash equal count
// once towards the distinct tree total.
func (s *Summary) Add(r engine.Result) {
	h, err := r.Tree.Hash()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	s.bytes += uint64(len(r.Frame.Data))
	if r.Malformed() {
		s.malformed++
	}
	s.protocols[r.Protocol]++
	for _, d := range r.Diagnostics {
		s.diagnostics[d.Reason.String()]++
	}
	if err == nil {
		s.trees[h] = struct{}{}
	}
}

// Report returns a snapshot of the counters.
func (s *Summary) Report() SummaryReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SummaryReport{
		Files:       s.files,
		Frames:      s.frames,
		Bytes:       s.bytes,
		Malformed:   s.malformed,
		Distinct:    len(s.trees),
		Protocols:   copyCounts(s.protocols),
		Diagnostics: copyCounts(s.diagnostics),
		ElapsedMs:   time.Since(s.started).Milliseconds(),
	}
}

func copyCounts(m map[string]int) map[string]int {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type count struct {
	name string
	n    int
}

// byCount orders counts largest first, then by name.
func byCount(m map[string]int) []count {
	out := make([]count, 0, len(m))
	for k, v := range m {
		out = append(out, count{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].name < out[j].name
	})
	return out
}

// WriteSummary writes a human-readable run summary.
func WriteSummary(w io.Writer, r SummaryReport) {
	var sb strings.Builder
	sb.WriteString("Summary:\n")
	fmt.Fprintf(&sb, "  Files: %s\n", humanize.Comma(int64(r.Files)))
	fmt.Fprintf(&sb, "  Frames: %s (%s)\n", humanize.Comma(int64(r.Frames)), humanize.Bytes(r.Bytes))
	fmt.Fprintf(&sb, "  Malformed frames: %s\n", humanize.Comma(int64(r.Malformed)))
	fmt.Fprintf(&sb, "  Distinct trees: %s\n", humanize.Comma(int64(r.Distinct)))
	if len(r.Protocols) > 0 {
		sb.WriteString("  Protocols:\n")
		for _, c := range byCount(r.Protocols) {
			fmt.Fprintf(&sb, "    %s: %s\n", c.name, humanize.Comma(int64(c.n)))
		}
	}
	if len(r.Diagnostics) > 0 {
		sb.WriteString("  Diagnostics:\n")
		for _, c := range byCount(r.Diagnostics) {
			fmt.Fprintf(&sb, "    %s: %s\n", c.name, humanize.Comma(int64(c.n)))
		}
	}
	fmt.Fprintf(&sb, "  Elapsed: %s\n", time.Duration(r.ElapsedMs)*time.Millisecond)
	io.WriteString(w, sb.String())
}
