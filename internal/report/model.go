package report

import (
	"encoding/hex"
	"time"

	"github.com/tonylturner/tlvscope/internal/engine"
	"github.com/tonylturner/tlvscope/internal/field"
)

// RunReport is the JSON document of one tlvscope run.
type RunReport struct {
	GeneratedAt string        `json:"generated_at"`
	Version     string        `json:"tlvscope_version"`
	Files       []FileReport  `json:"files"`
	Summary     SummaryReport `json:"summary"`
}

// NewRunReport starts a report stamped with the current UTC time.
func NewRunReport(version string) *RunReport {
	return &RunReport{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Version:     version,
	}
}

// FileReport holds the frames dissected from one capture file.
type FileReport struct {
	Path   string        `json:"path"`
	Error  string        `json:"error,omitempty"`
	Frames []FrameReport `json:"frames"`
}

// FrameReport is one dissected frame.
type FrameReport struct {
	Number      int        `json:"number"`
	Timestamp   string     `json:"timestamp,omitempty"`
	LinkType    uint32     `json:"link_type"`
	Length      int        `json:"length"`
	Protocol    string     `json:"protocol"`
	Info        string     `json:"info,omitempty"`
	Malformed   bool       `json:"malformed"`
	Diagnostics []string   `json:"diagnostics,omitempty"`
	Tree        field.Node `json:"tree"`
	Hex         string     `json:"hex,omitempty"`
}

// NewFrameReport converts a result. withHex adds the frame bytes.
func NewFrameReport(r engine.Result, withHex bool) FrameReport {
	fr := FrameReport{
		Number:    r.Frame.Number,
		LinkType:  r.Frame.LinkType,
		Length:    len(r.Frame.Data),
		Protocol:  r.Protocol,
		Info:      r.Info,
		Malformed: r.Malformed(),
		Tree:      r.Tree.Snapshot(),
	}
	if !r.Frame.Timestamp.IsZero() {
		fr.Timestamp = r.Frame.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	for _, d := range r.Diagnostics {
		fr.Diagnostics = append(fr.Diagnostics, d.String())
	}
	if withHex {
		fr.Hex = hex.EncodeToString(r.Frame.Data)
	}
	return fr
}
