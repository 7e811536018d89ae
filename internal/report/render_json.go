package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// WriteJSONFile marshals a run report to JSON and writes it to disk.
func WriteJSONFile(path string, report *RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// WriteJSON writes a run report as indented JSON to an io.Writer.
func WriteJSON(w io.Writer, report *RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteFrameJSON writes one frame as a single line of JSON, for output
// that is streamed while the capture is read.
func WriteFrameJSON(w io.Writer, frame FrameReport) error {
	if err := json.NewEncoder(w).Encode(frame); err != nil {
		return fmt.Errorf("encode frame %d: %w", frame.Number, err)
	}
	return nil
}
