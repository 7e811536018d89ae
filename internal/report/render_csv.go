package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tonylturner/tlvscope/internal/engine"
)

var csvHeader = []string{
	"file",
	"number",
	"timestamp",
	"link_type",
	"length",
	"protocol",
	"info",
	"malformed",
	"diagnostics",
}

// CSVWriter writes one row per frame, a flat index of a run that
// spreadsheets and scripts can load.
type CSVWriter struct {
	file *os.File
	w    *csv.Writer
}

// NewCSVFile creates path and writes the header row.
func NewCSVFile(path string) (*CSVWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create CSV file: %w", err)
	}
	cw, err := NewCSVWriter(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	cw.file = file
	return cw, nil
}

// NewCSVWriter writes rows to w, starting with the header row.
func NewCSVWriter(w io.Writer) (*CSVWriter, error) {
	cw := &CSVWriter{w: csv.NewWriter(w)}
	if err := cw.w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write CSV header: %w", err)
	}
	return cw, nil
}

// WriteFrame appends the row for one result. Diagnostics are joined with
// "; ".
func (cw *CSVWriter) WriteFrame(path string, r engine.Result) error {
	fr := NewFrameReport(r, false)
	record := []string{
		path,
		strconv.Itoa(fr.Number),
		fr.Timestamp,
		strconv.FormatUint(uint64(fr.LinkType), 10),
		strconv.Itoa(fr.Length),
		fr.Protocol,
		fr.Info,
		strconv.FormatBool(fr.Malformed),
		strings.Join(fr.Diagnostics, "; "),
	}
	if err := cw.w.Write(record); err != nil {
		return fmt.Errorf("write CSV record: %w", err)
	}
	return nil
}

// Close flushes the rows and closes the file, if the writer owns one.
func (cw *CSVWriter) Close() error {
	cw.w.Flush()
	err := cw.w.Error()
	if cw.file != nil {
		if cerr := cw.file.Close(); err == nil {
			err = cerr
		}
		cw.file = nil
	}
	return err
}
