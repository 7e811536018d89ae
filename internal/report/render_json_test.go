package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *RunReport {
	rep := NewRunReport("1.0.0")
	rep.Files = []FileReport{{
		Path: "test.pcap",
		Frames: []FrameReport{
			NewFrameReport(sampleResult(1, []byte{0x01, 0x02}, true), true),
		},
	}}
	return rep
}

func TestNewFrameReport(t *testing.T) {
	fr := NewFrameReport(sampleResult(7, []byte{0x01, 0xff}, true), true)

	assert.Equal(t, 7, fr.Number)
	assert.Equal(t, "2024-03-01T12:00:00Z", fr.Timestamp)
	assert.Equal(t, 2, fr.Length)
	assert.Equal(t, "DEMO", fr.Protocol)
	assert.True(t, fr.Malformed)
	assert.Equal(t, "01ff", fr.Hex)
	require.Len(t, fr.Diagnostics, 1)
	assert.Contains(t, fr.Diagnostics[0], "LengthMismatch")
	require.Len(t, fr.Tree.Children, 2)
	assert.Equal(t, "demo", fr.Tree.Children[1].Protocol)

	assert.Empty(t, NewFrameReport(sampleResult(7, []byte{0x01}, false), false).Hex)
}

func TestWriteJSON(t *testing.T) {
	rep := sampleReport()

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, rep))

	var decoded RunReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, rep.GeneratedAt, decoded.GeneratedAt)
	assert.Equal(t, "1.0.0", decoded.Version)
	require.Len(t, decoded.Files, 1)
	require.Len(t, decoded.Files[0].Frames, 1)
	frame := decoded.Files[0].Frames[0]
	assert.Equal(t, "Hello (1)", frame.Tree.Children[1].Children[0].Display)
	assert.Equal(t, "warn", frame.Tree.Children[1].Children[1].Severity)
}

func TestWriteJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteJSONFile(path, sampleReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded RunReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "test.pcap", decoded.Files[0].Path)
}

func TestWriteFrameJSONIsOneLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrameJSON(&buf, NewFrameReport(sampleResult(1, []byte{0x01}, false), false)))
	require.NoError(t, WriteFrameJSON(&buf, NewFrameReport(sampleResult(2, []byte{0x01}, false), false)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var fr FrameReport
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &fr))
	assert.Equal(t, 2, fr.Number)
}
