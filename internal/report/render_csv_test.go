package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewCSVWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame("a.pcap", sampleResult(1, []byte{0x01, 0x02}, false)))
	require.NoError(t, w.WriteFrame("a.pcap", sampleResult(2, []byte{0x01}, true)))
	require.NoError(t, w.Close())

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"a.pcap", "1", "2024-03-01T12:00:00Z", "1", "2", "DEMO", "Hello", "false", ""}, rows[1])
	assert.Equal(t, "true", rows[2][7])
	assert.Equal(t, "[warn] LengthMismatch at offset 1: declared 9 bytes", rows[2][8])
}

func TestNewCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.csv")
	w, err := NewCSVFile(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame("b.pcap", sampleResult(7, []byte{0x01}, false)))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file,number,timestamp")
	assert.Contains(t, string(data), "b.pcap,7,")

	_, err = NewCSVFile(filepath.Join(t.TempDir(), "missing", "x.csv"))
	assert.Error(t, err)
}
