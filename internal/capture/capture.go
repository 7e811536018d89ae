// Package capture reads frames from pcap and pcapng files.
package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/tonylturner/tlvscope/internal/dissector"
)

// Format identifies the container of a capture file.
type Format string

const (
	FormatPcap   Format = "pcap"
	FormatPcapNG Format = "pcapng"
)

const magicPcapNG = 0x0a0d0d0a

var pcapMagics = map[uint32]bool{
	0xa1b2c3d4: true, // microsecond
	0xa1b23c4d: true, // nanosecond
	0xd4c3b2a1: true,
	0x4d3cb2a1: true,
}

type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Reader yields the frames of one capture file in order.
type Reader struct {
	Path   string
	Format Format

	file *os.File
	src  packetSource
	ng   *pcapgo.NgReader
	next int
}

// Open sniffs the magic number of path and opens a pcap or pcapng reader.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	r, err := newReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

func newReader(in io.Reader, path string) (*Reader, error) {
	br := bufio.NewReader(in)
	head, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("%s: read magic: %w", path, err)
	}
	r := &Reader{Path: path, next: 1}
	switch magic := binary.BigEndian.Uint32(head); {
	case magic == magicPcapNG:
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("%s: pcapng header: %w", path, err)
		}
		r.Format, r.src, r.ng = FormatPcapNG, ng, ng
	case pcapMagics[magic]:
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%s: pcap header: %w", path, err)
		}
		r.Format, r.src = FormatPcap, pr
	default:
		return nil, fmt.Errorf("%s: not a pcap or pcapng file (magic 0x%08x)", path, magic)
	}
	return r, nil
}

// LinkType is the link type of the file, or of its first interface for
// pcapng.
func (r *Reader) LinkType() uint32 { return uint32(r.src.LinkType()) }

// Next returns the next frame, numbered from 1, or io.EOF after the last.
// A record cut short at the end of the file is reported as
// io.ErrUnexpectedEOF.
func (r *Reader) Next() (dissector.Frame, error) {
	data, ci, err := r.src.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return dissector.Frame{}, io.EOF
		}
		return dissector.Frame{}, fmt.Errorf("%s: frame %d: %w", r.Path, r.next, err)
	}
	lt := r.src.LinkType()
	if r.ng != nil {
		if intf, err := r.ng.Interface(ci.InterfaceIndex); err == nil {
			lt = intf.LinkType
		}
	}
	f := dissector.Frame{
		Number:     r.next,
		Timestamp:  ci.Timestamp,
		LinkType:   uint32(lt),
		Data:       data,
		OrigLength: ci.Length,
	}
	r.next++
	return f, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// ReadFrames reads up to max frames of path; max <= 0 reads them all. On a
// read error the frames decoded so far are returned with the error.
func ReadFrames(path string, max int) ([]dissector.Frame, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var frames []dissector.Frame
	for max <= 0 || len(frames) < max {
		f, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// CollectFiles returns sorted pcap and pcapng files under root.
func CollectFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".pcap" || ext == ".pcapng" || ext == ".cap" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk captures: %w", err)
	}
	sort.Strings(files)
	return files, nil
}
