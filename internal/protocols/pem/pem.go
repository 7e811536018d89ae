// Package pem decodes RFC 7468 textual encodings: base64 bodies between
// "-----BEGIN label-----" and "-----END label-----" lines.
package pem

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/tonylturner/tlvscope/internal/codec"
	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/field"
)

// MediaTypeTable maps media types to dissectors.
const MediaTypeTable = "media.type"

// MediaType is the MediaTypeTable key of this dissector.
const MediaType = "application/pem"

var (
	beginPrefix = []byte("-----BEGIN ")
	endPrefix   = []byte("-----END ")
	dashes      = []byte("-----")
)

// Register adds PEM to the tcp and udp heuristic lists and to media.type.
func Register(b *dissector.Builder) {
	b.RegisterTable(MediaTypeTable, dissector.KeyString)
	p := b.RegisterProtocol("pem", "Textual Encoding (RFC 7468)", dissector.HandlerFunc(dissect))
	b.AddString(MediaTypeTable, MediaType, p)
	b.AddHeuristic("tcp", p, Match)
	b.AddHeuristic("udp", p, Match)
}

// Match accepts payloads whose first line is a BEGIN boundary.
func Match(cur *cursor.Cursor) bool {
	line, err := cur.Line()
	if err != nil {
		return false
	}
	_, ok := boundary(line, beginPrefix)
	return ok
}

// boundary returns the label of a BEGIN or END line.
func boundary(line, prefix []byte) (string, bool) {
	line = bytes.TrimRight(line, " \t")
	if !bytes.HasPrefix(line, prefix) || !bytes.HasSuffix(line, dashes) || len(line) < len(prefix)+len(dashes) {
		return "", false
	}
	return string(line[len(prefix) : len(line)-len(dashes)]), true
}

func dissect(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	var labels []string
	for cur.Remaining() > 0 {
		at := cur.Offset()
		if err := dc.Step(at); err != nil {
			return err
		}
		line, _ := cur.Line()
		label, ok := boundary(line, beginPrefix)
		if !ok {
			if len(bytes.TrimSpace(line)) > 0 {
				addLine(tree, "Explanatory Text", at, line)
			}
			continue
		}
		labels = append(labels, label)
		if err := block(dc, cur, tree, label, at, line); err != nil {
			return err
		}
	}
	if len(labels) == 0 {
		return errors.Malformedf(cur.Start(), "no BEGIN line")
	}
	dc.SetInfo("%s", strings.Join(labels, ", "))
	return nil
}

func addLine(tree *field.Tree, label string, at int, line []byte) {
	tree.Add(field.Field{
		Label:   label,
		Kind:    field.KindString,
		Range:   field.Range{Start: at, Length: len(line)},
		Value:   string(line),
		Display: string(line),
	})
}

// block decodes one encapsulated block. The BEGIN line has been read. A
// block ends at its END line; a missing END, including one cut short by
// another BEGIN, is reported and the body is decoded anyway.
func block(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree, label string, start int, begin []byte) error {
	t := tree.AddTree("", label, field.Range{Start: start, Length: cur.Limit() - start})
	addLine(t, "Pre-Encapsulation Boundary", start, begin)

	bodyStart := cur.Offset()
	bodyEnd := bodyStart
	var body []byte
	closed := false
	for cur.Remaining() > 0 {
		at := cur.Offset()
		if err := dc.Step(at); err != nil {
			return err
		}
		line, _ := cur.Line()
		if end, ok := boundary(line, endPrefix); ok {
			if end != label {
				t.Note(field.ReasonMalformed, at, "END label %q does not match BEGIN label %q", end, label)
			}
			bodyEnd = at
			decodeBody(t, body, bodyStart, bodyEnd)
			addLine(t, "Post-Encapsulation Boundary", at, line)
			closed = true
			break
		}
		if _, ok := boundary(line, beginPrefix); ok {
			_ = cur.Seek(at)
			break
		}
		body = append(body, bytes.TrimSpace(line)...)
		bodyEnd = cur.Offset()
	}
	if !closed {
		decodeBody(t, body, bodyStart, bodyEnd)
		t.Note(field.ReasonMalformed, cur.Offset(), "missing END line for %q", label)
	}
	t.SetRange(field.Range{Start: start, Length: cur.Offset() - start})
	return nil
}

func decodeBody(t *field.Tree, body []byte, start, end int) {
	if len(body) == 0 {
		return
	}
	r := field.Range{Start: start, Length: end - start}
	data, err := base64.StdEncoding.DecodeString(string(body))
	if err != nil {
		t.Note(field.ReasonMalformed, start, "bad base64 body: %v", err)
		return
	}
	t.Add(field.Field{
		Label:   "Data",
		Kind:    field.KindBytes,
		Range:   r,
		Value:   data,
		Display: codec.FormatHex(data),
	})
}
