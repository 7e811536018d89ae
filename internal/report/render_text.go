package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tonylturner/tlvscope/internal/engine"
	"github.com/tonylturner/tlvscope/internal/field"
)

const indent = "    "

// TextOptions control the text renderer.
type TextOptions struct {
	Color bool
	Hex   bool
}

// TextRenderer prints dissected frames as indented field trees.
type TextRenderer struct {
	w      io.Writer
	opts   TextOptions
	styles Styles
}

// NewTextRenderer returns a renderer writing to w.
func NewTextRenderer(w io.Writer, opts TextOptions) *TextRenderer {
	return &TextRenderer{w: w, opts: opts, styles: NewStyles(w, DefaultTheme)}
}

func (r *TextRenderer) paint(s lipgloss.Style, text string) string {
	if !r.opts.Color {
		return text
	}
	return s.Render(text)
}

// Frame writes one result: a summary line, the tree and, if enabled, a
// hex dump of the frame.
func (r *TextRenderer) Frame(res engine.Result) error {
	var sb strings.Builder
	head := fmt.Sprintf("#%d %s", res.Frame.Number, res.Protocol)
	if res.Info != "" {
		head += " " + res.Info
	}
	sb.WriteString(r.paint(r.styles.Header, head))
	sb.WriteByte('\n')

	sb.WriteString(r.paint(r.styles.Protocol, res.Tree.Label))
	sb.WriteByte('\n')
	for _, f := range res.Tree.Fields() {
		r.field(&sb, 1, f)
	}
	if r.opts.Hex {
		sb.WriteString(HexDump(res.Frame.Data, 16))
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(r.w, sb.String())
	return err
}

func (r *TextRenderer) field(sb *strings.Builder, depth int, f field.Field) {
	sb.WriteString(strings.Repeat(indent, depth))
	switch {
	case f.Expert != nil:
		sb.WriteString(r.expert(*f.Expert))
	case f.Tree != nil:
		label := f.Label
		if f.Display != "" {
			label += ": " + f.Display
		}
		style := r.styles.Label
		if f.Tree.Protocol != "" {
			style = r.styles.Protocol
		}
		sb.WriteString(r.paint(style, label))
		sb.WriteString(r.span(f.Range))
	default:
		sb.WriteString(r.paint(r.styles.Label, f.Label))
		if f.Display != "" {
			sb.WriteString(": ")
			sb.WriteString(r.paint(r.styles.Value, f.Display))
		}
		sb.WriteString(r.span(f.Range))
	}
	sb.WriteByte('\n')
	if f.Tree != nil {
		for _, c := range f.Tree.Fields() {
			r.field(sb, depth+1, c)
		}
	}
}

// span renders the byte range; metadata fields have none.
func (r *TextRenderer) span(rg field.Range) string {
	if rg.Length == 0 {
		return ""
	}
	return " " + r.paint(r.styles.Range, "["+rg.String()+"]")
}

func (r *TextRenderer) expert(e field.Expert) string {
	style := r.styles.Note
	switch e.Severity {
	case field.SeverityWarn:
		style = r.styles.Warning
	case field.SeverityError:
		style = r.styles.Error
	}
	return r.paint(style, fmt.Sprintf("[%s] %s: %s (offset %d)", e.Severity, e.Reason, e.Message, e.Offset))
}
