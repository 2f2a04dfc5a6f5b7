// Package render converts the HTML fragments used for post bodies into
// plain-text display lines at a fixed column width.
//
// The fragment is parsed into paragraphs (<p>) of lines (<br>); every other
// tag is structurally ignored but keeps its text content. Blank lines between
// paragraphs are normalized before each line is independently word-wrapped.
package render

import (
	"strings"

	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/net/html"
)

// paragraph is an ordered list of logical lines. A line accumulates text
// chunks in document order until a <br> starts the next one.
type paragraph struct {
	lines []string
}

func (p *paragraph) appendText(chunk string) {
	if len(p.lines) == 0 {
		p.lines = append(p.lines, "")
	}
	p.lines[len(p.lines)-1] += chunk
}

func (p *paragraph) lineBreak() {
	p.lines = append(p.lines, "")
}

// fragment is the parsed paragraph/line structure of one HTML fragment.
type fragment struct {
	paragraphs []*paragraph
}

func (f *fragment) lastParagraph() *paragraph {
	if len(f.paragraphs) == 0 {
		f.paragraphs = append(f.paragraphs, &paragraph{})
	}
	return f.paragraphs[len(f.paragraphs)-1]
}

// parse tokenizes src and builds the paragraph/line structure. The tokenizer
// is tolerant of malformed markup; unknown and unbalanced closing tags are
// skipped.
func parse(src string) *fragment {
	f := &fragment{}
	z := html.NewTokenizer(strings.NewReader(src))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF from a string reader; nothing else can fail.
			return f
		case html.TextToken:
			f.lastParagraph().appendText(string(z.Text()))
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "p":
				f.paragraphs = append(f.paragraphs, &paragraph{})
			case "br":
				f.lastParagraph().lineBreak()
			}
		}
	}
}

// rawLines flattens the structure to a line sequence where every paragraph is
// preceded by an empty-string separator.
func (f *fragment) rawLines() []string {
	var raw []string
	for _, p := range f.paragraphs {
		raw = append(raw, "")
		raw = append(raw, p.lines...)
	}
	return raw
}

// Compress normalizes blank lines: leading and trailing blanks are dropped
// entirely and every internal run of blanks collapses to a single one.
func Compress(lines []string) []string {
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		if line == "" {
			blanks++
			continue
		}
		if blanks > 0 && len(out) > 0 {
			out = append(out, "")
		}
		blanks = 0
		out = append(out, line)
	}
	return out
}

// wrapLine re-flows one logical line to width columns. Horizontal whitespace
// runs collapse to single spaces, existing newlines are kept as breaks, and
// words longer than width stay unsplit on their own line (the wrap
// primitive's rule). A line that wraps to nothing still yields one empty
// output line so no line position is ever dropped.
func wrapLine(line string, width int) []string {
	var out []string
	for _, chunk := range strings.Split(line, "\n") {
		words := strings.Fields(chunk)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		wrapped := wordwrap.String(strings.Join(words, " "), width)
		out = append(out, strings.Split(wrapped, "\n")...)
	}
	return out
}

// Render converts an HTML fragment into display lines at the given width.
// Empty input yields an empty sequence; input without any markup is treated
// as a single implicit paragraph.
func Render(src string, width int) []string {
	out := []string{}
	for _, line := range Compress(parse(src).rawLines()) {
		out = append(out, wrapLine(line, width)...)
	}
	return out
}
