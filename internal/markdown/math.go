package markdown

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/samsaffron/markview/internal/tex"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// MathErrorColor is the colour of the inline message shown for math that
// fails to parse.
const MathErrorColor = "#cc0000"

// KindMath is the node kind of inline math.
var KindMath = ast.NewNodeKind("Math")

// KindMathBlock is the node kind of display math blocks.
var KindMathBlock = ast.NewNodeKind("MathBlock")

// Math is an inline $...$ or $$...$$ expression.
type Math struct {
	ast.BaseInline
	Display bool
	Source  []byte
}

func (n *Math) Kind() ast.NodeKind { return KindMath }

func (n *Math) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Source": string(n.Source),
	}, nil)
}

// MathBlock is a $$ ... $$ block spanning one or more lines.
type MathBlock struct {
	ast.BaseBlock
	closed bool
}

func (n *MathBlock) Kind() ast.NodeKind { return KindMathBlock }

func (n *MathBlock) IsRaw() bool { return true }

func (n *MathBlock) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

// mathExtension adds $ delimited math to goldmark.
type mathExtension struct{}

func (e *mathExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithBlockParsers(util.Prioritized(&mathBlockParser{}, 150)),
		parser.WithInlineParsers(util.Prioritized(&inlineMathParser{}, 150)),
	)
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&mathRenderer{}, 100),
	))
}

type inlineMathParser struct{}

func (p *inlineMathParser) Trigger() []byte { return []byte{'$'} }

func (p *inlineMathParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, _ := block.PeekLine()
	if len(line) < 2 || line[0] != '$' {
		return nil
	}

	if line[1] == '$' {
		end := bytes.Index(line[2:], []byte("$$"))
		if end <= 0 {
			return nil
		}
		src := bytes.TrimSpace(line[2 : 2+end])
		if len(src) == 0 {
			return nil
		}
		block.Advance(2 + end + 2)
		return &Math{Display: true, Source: append([]byte(nil), src...)}
	}

	if isMathSpace(line[1]) {
		return nil
	}
	for i := 1; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '$':
			if isMathSpace(line[i-1]) {
				continue
			}
			if i+1 < len(line) && line[i+1] >= '0' && line[i+1] <= '9' {
				continue
			}
			src := line[1:i]
			block.Advance(i + 1)
			return &Math{Source: append([]byte(nil), src...)}
		case '\n':
			return nil
		}
	}
	return nil
}

func isMathSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

type mathBlockParser struct{}

func (b *mathBlockParser) Trigger() []byte { return []byte{'$'} }

func (b *mathBlockParser) Open(parent ast.Node, reader text.Reader, pc parser.Context) (ast.Node, parser.State) {
	line, segment := reader.PeekLine()
	pos := pc.BlockOffset()
	if pos < 0 || pos+2 > len(line) || !bytes.HasPrefix(line[pos:], []byte("$$")) {
		return nil, parser.NoChildren
	}

	rest := bytes.TrimRight(line[pos+2:], " \t\r\n")
	node := &MathBlock{}
	switch {
	case len(rest) == 0:
		// Bare $$ opens a multi-line block.
	case bytes.HasSuffix(rest, []byte("$$")) && len(rest) > 2:
		start := segment.Start + pos + 2
		node.Lines().Append(text.NewSegment(start, start+len(rest)-2))
		node.closed = true
	default:
		// $$x$$ followed by more text is inline display math in a paragraph.
		return nil, parser.NoChildren
	}

	reader.Advance(segment.Stop - segment.Start - trailingNewline(line) + segment.Padding)
	return node, parser.NoChildren
}

// Continue leaves each line's newline in place; the block loop advances past
// it. A closing line is consumed up to the newline so nothing else reopens it.
func (b *mathBlockParser) Continue(node ast.Node, reader text.Reader, pc parser.Context) parser.State {
	n := node.(*MathBlock)
	if n.closed {
		return parser.Close
	}

	line, segment := reader.PeekLine()
	if w, pos := util.IndentWidth(line, reader.LineOffset()); w < 4 {
		trimmed := bytes.TrimRight(line[pos:], " \t\r\n")
		if bytes.HasSuffix(trimmed, []byte("$$")) {
			body := trimmed[:len(trimmed)-2]
			if len(bytes.TrimSpace(body)) > 0 {
				start := segment.Start + pos
				n.Lines().Append(text.NewSegment(start, start+len(body)))
			}
			reader.Advance(segment.Stop - segment.Start - trailingNewline(line) + segment.Padding)
			n.closed = true
			return parser.Close
		}
	}

	n.Lines().Append(segment)
	reader.Advance(segment.Stop - segment.Start - trailingNewline(line))
	return parser.Continue | parser.NoChildren
}

func (b *mathBlockParser) Close(node ast.Node, reader text.Reader, pc parser.Context) {}

func (b *mathBlockParser) CanInterruptParagraph() bool { return true }

func (b *mathBlockParser) CanAcceptIndentedLine() bool { return false }

func trailingNewline(line []byte) int {
	if len(line) > 0 && line[len(line)-1] == '\n' {
		return 1
	}
	return 0
}

type mathRenderer struct{}

func (r *mathRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindMath, r.renderMath)
	reg.Register(KindMathBlock, r.renderMathBlock)
}

func (r *mathRenderer) renderMath(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*Math)
	_, _ = w.WriteString(renderTeX(string(n.Source), n.Display))
	return ast.WalkSkipChildren, nil
}

func (r *mathRenderer) renderMathBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	src := strings.TrimSpace(string(codeLines(node, source)))
	_, _ = w.WriteString(`<div class="math-display">`)
	_, _ = w.WriteString(renderTeX(src, true))
	_, _ = w.WriteString("</div>\n")
	return ast.WalkSkipChildren, nil
}

// renderTeX converts src to MathML. Parse errors become an inline error
// message in MathErrorColor instead of failing the render.
func renderTeX(src string, display bool) string {
	out, err := tex.ToMathML(src, display)
	if err != nil {
		return `<span class="math-error" title="` + html.EscapeString(err.Error()) +
			`" style="color:` + MathErrorColor + `">` + html.EscapeString(src) + `</span>`
	}
	return out
}

var (
	inlineParenMath   = regexp.MustCompile(`\\\(([\s\S]+?)\\\)`)
	inlineBracketMath = regexp.MustCompile(`\\\[([\s\S]+?)\\\]`)
)

// normalizeMathDelimiters rewrites \( \) and \[ \] delimiters to the $ and $$
// forms the math parser understands. Fenced code and code spans are left
// alone.
func normalizeMathDelimiters(src string) string {
	if !strings.Contains(src, `\(`) && !strings.Contains(src, `\[`) {
		return src
	}

	lines := strings.SplitAfter(src, "\n")
	var out strings.Builder
	out.Grow(len(src))

	var fence fenceState
	for _, line := range lines {
		body := strings.TrimRight(line, "\r\n")
		nl := line[len(body):]
		trimmed := strings.TrimSpace(body)

		if fence.processLine(trimmed) {
			out.WriteString(line)
			continue
		}

		switch trimmed {
		case `\[`, `\]`:
			out.WriteString(strings.Replace(body, trimmed, "$$", 1))
			out.WriteString(nl)
			continue
		}

		out.WriteString(rewriteOutsideCodeSpans(body))
		out.WriteString(nl)
	}
	return out.String()
}

// rewriteOutsideCodeSpans applies the delimiter rewrite to the parts of line
// that are not inside backtick code spans.
func rewriteOutsideCodeSpans(line string) string {
	if !strings.ContainsRune(line, '`') {
		return rewriteDelimiters(line)
	}

	var out strings.Builder
	rest := line
	for {
		start := strings.IndexByte(rest, '`')
		if start < 0 {
			out.WriteString(rewriteDelimiters(rest))
			return out.String()
		}
		run := countLeading(rest[start:], '`')
		closeAt := strings.Index(rest[start+run:], strings.Repeat("`", run))
		if closeAt < 0 {
			out.WriteString(rewriteDelimiters(rest))
			return out.String()
		}
		end := start + run + closeAt + run
		out.WriteString(rewriteDelimiters(rest[:start]))
		out.WriteString(rest[start:end])
		rest = rest[end:]
	}
}

func rewriteDelimiters(s string) string {
	s = inlineBracketMath.ReplaceAllStringFunc(s, func(m string) string {
		inner := strings.TrimSpace(m[2 : len(m)-2])
		return "$$" + inner + "$$"
	})
	s = inlineParenMath.ReplaceAllStringFunc(s, func(m string) string {
		inner := strings.TrimSpace(m[2 : len(m)-2])
		return "$" + inner + "$"
	})
	return s
}

// fenceState tracks whether a line scan is inside a fenced code block.
type fenceState struct {
	inFence   bool
	fenceChar byte
	fenceLen  int
}

// processLine updates the state for a trimmed line and reports whether the
// line belongs to a fence (opening, body or closing).
func (f *fenceState) processLine(trimmed string) bool {
	if len(trimmed) < 3 {
		return f.inFence
	}

	if !f.inFence {
		if trimmed[0] == '`' || trimmed[0] == '~' {
			n := countLeading(trimmed, trimmed[0])
			if n >= 3 {
				f.inFence = true
				f.fenceChar = trimmed[0]
				f.fenceLen = n
				return true
			}
		}
		return false
	}

	if trimmed[0] == f.fenceChar {
		n := countLeading(trimmed, f.fenceChar)
		if n >= f.fenceLen && n == len(trimmed) {
			f.inFence = false
			f.fenceChar = 0
			f.fenceLen = 0
		}
	}
	return true
}

func countLeading(s string, c byte) int {
	n := 0
	for n < len(s) && s[n] == c {
		n++
	}
	return n
}
