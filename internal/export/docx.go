package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"
	"github.com/gomutex/godocx/wml/stypes"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Paragraph and character styles shipped in the godocx default template.
const (
	styleCode      = "MacroText"
	styleCodeSpan  = "MacroTextChar"
	styleQuote     = "Quote"
	styleBullet    = "ListBullet"
	styleNumbered  = "ListNumber"
	styleTable     = "TableGrid"
	linkColor      = "0563C1"
	maxDocxHeading = 9
)

var docxParser = goldmark.New(goldmark.WithExtensions(extension.GFM))

type runStyle struct {
	bold, italic, strike, link bool
}

type docxWriter struct {
	doc *docx.RootDoc
	src []byte
}

// DocxDocument converts md into a Word document. Headings, paragraphs,
// lists, quotes, tables and code blocks map onto the template's built-in
// styles; raw HTML is dropped.
func DocxDocument(title, md string) ([]byte, error) {
	if title == "" {
		title = DefaultTitle
	}
	doc, err := godocx.NewDocument()
	if err != nil {
		return nil, fmt.Errorf("create docx: %w", err)
	}
	if _, err := doc.AddHeading(title, 0); err != nil {
		return nil, fmt.Errorf("add title: %w", err)
	}

	src := []byte(md)
	root := docxParser.Parser().Parse(text.NewReader(src))
	w := &docxWriter{doc: doc, src: src}
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if err := w.block(n, ""); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := doc.Write(&buf); err != nil {
		return nil, fmt.Errorf("write docx: %w", err)
	}
	return buf.Bytes(), nil
}

// block writes one block node. style names the paragraph style inherited
// from an enclosing quote or list.
func (w *docxWriter) block(n ast.Node, style string) error {
	switch n := n.(type) {
	case *ast.Heading:
		level := n.Level
		if level > maxDocxHeading {
			level = maxDocxHeading
		}
		p, err := w.doc.AddHeading("", uint(level))
		if err != nil {
			return fmt.Errorf("add heading: %w", err)
		}
		w.inlines(p, n, runStyle{})
	case *ast.Paragraph, *ast.TextBlock:
		p := w.doc.AddEmptyParagraph()
		if style != "" {
			p.Style(style)
		}
		w.inlines(p, n, runStyle{})
	case *ast.FencedCodeBlock:
		w.code(n.Lines())
	case *ast.CodeBlock:
		w.code(n.Lines())
	case *ast.Blockquote:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if err := w.block(c, styleQuote); err != nil {
				return err
			}
		}
	case *ast.List:
		itemStyle := styleBullet
		if n.IsOrdered() {
			itemStyle = styleNumbered
		}
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			for c := item.FirstChild(); c != nil; c = c.NextSibling() {
				if err := w.block(c, itemStyle); err != nil {
					return err
				}
			}
		}
	case *east.Table:
		w.table(n)
	case *ast.ThematicBreak:
		w.doc.AddEmptyParagraph()
	case *ast.HTMLBlock:
	default:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if err := w.block(c, style); err != nil {
				return err
			}
		}
	}
	return nil
}

// code writes one paragraph per source line so indentation survives.
func (w *docxWriter) code(lines *text.Segments) {
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		s := strings.TrimRight(string(line.Value(w.src)), "\r\n")
		p := w.doc.AddEmptyParagraph()
		p.Style(styleCode)
		if s != "" {
			p.AddText(s)
		}
	}
}

func (w *docxWriter) table(t *east.Table) {
	tbl := w.doc.AddTable()
	tbl.Style(styleTable)
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		_, header := row.(*east.TableHeader)
		r := tbl.AddRow()
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			p := r.AddCell().AddEmptyPara()
			w.inlines(p, cell, runStyle{bold: header})
		}
	}
}

func (w *docxWriter) inlines(p *docx.Paragraph, n ast.Node, st runStyle) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		w.inline(p, c, st)
	}
}

func (w *docxWriter) inline(p *docx.Paragraph, n ast.Node, st runStyle) {
	switch n := n.(type) {
	case *ast.Text:
		w.text(p, string(n.Value(w.src)), st)
		switch {
		case n.HardLineBreak():
			brk := stypes.BreakTypeTextWrapping
			p.AddRun().AddBreak(&brk)
		case n.SoftLineBreak():
			w.text(p, " ", st)
		}
	case *ast.String:
		w.text(p, string(n.Value), st)
	case *ast.CodeSpan:
		var b strings.Builder
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				b.Write(t.Value(w.src))
			}
		}
		w.text(p, b.String(), st).Style(styleCodeSpan)
	case *ast.Emphasis:
		if n.Level >= 2 {
			st.bold = true
		} else {
			st.italic = true
		}
		w.inlines(p, n, st)
	case *east.Strikethrough:
		st.strike = true
		w.inlines(p, n, st)
	case *ast.Link:
		st.link = true
		w.inlines(p, n, st)
	case *ast.AutoLink:
		st.link = true
		w.text(p, string(n.Label(w.src)), st)
	case *ast.Image:
		var b strings.Builder
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				b.Write(t.Value(w.src))
			}
		}
		w.text(p, "["+b.String()+"]", st)
	case *east.TaskCheckBox:
		mark := "☐ "
		if n.IsChecked {
			mark = "☑ "
		}
		w.text(p, mark, st)
	case *ast.RawHTML:
	default:
		w.inlines(p, n, st)
	}
}

func (w *docxWriter) text(p *docx.Paragraph, s string, st runStyle) *docx.Run {
	r := p.AddText(s)
	if st.bold {
		r.Bold(true)
	}
	if st.italic {
		r.Italic(true)
	}
	if st.strike {
		r.Strike(true)
	}
	if st.link {
		r.Color(linkColor).Underline(stypes.UnderlineSingle)
	}
	return r
}
