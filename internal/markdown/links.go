package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// blockedSchemes are URL prefixes that are never rendered as navigable links.
var blockedSchemes = []string{
	"javascript:",
	"vbscript:",
	"data:text/html",
}

// ValidateLink reports whether url may be rendered as a clickable link.
// The check drops ASCII whitespace and control characters, which browsers
// ignore inside a scheme, lower-cases the rest and rejects javascript:,
// vbscript: and data:text/html. Everything else, relative paths included,
// is allowed. Callers pass the destination as it will be written, with
// entity and numeric references already resolved.
func ValidateLink(url string) bool {
	normalized := strings.ToLower(strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return -1
		}
		return r
	}, url))
	for _, scheme := range blockedSchemes {
		if strings.HasPrefix(normalized, scheme) {
			return false
		}
	}
	return true
}

// linkRenderer replaces goldmark's link, autolink and image output so every
// destination goes through ValidateLink.
type linkRenderer struct{}

func (r *linkRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindLink, r.renderLink)
	reg.Register(ast.KindAutoLink, r.renderAutoLink)
	reg.Register(ast.KindImage, r.renderImage)
}

func (r *linkRenderer) renderLink(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.Link)
	dest := util.URLEscape(n.Destination, true)
	if !ValidateLink(string(dest)) {
		// Children still render, so the user sees the link text without the target.
		if entering {
			_, _ = w.WriteString(`<span class="blocked-link">`)
		} else {
			_, _ = w.WriteString("</span>")
		}
		return ast.WalkContinue, nil
	}

	if !entering {
		_, _ = w.WriteString("</a>")
		return ast.WalkContinue, nil
	}
	_, _ = w.WriteString(`<a href="`)
	_, _ = w.Write(util.EscapeHTML(dest))
	_ = w.WriteByte('"')
	if n.Title != nil {
		_, _ = w.WriteString(` title="`)
		_, _ = w.Write(util.EscapeHTML(n.Title))
		_ = w.WriteByte('"')
	}
	_, _ = w.WriteString(` target="_blank" rel="noopener noreferrer">`)
	return ast.WalkContinue, nil
}

func (r *linkRenderer) renderAutoLink(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.AutoLink)
	if !entering {
		return ast.WalkContinue, nil
	}

	url := n.URL(source)
	label := n.Label(source)
	if n.AutoLinkType == ast.AutoLinkEmail && !bytes.HasPrefix(bytes.ToLower(url), []byte("mailto:")) {
		url = append([]byte("mailto:"), url...)
	}

	dest := util.URLEscape(url, false)
	if !ValidateLink(string(url)) || !ValidateLink(string(dest)) {
		_, _ = w.WriteString(`<span class="blocked-link">`)
		_, _ = w.Write(util.EscapeHTML(label))
		_, _ = w.WriteString("</span>")
		return ast.WalkContinue, nil
	}

	_, _ = w.WriteString(`<a href="`)
	_, _ = w.Write(util.EscapeHTML(dest))
	_, _ = w.WriteString(`" target="_blank" rel="noopener noreferrer">`)
	_, _ = w.Write(util.EscapeHTML(label))
	_, _ = w.WriteString("</a>")
	return ast.WalkContinue, nil
}

func (r *linkRenderer) renderImage(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.Image)
	alt := util.EscapeHTML(nodeText(n, source))

	dest := util.URLEscape(n.Destination, true)
	if !ValidateLink(string(dest)) {
		_, _ = w.Write(alt)
		return ast.WalkSkipChildren, nil
	}

	_, _ = w.WriteString(`<img src="`)
	_, _ = w.Write(util.EscapeHTML(dest))
	_, _ = w.WriteString(`" alt="`)
	_, _ = w.Write(alt)
	_ = w.WriteByte('"')
	if n.Title != nil {
		_, _ = w.WriteString(` title="`)
		_, _ = w.Write(util.EscapeHTML(n.Title))
		_ = w.WriteByte('"')
	}
	_, _ = w.WriteString(` loading="lazy">`)
	return ast.WalkSkipChildren, nil
}

// nodeText concatenates the text segments below n.
func nodeText(n ast.Node, source []byte) []byte {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
		case *ast.String:
			buf.Write(t.Value)
		default:
			buf.Write(nodeText(c, source))
		}
	}
	return buf.Bytes()
}
