package markdown

import (
	"bytes"
	"fmt"
	"html"

	"github.com/charmbracelet/log"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// CodeBlock is one fenced code block of a render pass. Language is the info
// string language as written, Label the name shown in the header. Raw is the
// block's source exactly as written between the fences, which is what copy
// actions put on the clipboard.
type CodeBlock struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Label    string `json:"label"`
	Raw      string `json:"raw"`
}

// blockAttr is the AST attribute carrying a fenced block's CodeBlock from the
// collection walk to the node renderer.
const blockAttr = "markview-code-block"

// SVG icons for the copy button.
const (
	svgCopy  = `<svg class="icon-copy" xmlns="http://www.w3.org/2000/svg" width="14" height="14" viewBox="0 0 24 24" fill="none" stroke="currentColor" stroke-width="2" stroke-linecap="round" stroke-linejoin="round"><rect width="14" height="14" x="8" y="8" rx="2" ry="2"/><path d="M4 16c-1.1 0-2-.9-2-2V4c0-1.1.9-2 2-2h10c1.1 0 2 .9 2 2"/></svg>`
	svgCheck = `<svg class="icon-check" style="display:none" xmlns="http://www.w3.org/2000/svg" width="14" height="14" viewBox="0 0 24 24" fill="none" stroke="currentColor" stroke-width="2" stroke-linecap="round" stroke-linejoin="round"><path d="M20 6 9 17l-5-5"/></svg>`
)

// renderPass holds the state of a single Render call. It is created fresh for
// every call and never shared, so concurrent renders cannot interfere.
type renderPass struct {
	counter int
	blocks  []CodeBlock
}

// collect walks doc in document order, assigns each fenced code block its id
// and records its raw text.
func (p *renderPass) collect(doc ast.Node, source []byte) error {
	return ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lang := string(fenced.Language(source))
		label := ResolveLanguage(lang)
		block := CodeBlock{
			ID:       fmt.Sprintf("code-block-%d", p.counter),
			Language: lang,
			Label:    label,
			Raw:      string(codeLines(fenced, source)),
		}
		p.counter++
		p.blocks = append(p.blocks, block)
		fenced.SetAttributeString(blockAttr, block)
		return ast.WalkSkipChildren, nil
	})
}

func codeLines(n ast.Node, source []byte) []byte {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(source))
	}
	return buf.Bytes()
}

type codeHighlighter interface {
	Highlight(code, lang string) (string, error)
}

// codeBlockRenderer renders fenced code blocks with a header carrying the
// language label and a copy button.
type codeBlockRenderer struct {
	highlighter codeHighlighter
	logger      *log.Logger
}

func (r *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCodeBlock)
}

func (r *codeBlockRenderer) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	n := node.(*ast.FencedCodeBlock)
	block, ok := blockOf(n)
	if !ok {
		// Only reachable when the AST was not collected first.
		lang := string(n.Language(source))
		block = CodeBlock{Language: lang, Label: ResolveLanguage(lang), Raw: string(codeLines(n, source))}
	}

	body, err := safeHighlight(r.highlighter, block.Raw, block.Label)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("highlight failed, rendering plain code", "block", block.ID, "language", block.Label, "error", err)
		}
		body = escapeCode(block.Raw)
	}

	id := html.EscapeString(block.ID)
	label := html.EscapeString(block.Label)

	_, _ = w.WriteString(`<div class="code-block" data-block-id="` + id + `">`)
	_, _ = w.WriteString(`<div class="code-block-header">`)
	_, _ = w.WriteString(`<span class="code-block-lang">` + label + `</span>`)
	_, _ = w.WriteString(`<button type="button" class="copy-button" data-block-id="` + id + `" aria-label="Copy code">`)
	_, _ = w.WriteString(svgCopy)
	_, _ = w.WriteString(svgCheck)
	_, _ = w.WriteString(`<span class="copy-label">` + CopyLabel + `</span></button>`)
	_, _ = w.WriteString(`</div>`)
	_, _ = w.WriteString(`<pre class="chroma"><code class="language-` + label + `">`)
	_, _ = w.WriteString(body)
	_, _ = w.WriteString("</code></pre></div>\n")
	return ast.WalkContinue, nil
}

// safeHighlight turns a panic inside h into an error.
func safeHighlight(h codeHighlighter, code, lang string) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = "", fmt.Errorf("highlight %s: panic: %v", lang, rec)
		}
	}()
	return h.Highlight(code, lang)
}

func blockOf(n ast.Node) (CodeBlock, bool) {
	v, ok := n.AttributeString(blockAttr)
	if !ok {
		return CodeBlock{}, false
	}
	block, ok := v.(CodeBlock)
	return block, ok
}
