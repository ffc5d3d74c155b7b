// Package markdown turns untrusted, possibly still streaming Markdown into
// safe HTML with highlighted, copyable code blocks and emoji images.
package markdown

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/samsaffron/markview/internal/logger"
	"github.com/yuin/goldmark"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// StreamingCursor is appended to the HTML of a message that is still streaming.
const StreamingCursor = `<span class="streaming-cursor" aria-hidden="true">▋</span>`

// Input is one render request.
type Input struct {
	Content     string `json:"content"`
	IsStreaming bool   `json:"isStreaming"`
}

// Result is the output of one render pass. Every data-block-id in HTML has a
// matching entry in Blocks and vice versa.
type Result struct {
	HTML   string      `json:"html"`
	Blocks []CodeBlock `json:"blocks"`
}

// Block returns the code block with the given id.
func (r Result) Block(id string) (CodeBlock, bool) {
	for _, b := range r.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return CodeBlock{}, false
}

// CopyButtons binds one copy button to each code block, in document order.
func (r Result) CopyButtons(cb Clipboard, opts ...CopyOption) []*CopyButton {
	buttons := make([]*CopyButton, 0, len(r.Blocks))
	for _, b := range r.Blocks {
		buttons = append(buttons, NewCopyButton(b, cb, opts...))
	}
	return buttons
}

// Options configures a Renderer.
type Options struct {
	// Style is the chroma style used for the stylesheet.
	Style string
	// Math enables $...$ and $$...$$ math.
	Math bool
	// Emoji enables image substitution of emoji sequences.
	Emoji bool
	// Shortcodes expands :name: emoji shortcodes to Unicode.
	Shortcodes bool
	// EmojiURLs selects the emoji image sources.
	EmojiURLs EmojiConfig
	Logger    *log.Logger
}

// DefaultOptions returns options with every feature enabled.
func DefaultOptions() Options {
	return Options{
		Style:      DefaultStyle,
		Math:       true,
		Emoji:      true,
		Shortcodes: true,
		EmojiURLs:  DefaultEmojiConfig(),
	}
}

// Renderer runs the rendering pipeline. It is immutable after New and safe
// for concurrent use.
type Renderer struct {
	md          goldmark.Markdown
	highlighter *Highlighter
	opts        Options
	logger      *log.Logger
}

// New creates a Renderer.
func New(opts Options) *Renderer {
	hl := NewHighlighter(opts.Style)
	return newRenderer(opts, hl, hl)
}

func newRenderer(opts Options, hl *Highlighter, code codeHighlighter) *Renderer {
	l := opts.Logger
	if l == nil {
		l = logger.NewComponentLogger("markdown")
	}
	opts.EmojiURLs = opts.EmojiURLs.withDefaults()

	exts := []goldmark.Extender{extension.GFM}
	if opts.Math {
		exts = append(exts, &mathExtension{})
	}
	if opts.Shortcodes {
		exts = append(exts, emoji.New(emoji.WithRenderingMethod(emoji.Unicode)))
	}

	md := goldmark.New(
		goldmark.WithExtensions(exts...),
		goldmark.WithRendererOptions(
			gmhtml.WithHardWraps(),
			renderer.WithNodeRenderers(
				util.Prioritized(&codeBlockRenderer{highlighter: code, logger: l}, 100),
				util.Prioritized(&linkRenderer{}, 100),
			),
		),
	)

	return &Renderer{
		md:          md,
		highlighter: hl,
		opts:        opts,
		logger:      l,
	}
}

// Render runs one render pass over in. It never fails: a parse error or
// panic yields the escaped source instead.
func (r *Renderer) Render(in Input) Result {
	src := CloseUnclosedExtendedFences(in.Content)
	if r.opts.Math {
		src = normalizeMathDelimiters(src)
	}

	body, blocks, err := r.convert([]byte(src))
	if err != nil {
		r.logger.Warn("markdown render failed, falling back to plain text", "error", err)
		body = FallbackHTML(in.Content)
		blocks = nil
	}

	if r.opts.Emoji {
		body = SubstituteEmoji(body, r.opts.EmojiURLs)
	}
	if in.IsStreaming {
		body += StreamingCursor
	}
	if blocks == nil {
		blocks = []CodeBlock{}
	}
	return Result{HTML: body, Blocks: blocks}
}

func (r *Renderer) convert(src []byte) (out string, blocks []CodeBlock, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("render panic: %v", rec)
		}
	}()

	doc := r.md.Parser().Parse(text.NewReader(src))

	pass := &renderPass{}
	if err := pass.collect(doc, src); err != nil {
		return "", nil, fmt.Errorf("collect code blocks: %w", err)
	}

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, src, doc); err != nil {
		return "", nil, fmt.Errorf("render html: %w", err)
	}
	return buf.String(), pass.blocks, nil
}

// FallbackHTML renders content as escaped text with line breaks.
func FallbackHTML(content string) string {
	escaped := html.EscapeString(content)
	escaped = strings.ReplaceAll(escaped, "\n", "<br>\n")
	return `<div class="markdown-fallback">` + escaped + `</div>`
}

// Highlighter returns the code highlighter used by r.
func (r *Renderer) Highlighter() *Highlighter { return r.highlighter }

// StyleSheet returns the chroma stylesheet followed by the component rules.
func (r *Renderer) StyleSheet() (string, error) {
	var buf strings.Builder
	if err := r.highlighter.WriteCSS(&buf); err != nil {
		return "", fmt.Errorf("write chroma css: %w", err)
	}
	buf.WriteString("\n")
	buf.WriteString(ComponentCSS)
	return buf.String(), nil
}
