package markdown

import (
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// PlainText is the language label used when a fence has no recognised language.
const PlainText = "plaintext"

// DefaultStyle is the chroma style used when none is configured.
const DefaultStyle = "monokai"

// Highlighter renders code through chroma using CSS classes, so one stylesheet
// serves every block on the page.
type Highlighter struct {
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

// NewHighlighter creates a highlighter for the named chroma style.
// Unknown style names fall back to chroma's default style.
func NewHighlighter(styleName string) *Highlighter {
	if styleName == "" {
		styleName = DefaultStyle
	}
	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}
	return &Highlighter{
		style: style,
		formatter: chromahtml.New(
			chromahtml.WithClasses(true),
			chromahtml.PreventSurroundingPre(true),
		),
	}
}

// ResolveLanguage maps a fence info language to the lexer name used for
// highlighting and the label shown in the block header. Languages chroma does
// not know become PlainText.
func ResolveLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return PlainText
	}
	if lexers.Get(lang) == nil {
		return PlainText
	}
	return lang
}

// Highlight returns highlighted HTML for code. Errors and panics from the
// lexer or formatter are returned as errors; callers fall back to escaped text.
func (h *Highlighter) Highlight(code, lang string) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = ""
			err = fmt.Errorf("highlight %s: panic: %v", lang, rec)
		}
	}()

	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Get(PlainText)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", fmt.Errorf("tokenise %s: %w", lang, err)
	}

	var buf strings.Builder
	if err := h.formatter.Format(&buf, h.style, iterator); err != nil {
		return "", fmt.Errorf("format %s: %w", lang, err)
	}
	return buf.String(), nil
}

// WriteCSS writes the stylesheet for the highlighter's style.
func (h *Highlighter) WriteCSS(w io.Writer) error {
	return h.formatter.WriteCSS(w, h.style)
}

// escapeCode is the unhighlighted fallback body for a code block.
func escapeCode(code string) string {
	return html.EscapeString(code)
}
