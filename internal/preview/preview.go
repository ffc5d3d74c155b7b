// Package preview renders markdown for a terminal with glamour.
package preview

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"github.com/samsaffron/markview/internal/markdown"
	"golang.org/x/term"
)

const (
	ThemeAuto  = "auto"
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// DefaultWidth is used when the terminal size is unknown.
const DefaultWidth = 80

type cacheKey struct {
	width int
	theme string
}

// rendererCache holds one glamour renderer per width and theme.
var rendererCache sync.Map // map[cacheKey]*glamour.TermRenderer

func styleFor(theme string) (ansi.StyleConfig, string) {
	if theme == "" || theme == ThemeAuto {
		theme = ThemeLight
		if termenv.HasDarkBackground() {
			theme = ThemeDark
		}
	}
	if theme == ThemeLight {
		return styles.LightStyleConfig, theme
	}
	return styles.DarkStyleConfig, ThemeDark
}

func getRenderer(width int, theme string) (*glamour.TermRenderer, error) {
	style, resolved := styleFor(theme)
	key := cacheKey{width: width, theme: resolved}
	if cached, ok := rendererCache.Load(key); ok {
		return cached.(*glamour.TermRenderer), nil
	}

	margin := uint(0)
	style.Document.Margin = &margin
	style.CodeBlock.Margin = &margin

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStyles(style),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
	if err != nil {
		return nil, err
	}
	rendererCache.Store(key, renderer)
	return renderer, nil
}

// Render renders content for a terminal of the given width. Unclosed
// extended fences are repaired first, as in the HTML pipeline.
func Render(content string, width int, theme string) (string, error) {
	if width <= 0 {
		width = DefaultWidth
	}
	renderer, err := getRenderer(width, theme)
	if err != nil {
		return "", fmt.Errorf("create terminal renderer: %w", err)
	}
	out, err := renderer.Render(markdown.CloseUnclosedExtendedFences(content))
	if err != nil {
		return "", fmt.Errorf("render terminal preview: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// BlockIndex lists the code blocks of res as aligned "id  label  (n lines)"
// rows.
func BlockIndex(res markdown.Result) string {
	if len(res.Blocks) == 0 {
		return ""
	}
	idWidth, labelWidth := 0, 0
	for _, block := range res.Blocks {
		idWidth = max(idWidth, runewidth.StringWidth(block.ID))
		labelWidth = max(labelWidth, runewidth.StringWidth(block.Label))
	}
	var b strings.Builder
	for _, block := range res.Blocks {
		lines := strings.Count(block.Raw, "\n")
		if block.Raw != "" && !strings.HasSuffix(block.Raw, "\n") {
			lines++
		}
		fmt.Fprintf(&b, "%s  %s  (%d lines)\n",
			runewidth.FillRight(block.ID, idWidth),
			runewidth.FillRight(block.Label, labelWidth),
			lines)
	}
	return b.String()
}

// IsTerminal reports whether f is a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Width returns the width of terminal f, or DefaultWidth.
func Width(f *os.File) int {
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return DefaultWidth
	}
	return width
}
