package preview

import (
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/samsaffron/markview/internal/markdown"
)

func TestRender(t *testing.T) {
	styled, err := Render("# Title\n\nsome **bold** text", 60, ThemeDark)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := ansi.Strip(styled)
	if !strings.Contains(out, "Title") || !strings.Contains(out, "bold") {
		t.Fatalf("output missing content: %q", out)
	}
	if strings.Contains(out, "**") {
		t.Fatalf("emphasis markers left in output: %q", out)
	}
}

func TestRenderRepairsExtendedFence(t *testing.T) {
	styled, err := Render("````md\n```go\nx := 1\n```\nafter", 60, ThemeLight)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	// Highlighted code wraps each token in its own escape sequence.
	out := ansi.Strip(styled)
	if strings.Contains(out, "````") {
		t.Fatalf("fence markers rendered literally: %q", out)
	}
	if !strings.Contains(out, "x := 1") {
		t.Fatalf("fence content lost: %q", out)
	}
}

func TestRendererCachedPerWidthAndTheme(t *testing.T) {
	a, err := getRenderer(70, ThemeDark)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := getRenderer(70, ThemeDark)
	c, _ := getRenderer(70, ThemeLight)
	d, _ := getRenderer(71, ThemeDark)
	if a != b {
		t.Error("same width and theme built a new renderer")
	}
	if a == c || a == d {
		t.Error("different width or theme reused a renderer")
	}
}

func TestBlockIndex(t *testing.T) {
	res := markdown.Result{Blocks: []markdown.CodeBlock{
		{ID: "code-block-0", Label: "go", Raw: "a\nb\n"},
		{ID: "code-block-1", Label: "plaintext", Raw: "x"},
	}}
	want := "code-block-0  go         (2 lines)\ncode-block-1  plaintext  (1 lines)\n"
	if got := BlockIndex(res); got != want {
		t.Fatalf("BlockIndex = %q, want %q", got, want)
	}
	wide := BlockIndex(markdown.Result{Blocks: []markdown.CodeBlock{
		{ID: "a", Label: "日本", Raw: "x"},
		{ID: "b", Label: "go", Raw: "x"},
	}})
	if want := "a  日本  (1 lines)\nb  go    (1 lines)\n"; wide != want {
		t.Fatalf("BlockIndex(wide) = %q, want %q", wide, want)
	}
	if got := BlockIndex(markdown.Result{}); got != "" {
		t.Fatalf("BlockIndex(empty) = %q", got)
	}
}

func TestWidthNotTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if IsTerminal(f) {
		t.Fatal("temp file reported as terminal")
	}
	if w := Width(f); w != DefaultWidth {
		t.Fatalf("Width = %d, want %d", w, DefaultWidth)
	}
}
