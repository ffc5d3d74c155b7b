package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/samsaffron/markview/internal/clipboard"
	"github.com/samsaffron/markview/internal/logger"
	"github.com/samsaffron/markview/internal/markdown"
	"github.com/samsaffron/markview/internal/preview"
	"github.com/samsaffron/markview/internal/signal"
	"github.com/samsaffron/markview/internal/watch"
	"github.com/spf13/cobra"
)

var (
	renderStreaming bool
	renderJSON      bool
	renderTerminal  bool
	renderHTML      bool
	renderTheme     string
	renderCopy      string
	renderWatch     bool
)

var renderCmd = &cobra.Command{
	Use:   "render [file]",
	Short: "Render markdown from a file or stdin",
	Long: `Render markdown to HTML, JSON or a terminal preview.

With no file, or "-", markdown is read from stdin. On a terminal the
output is a glamour preview unless --html or --json is given.

Examples:
  markview render notes.md
  markview render notes.md --html > notes.html
  markview render notes.md --json | jq '.blocks[].id'
  markview render notes.md --copy code-block-1
  markview render notes.md --watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().BoolVar(&renderStreaming, "streaming", false, "Treat the input as a partial streaming message (appends the cursor)")
	renderCmd.Flags().BoolVar(&renderJSON, "json", false, "Print {html, blocks} as JSON")
	renderCmd.Flags().BoolVar(&renderTerminal, "terminal", false, "Force the terminal preview")
	renderCmd.Flags().BoolVar(&renderHTML, "html", false, "Force HTML output on a terminal")
	renderCmd.Flags().StringVar(&renderTheme, "theme", preview.ThemeAuto, "Terminal preview theme: auto, dark, light")
	renderCmd.Flags().StringVar(&renderCopy, "copy", "", "Copy the raw text of this code block id to the clipboard")
	renderCmd.Flags().BoolVarP(&renderWatch, "watch", "w", false, "Re-render when the file changes")
	renderCmd.MarkFlagsMutuallyExclusive("json", "terminal", "html")
}

func runRender(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 && args[0] != "-" {
		path = args[0]
	}
	if renderWatch && path == "" {
		return fmt.Errorf("--watch needs a file argument")
	}

	r := markdown.New(appConfig.MarkdownOptions())
	once := func() error {
		content, err := readInput(cmd, path)
		if err != nil {
			return err
		}
		return renderOnce(cmd, r, content)
	}
	if err := once(); err != nil {
		return err
	}
	if !renderWatch {
		return nil
	}

	ctx, stop := signal.NotifyContext()
	defer stop()
	fmt.Fprintf(cmd.ErrOrStderr(), "watching %s (ctrl-c to stop)\n", path)
	return watch.File(ctx, path, 0, func() {
		if err := once(); err != nil {
			logger.Logger.Error("re-render failed", "path", path, "err", err)
		}
	})
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func renderOnce(cmd *cobra.Command, r *markdown.Renderer, content string) error {
	res := r.Render(markdown.Input{Content: content, IsStreaming: renderStreaming})
	out := cmd.OutOrStdout()

	switch {
	case renderJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	case useTerminal(cmd):
		width := preview.DefaultWidth
		if f, ok := out.(*os.File); ok {
			width = preview.Width(f)
		}
		text, err := preview.Render(content, width, renderTheme)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, text)
		if index := preview.BlockIndex(res); index != "" {
			fmt.Fprintf(out, "\nCode blocks:\n%s", index)
		}
	default:
		fmt.Fprintln(out, res.HTML)
	}

	if renderCopy != "" {
		return copyBlock(cmd, res, renderCopy)
	}
	return nil
}

func useTerminal(cmd *cobra.Command) bool {
	if renderTerminal {
		return true
	}
	if renderHTML || renderJSON {
		return false
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && preview.IsTerminal(f)
}

func copyBlock(cmd *cobra.Command, res markdown.Result, id string) error {
	block, ok := res.Block(id)
	if !ok {
		ids := make([]string, 0, len(res.Blocks))
		for _, b := range res.Blocks {
			ids = append(ids, b.ID)
		}
		if len(ids) == 0 {
			return fmt.Errorf("no code block %q: the document has no code blocks", id)
		}
		if matches := fuzzy.Find(id, ids); len(matches) > 0 {
			return fmt.Errorf("no code block %q, did you mean %s? (have %s)", id, matches[0].Str, strings.Join(ids, ", "))
		}
		return fmt.Errorf("no code block %q (have %s)", id, strings.Join(ids, ", "))
	}

	button := markdown.NewCopyButton(block, clipboard.NewSystem())
	defer button.Close()
	if err := <-button.Press(); err != nil {
		return fmt.Errorf("copy %s: %w", id, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s (%s)\n", button.Label(), id, block.Label)
	return nil
}
