package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samsaffron/markview/internal/export"
	"github.com/samsaffron/markview/internal/markdown"
	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOutput string
	exportTitle  string
)

var exportCmd = &cobra.Command{
	Use:   "export <file|pattern>...",
	Short: "Export markdown to standalone HTML, PDF or Word documents",
	Long: `Export markdown to standalone documents.

html and docx are rendered locally. pdf is converted by Gotenberg at
export.gotenberg_url (or $GOTENBERG_URL). Arguments may be ** glob
patterns; with several inputs -o names a directory and each document is
named after its source file.

Examples:
  markview export notes.md                       # conversation-<ts>-<hash>.html
  markview export notes.md --format pdf -o notes.pdf
  markview export notes.md --format docx
  markview export 'docs/**/*.md' -o out/
  markview export - --format html -o - < notes.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", export.FormatHTML, "Output format: html, pdf or docx")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output path, directory for several inputs, or - for stdout")
	exportCmd.Flags().StringVar(&exportTitle, "title", export.DefaultTitle, "Document title")
}

func runExport(cmd *cobra.Command, args []string) error {
	inputs, err := expandInputs(args)
	if err != nil {
		return err
	}
	batch := len(inputs) > 1
	if batch && exportOutput == "-" {
		return fmt.Errorf("-o - needs a single input, got %d", len(inputs))
	}

	cfg := appConfig
	r := markdown.New(cfg.MarkdownOptions())
	exporter := export.NewExporter(r, export.NewGotenbergClient(cfg.Export.GotenbergURL, cfg.ExportTimeout()))

	for _, in := range inputs {
		if err := exportOne(cmd, exporter, in, batch); err != nil {
			return err
		}
	}
	return nil
}

// expandInputs resolves glob patterns; "-" stands for stdin.
func expandInputs(args []string) ([]string, error) {
	var inputs []string
	for _, arg := range args {
		if arg == "-" || !strings.ContainsAny(arg, "*?[{") {
			inputs = append(inputs, arg)
			continue
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", arg)
		}
		inputs = append(inputs, matches...)
	}
	return inputs, nil
}

func exportOne(cmd *cobra.Command, exporter *export.Exporter, in string, batch bool) error {
	path := in
	if path == "-" {
		path = ""
	}
	content, err := readInput(cmd, path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), appConfig.ExportTimeout()+5*time.Second)
	defer cancel()
	artifact, err := exporter.Convert(ctx, export.Request{
		Markdown: content,
		Format:   exportFormat,
		Title:    exportTitle,
	})
	if err != nil {
		if path != "" {
			return fmt.Errorf("%s: %w", path, err)
		}
		return err
	}

	if exportOutput == "-" {
		_, err := cmd.OutOrStdout().Write(artifact.Data)
		return err
	}

	out := exportOutput
	switch {
	case batch:
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + filepath.Ext(artifact.Filename)
		out = filepath.Join(exportOutput, name)
	case out == "":
		out = artifact.Filename
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(out, artifact.Data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes, %s)\n", out, len(artifact.Data), strings.SplitN(artifact.ContentType, ";", 2)[0])
	return nil
}
