// Package export turns rendered markdown into downloadable documents.
package export

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/samsaffron/markview/internal/logger"
	"github.com/samsaffron/markview/internal/markdown"
)

const (
	FormatHTML = "html"
	FormatPDF  = "pdf"
	FormatDocx = "docx"
)

// DefaultTitle is used when a request carries no title.
const DefaultTitle = "Conversation Export"

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrEmptyMarkdown     = errors.New("no markdown content provided")
)

var contentTypes = map[string]string{
	FormatHTML: "text/html; charset=utf-8",
	FormatPDF:  "application/pdf",
	FormatDocx: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// Request describes one conversion.
type Request struct {
	Markdown string `json:"markdown"`
	Format   string `json:"format"`
	Title    string `json:"title,omitempty"`
}

// Artifact is a converted document ready to be sent as an attachment.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ContentDisposition returns the attachment header value for a.
func (a Artifact) ContentDisposition() string {
	return fmt.Sprintf("attachment; filename=%q", a.Filename)
}

var documentTemplate = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; max-width: 800px; margin: 40px auto; padding: 20px; line-height: 1.6; color: #333; }
h1 { color: #2c3e50; border-bottom: 2px solid #3498db; padding-bottom: 10px; }
h2 { color: #34495e; margin-top: 24px; }
h3 { color: #7f8c8d; }
code { font-family: 'Courier New', monospace; }
hr { border: none; border-top: 1px solid #ddd; margin: 24px 0; }
.copy-button { display: none; }
{{.Style}}
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// Document renders md with r and wraps it in a standalone HTML page. The
// copy buttons are hidden since a printed page cannot use them.
func Document(title, md string, r *markdown.Renderer, styleCSS string) (string, error) {
	if title == "" {
		title = DefaultTitle
	}
	res := r.Render(markdown.Input{Content: md})

	var buf bytes.Buffer
	err := documentTemplate.Execute(&buf, struct {
		Title string
		Style template.CSS
		Body  template.HTML
	}{
		Title: title,
		Style: template.CSS(styleCSS),
		Body:  template.HTML(res.HTML),
	})
	if err != nil {
		return "", fmt.Errorf("execute document template: %w", err)
	}
	return buf.String(), nil
}

// Filename returns conversation-<unix>-<md5[:8]>.<format>.
func Filename(md, format string, now time.Time) string {
	sum := md5.Sum([]byte(md))
	return fmt.Sprintf("conversation-%d-%s.%s", now.Unix(), hex.EncodeToString(sum[:])[:8], format)
}

// Exporter converts markdown to html, pdf or docx documents.
type Exporter struct {
	Renderer  *markdown.Renderer
	Gotenberg *GotenbergClient // nil disables pdf
	Now       func() time.Time
	Logger    *log.Logger
}

// NewExporter returns an Exporter using r for rendering and gotenberg for pdf.
func NewExporter(r *markdown.Renderer, gotenberg *GotenbergClient) *Exporter {
	return &Exporter{
		Renderer:  r,
		Gotenberg: gotenberg,
		Now:       time.Now,
		Logger:    logger.NewComponentLogger("export"),
	}
}

// Convert dispatches req by format.
func (e *Exporter) Convert(ctx context.Context, req Request) (Artifact, error) {
	if strings.TrimSpace(req.Markdown) == "" {
		return Artifact{}, ErrEmptyMarkdown
	}
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = FormatPDF
	}
	contentType, ok := contentTypes[format]
	if !ok {
		return Artifact{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
	if format == FormatPDF && e.Gotenberg == nil {
		return Artifact{}, fmt.Errorf("%w: pdf export is not configured", ErrUnsupportedFormat)
	}

	data, err := e.render(ctx, format, req)
	if err != nil {
		return Artifact{}, err
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	a := Artifact{
		Filename:    Filename(req.Markdown, format, now()),
		ContentType: contentType,
		Data:        data,
	}
	if e.Logger != nil {
		e.Logger.Info("converted document", "file", a.Filename, "bytes", len(a.Data))
	}
	return a, nil
}

func (e *Exporter) render(ctx context.Context, format string, req Request) ([]byte, error) {
	if format == FormatDocx {
		return DocxDocument(req.Title, req.Markdown)
	}

	css, err := e.Renderer.StyleSheet()
	if err != nil {
		return nil, fmt.Errorf("build stylesheet: %w", err)
	}
	doc, err := Document(req.Title, req.Markdown, e.Renderer, css)
	if err != nil {
		return nil, err
	}
	if format == FormatPDF {
		return e.Gotenberg.ConvertHTML(ctx, doc)
	}
	return []byte(doc), nil
}
