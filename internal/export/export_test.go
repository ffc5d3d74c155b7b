package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/samsaffron/markview/internal/markdown"
)

func testRenderer() *markdown.Renderer {
	opts := markdown.DefaultOptions()
	opts.Logger = log.New(io.Discard)
	return markdown.New(opts)
}

func testExporter(g *GotenbergClient) *Exporter {
	e := NewExporter(testRenderer(), g)
	e.Logger = log.New(io.Discard)
	e.Now = func() time.Time { return time.Unix(1700000000, 0) }
	return e
}

func TestFilename(t *testing.T) {
	got := Filename("hello", "pdf", time.Unix(1700000000, 0))
	// md5("hello") = 5d41402abc4b2a76b9719d911017c592
	want := "conversation-1700000000-5d41402a.pdf"
	if got != want {
		t.Fatalf("Filename = %q, want %q", got, want)
	}
}

func TestDocument(t *testing.T) {
	doc, err := Document("", "# Title\n\n```go\nx := 1\n```\n\n<script>alert(1)</script>", testRenderer(), ".chroma{}")
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	for _, want := range []string{
		"<!DOCTYPE html>",
		"<title>Conversation Export</title>",
		".chroma{}",
		"<h1>Title</h1>",
		`class="code-block"`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q", want)
		}
	}
	if strings.Contains(doc, "<script>") {
		t.Errorf("document contains raw script")
	}
	if strings.Contains(doc, "streaming-cursor") {
		t.Errorf("document contains streaming cursor")
	}
}

func TestDocumentTitleEscaped(t *testing.T) {
	doc, err := Document("<b>x</b>", "text", testRenderer(), "")
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if !strings.Contains(doc, "<title>&lt;b&gt;x&lt;/b&gt;</title>") {
		t.Fatalf("title not escaped: %s", doc)
	}
}

func TestConvertHTML(t *testing.T) {
	a, err := testExporter(nil).Convert(context.Background(), Request{Markdown: "hello", Format: "HTML"})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if a.Filename != "conversation-1700000000-5d41402a.html" {
		t.Errorf("filename = %q", a.Filename)
	}
	if a.ContentType != "text/html; charset=utf-8" {
		t.Errorf("content type = %q", a.ContentType)
	}
	if !strings.Contains(string(a.Data), "<p>hello</p>") {
		t.Errorf("data = %s", a.Data)
	}
	if a.ContentDisposition() != `attachment; filename="conversation-1700000000-5d41402a.html"` {
		t.Errorf("disposition = %q", a.ContentDisposition())
	}
}

func TestConvertErrors(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"empty markdown", Request{Markdown: "", Format: "html"}, ErrEmptyMarkdown},
		{"whitespace markdown", Request{Markdown: " \n\t", Format: "html"}, ErrEmptyMarkdown},
		{"unknown", Request{Markdown: "x", Format: "odt"}, ErrUnsupportedFormat},
		{"pdf without gotenberg", Request{Markdown: "x", Format: "pdf"}, ErrUnsupportedFormat},
		{"default format is pdf", Request{Markdown: "x"}, ErrUnsupportedFormat},
	}
	e := testExporter(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Convert(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Convert error = %v, want %v", err, tt.want)
			}
		})
	}
}

func docxBody(t *testing.T, data []byte) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open docx: %v", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open document.xml: %v", err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read document.xml: %v", err)
		}
		return string(b)
	}
	t.Fatal("docx has no word/document.xml")
	return ""
}

func TestConvertDocx(t *testing.T) {
	md := "# Heading One\n\nSome **bold** and `code` text.\n\n- first item\n- second item\n\n> quoted\n\n```go\nx := 1 < 2\n```\n\n| a | b |\n|---|---|\n| c | d |\n\n<script>alert(1)</script>\n"
	a, err := testExporter(nil).Convert(context.Background(), Request{Markdown: md, Format: "docx", Title: "Notes"})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !strings.HasPrefix(a.Filename, "conversation-1700000000-") || !strings.HasSuffix(a.Filename, ".docx") {
		t.Errorf("filename = %q", a.Filename)
	}
	if a.ContentType != "application/vnd.openxmlformats-officedocument.wordprocessingml.document" {
		t.Errorf("content type = %q", a.ContentType)
	}

	body := docxBody(t, a.Data)
	for _, want := range []string{
		`w:val="Title"`,
		">Notes<",
		`w:val="Heading1"`,
		">Heading One<",
		">bold<",
		`w:val="MacroTextChar"`,
		`w:val="ListBullet"`,
		">second item<",
		`w:val="Quote"`,
		`w:val="MacroText"`,
		"x := 1 &lt; 2",
		"<w:tbl",
		">d<",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("document.xml missing %q", want)
		}
	}
	if strings.Contains(body, "alert(1)") {
		t.Errorf("raw html leaked into docx")
	}
}

func TestDocxDocumentDefaultTitle(t *testing.T) {
	data, err := DocxDocument("", "1. one\n2. two\n")
	if err != nil {
		t.Fatalf("DocxDocument: %v", err)
	}
	body := docxBody(t, data)
	if !strings.Contains(body, ">"+DefaultTitle+"<") {
		t.Errorf("default title missing")
	}
	if !strings.Contains(body, `w:val="ListNumber"`) || !strings.Contains(body, ">two<") {
		t.Errorf("ordered list not exported")
	}
}

func TestConvertPDF(t *testing.T) {
	var gotHTML string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forms/chromium/convert/html" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			t.Errorf("content type: %v", err)
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		part, err := mr.NextPart()
		if err != nil {
			t.Errorf("next part: %v", err)
			return
		}
		if part.FormName() != "files" || part.FileName() != "index.html" {
			t.Errorf("part name=%q file=%q", part.FormName(), part.FileName())
		}
		data, _ := io.ReadAll(part)
		gotHTML = string(data)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7 fake"))
	}))
	defer srv.Close()

	e := testExporter(NewGotenbergClient(srv.URL+"/", 5*time.Second))
	a, err := e.Convert(context.Background(), Request{Markdown: "**bold**", Format: "pdf"})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if string(a.Data) != "%PDF-1.7 fake" {
		t.Errorf("data = %q", a.Data)
	}
	if a.ContentType != "application/pdf" || !strings.HasSuffix(a.Filename, ".pdf") {
		t.Errorf("artifact = %+v", a)
	}
	if !strings.Contains(gotHTML, "<strong>bold</strong>") {
		t.Errorf("uploaded html = %s", gotHTML)
	}
}

func TestGotenbergError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chromium crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewGotenbergClient(srv.URL, time.Second)
	_, err := c.ConvertHTML(context.Background(), "<p>x</p>")
	if err == nil || !strings.Contains(err.Error(), "status 500") || !strings.Contains(err.Error(), "chromium crashed") {
		t.Fatalf("ConvertHTML error = %v", err)
	}
}

func TestGotenbergContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewGotenbergClient(srv.URL, time.Second).ConvertHTML(ctx, "x"); err == nil {
		t.Fatal("ConvertHTML succeeded with canceled context")
	}
}
