package serveui

import (
	"bytes"
	"testing"
)

func TestIndexHTML(t *testing.T) {
	page := IndexHTML()
	for _, want := range []string{"/api/render", "/api/styles.css", "/api/convert", ".copy-button", "Copied!"} {
		if !bytes.Contains(page, []byte(want)) {
			t.Errorf("index.html missing %q", want)
		}
	}
	page[0] = 'x'
	if IndexHTML()[0] == 'x' {
		t.Fatal("IndexHTML returned the shared buffer")
	}
}

func TestETag(t *testing.T) {
	tag := ETag()
	if len(tag) != 18 || tag[0] != '"' || tag[len(tag)-1] != '"' {
		t.Fatalf("ETag = %q", tag)
	}

	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{tag, true},
		{"W/" + tag, true},
		{`"other", ` + tag, true},
		{"*", true},
		{`"other"`, false},
	}
	for _, tt := range tests {
		if got := NotModified(tt.header); got != tt.want {
			t.Errorf("NotModified(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
