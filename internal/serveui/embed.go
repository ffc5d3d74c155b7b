// Package serveui embeds the browser preview served by markview serve --ui.
package serveui

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"strings"
)

//go:embed static/index.html
var indexHTML []byte

var indexETag = func() string {
	sum := sha256.Sum256(indexHTML)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}()

// IndexHTML returns a copy of the preview page.
func IndexHTML() []byte {
	out := make([]byte, len(indexHTML))
	copy(out, indexHTML)
	return out
}

// ETag is the strong entity tag of the preview page.
func ETag() string { return indexETag }

// NotModified reports whether an If-None-Match header value already names
// the current page.
func NotModified(ifNoneMatch string) bool {
	for _, tag := range strings.Split(ifNoneMatch, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" || strings.TrimPrefix(tag, "W/") == indexETag {
			return true
		}
	}
	return false
}
