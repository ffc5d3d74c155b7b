// Package tex converts TeX math to MathML with treeblood and cleans the
// markup for embedding in rendered HTML.
package tex

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/wyatt915/treeblood"
	"golang.org/x/net/html"
)

// ParseError describes TeX that could not be converted.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string { return e.Message }

// ToMathML converts src to a <math> element. Display mode renders a block
// equation. Input treeblood marks with <merror> is reported as a
// *ParseError rather than returned as markup.
func ToMathML(src string, display bool) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", &ParseError{Message: "empty expression"}
	}

	// A Pitziil carries parse state, so each conversion gets its own.
	pitz := treeblood.NewPitziil()
	pitz.PrintOneLine = true
	var out string
	var err error
	if display {
		out, err = pitz.DisplayStyle(src)
	} else {
		out, err = pitz.TextStyle(src)
	}
	if err != nil {
		return "", &ParseError{Message: strings.TrimSpace(err.Error())}
	}
	return Sanitize(out)
}

// mathElements are the MathML elements kept by Sanitize. Anything else is
// dropped and only its text survives, escaped.
var mathElements = map[string]bool{
	"math": true, "semantics": true, "annotation": true,
	"mrow": true, "mi": true, "mn": true, "mo": true, "mtext": true, "ms": true,
	"mspace": true, "mpadded": true, "mphantom": true, "mstyle": true, "merror": true,
	"mfrac": true, "msqrt": true, "mroot": true, "menclose": true,
	"msub": true, "msup": true, "msubsup": true, "munder": true, "mover": true,
	"munderover": true, "mmultiscripts": true, "mprescripts": true, "none": true,
	"mtable": true, "mtr": true, "mlabeledtr": true, "mtd": true,
}

var mathAttributes = map[string]bool{
	"xmlns": true, "display": true, "displaystyle": true, "class": true, "style": true,
	"encoding": true, "mathvariant": true, "mathsize": true, "scriptlevel": true,
	"form": true, "fence": true, "separator": true, "stretchy": true, "strechy": true,
	"symmetric": true, "largeop": true, "movablelimits": true, "accent": true,
	"accentunder": true, "lspace": true, "rspace": true, "minsize": true, "maxsize": true,
	"width": true, "height": true, "depth": true, "voffset": true, "linethickness": true,
	"notation": true, "columnalign": true, "rowalign": true, "columnlines": true,
	"rowlines": true, "columnspacing": true, "rowspacing": true, "columnspan": true,
	"rowspan": true, "frame": true, "title": true,
}

// Sanitize rewrites MathML markup so only known elements and attributes
// remain, text is escaped and attributes are sorted, which keeps repeated
// renders byte-identical. An <merror> element is returned as a *ParseError.
func Sanitize(markup string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(markup))
	var out strings.Builder
	out.Grow(len(markup))

	var (
		errDepth int
		errText  strings.Builder
		errTitle string
		sawError bool
	)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("read mathml: %w", err)
			}
			break
		}
		tok := z.Token()
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if !mathElements[tok.Data] {
				continue
			}
			if tok.Data == "merror" {
				if errDepth == 0 && !sawError {
					errTitle = attrValue(tok, "title")
				}
				errDepth++
				sawError = true
			}
			tok.Attr = cleanAttributes(tok.Attr)
			out.WriteString(tok.String())
		case html.EndTagToken:
			if !mathElements[tok.Data] {
				continue
			}
			if tok.Data == "merror" && errDepth > 0 {
				errDepth--
			}
			out.WriteString(tok.String())
		case html.TextToken:
			if errDepth > 0 {
				errText.WriteString(tok.Data)
			}
			out.WriteString(tok.String())
		}
	}

	if sawError {
		return "", &ParseError{Message: errorMessage(errText.String(), errTitle)}
	}
	return strings.TrimSpace(out.String()), nil
}

func cleanAttributes(attrs []html.Attribute) []html.Attribute {
	kept := attrs[:0]
	for _, a := range attrs {
		if a.Namespace == "" && mathAttributes[a.Key] {
			kept = append(kept, a)
		}
	}
	slices.SortFunc(kept, func(a, b html.Attribute) int { return strings.Compare(a.Key, b.Key) })
	return kept
}

func attrValue(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func errorMessage(text, title string) string {
	text = strings.TrimSpace(text)
	title = strings.TrimSpace(title)
	switch {
	case text == "" && title == "":
		return "invalid math input"
	case title == "":
		return fmt.Sprintf("unsupported command %s", text)
	case text == "":
		return title
	default:
		return text + ": " + title
	}
}
