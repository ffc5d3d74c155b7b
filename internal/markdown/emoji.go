package markdown

import (
	"fmt"
	"html"
	"io"
	"strings"

	nethtml "golang.org/x/net/html"

	"github.com/rivo/uniseg"
)

// Emoji image URL templates. {code} is replaced by the sequence's code
// points in lower-case hex joined with "-".
const (
	DefaultEmojiPrimaryURL  = "https://registry.npmmirror.com/@lobehub/fluent-emoji-3d/latest/files/assets/{code}.webp"
	DefaultEmojiFallbackURL = "https://cdn.jsdelivr.net/gh/jdecked/twemoji@latest/assets/svg/{code}.svg"
)

// EmojiCodePlaceholder marks where an emoji URL template takes the code.
const EmojiCodePlaceholder = "{code}"

const (
	zwj           = '\u200d'
	textSel       = '\ufe0e'
	variationSel  = '\ufe0f'
	keycapCombine = '\u20e3'
)

// EmojiConfig selects the image sources used for emoji substitution.
type EmojiConfig struct {
	PrimaryURL  string
	FallbackURL string
}

// DefaultEmojiConfig returns the Fluent primary and Twemoji fallback sources.
func DefaultEmojiConfig() EmojiConfig {
	return EmojiConfig{
		PrimaryURL:  DefaultEmojiPrimaryURL,
		FallbackURL: DefaultEmojiFallbackURL,
	}
}

func (c EmojiConfig) withDefaults() EmojiConfig {
	if c.PrimaryURL == "" {
		c.PrimaryURL = DefaultEmojiPrimaryURL
	}
	if c.FallbackURL == "" {
		c.FallbackURL = DefaultEmojiFallbackURL
	}
	return c
}

// PrimaryFor returns the primary image URL for an emoji sequence.
func (c EmojiConfig) PrimaryFor(seq []rune) string {
	return strings.ReplaceAll(c.withDefaults().PrimaryURL, EmojiCodePlaceholder, EmojiCode(seq))
}

// FallbackFor returns the fallback image URL for an emoji sequence. U+FE0F
// is dropped unless the sequence is joined with U+200D.
func (c EmojiConfig) FallbackFor(seq []rune) string {
	return strings.ReplaceAll(c.withDefaults().FallbackURL, EmojiCodePlaceholder, EmojiCode(twemojiSequence(seq)))
}

// EmojiCode formats seq as lower-case hex code points joined with "-".
func EmojiCode(seq []rune) string {
	parts := make([]string, len(seq))
	for i, r := range seq {
		parts[i] = fmt.Sprintf("%x", r)
	}
	return strings.Join(parts, "-")
}

func twemojiSequence(seq []rune) []rune {
	for _, r := range seq {
		if r == zwj {
			return seq
		}
	}
	out := make([]rune, 0, len(seq))
	for _, r := range seq {
		if r != variationSel {
			out = append(out, r)
		}
	}
	return out
}

func isRegionalIndicator(r rune) bool { return r >= 0x1f1e6 && r <= 0x1f1ff }

// isPictographic reports whether r is Extended_Pictographic. uniseg only lets
// a variation selector change the width of such runes, so a narrow text form
// and a wide emoji form identify one.
func isPictographic(r rune) bool {
	return uniseg.StringWidth(string([]rune{r, textSel})) == 1 &&
		uniseg.StringWidth(string([]rune{r, variationSel})) == 2
}

// IsEmojiSequence reports whether a grapheme cluster renders as an emoji.
// Presentation follows uniseg's cluster width: a pictograph is an emoji when
// its cluster is two cells wide, either by default or through U+FE0F.
func IsEmojiSequence(cluster []rune) bool {
	if len(cluster) == 0 {
		return false
	}
	first := cluster[0]

	if isRegionalIndicator(first) {
		return len(cluster) == 2 && isRegionalIndicator(cluster[1])
	}

	for _, r := range cluster[1:] {
		if r == keycapCombine {
			return first == '#' || first == '*' || (first >= '0' && first <= '9')
		}
	}

	return isPictographic(first) && uniseg.StringWidth(string(cluster)) == 2
}

// emojiSkipTags are elements whose text is never substituted.
var emojiSkipTags = map[string]bool{
	"code": true,
	"pre":  true,
	"math": true,
}

// SubstituteEmoji replaces emoji sequences in the text of rendered HTML with
// image elements. Only text tokens are touched; markup, attribute values and
// text inside code, pre and math elements pass through byte for byte.
func SubstituteEmoji(src string, cfg EmojiConfig) string {
	if isASCII(src) {
		return src
	}
	cfg = cfg.withDefaults()

	var out strings.Builder
	out.Grow(len(src) + len(src)/4)

	z := nethtml.NewTokenizer(strings.NewReader(src))
	skip := 0
	for {
		tt := z.Next()
		if tt == nethtml.ErrorToken {
			if z.Err() == io.EOF {
				return out.String()
			}
			return src
		}

		// TagName lower-cases the token buffer in place, so copy raw first.
		raw := string(z.Raw())
		switch tt {
		case nethtml.TextToken:
			if skip > 0 {
				out.WriteString(raw)
			} else {
				substituteText(&out, raw, cfg)
			}
		case nethtml.StartTagToken:
			out.WriteString(raw)
			name, _ := z.TagName()
			if emojiSkipTags[string(name)] {
				skip++
			}
		case nethtml.EndTagToken:
			out.WriteString(raw)
			name, _ := z.TagName()
			if emojiSkipTags[string(name)] && skip > 0 {
				skip--
			}
		default:
			out.WriteString(raw)
		}
	}
}

// substituteText writes text to out with each emoji cluster replaced,
// walking the byte positions of the grapheme clusters.
func substituteText(out *strings.Builder, text string, cfg EmojiConfig) {
	if isASCII(text) {
		out.WriteString(text)
		return
	}

	last := 0
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		runes := g.Runes()
		if !IsEmojiSequence(runes) {
			continue
		}
		start, end := g.Positions()
		out.WriteString(text[last:start])
		writeEmojiImage(out, text[start:end], runes, cfg)
		last = end
	}
	out.WriteString(text[last:])
}

func writeEmojiImage(out *strings.Builder, alt string, seq []rune, cfg EmojiConfig) {
	fallback := strings.NewReplacer("'", "%27", `"`, "%22", `\`, "%5C").Replace(cfg.FallbackFor(seq))

	out.WriteString(`<img class="emoji" draggable="false" alt="`)
	out.WriteString(html.EscapeString(alt))
	out.WriteString(`" src="`)
	out.WriteString(html.EscapeString(cfg.PrimaryFor(seq)))
	out.WriteString(`" onerror="this.onerror=null;this.src='`)
	out.WriteString(html.EscapeString(fallback))
	out.WriteString(`'">`)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
