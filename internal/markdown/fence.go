package markdown

import (
	"regexp"
	"strings"
)

// extendedFenceLine matches a line made of four or more backticks, optionally
// followed by an info string.
var extendedFenceLine = regexp.MustCompile("(?m)^(`{4,})([^\n]*)?$")

// fenceRecord is an extended fence that has been opened but not yet closed.
type fenceRecord struct {
	backticks string
	index     int
}

// CloseUnclosedExtendedFences appends closing lines for every fence of four or
// more backticks that is still open at the end of text.
//
// A fence line with an info string, or one seen while no fence is open, opens
// a fence. A bare fence line closes the most recently opened fence whose
// backtick run is not longer than its own; when no open fence qualifies it is
// treated as a new opener. Fences of three backticks are left to the parser.
//
// Unclosed fences are closed in reverse order of discovery, each with its own
// backtick run. Text that needs no repair is returned unchanged.
func CloseUnclosedExtendedFences(text string) string {
	matches := extendedFenceLine.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var open []fenceRecord
	for _, m := range matches {
		backticks := text[m[2]:m[3]]
		tag := ""
		if m[4] >= 0 {
			tag = strings.TrimSpace(text[m[4]:m[5]])
		}

		if tag != "" || len(open) == 0 {
			open = append(open, fenceRecord{backticks: backticks, index: m[0]})
			continue
		}

		closed := false
		for i := len(open) - 1; i >= 0; i-- {
			if len(open[i].backticks) <= len(backticks) {
				open = append(open[:i], open[i+1:]...)
				closed = true
				break
			}
		}
		if !closed {
			open = append(open, fenceRecord{backticks: backticks, index: m[0]})
		}
	}

	if len(open) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) + len(open)*8)
	b.WriteString(text)
	needNL := !strings.HasSuffix(text, "\n")
	for i := len(open) - 1; i >= 0; i-- {
		if needNL {
			b.WriteByte('\n')
		}
		b.WriteString(open[i].backticks)
		needNL = true
	}
	return b.String()
}
