package tex

import (
	"errors"
	"strings"
	"testing"
)

func TestToMathML(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		display  bool
		contains []string
		absent   []string
	}{
		{
			name:     "inline",
			src:      "x",
			contains: []string{"<math ", `display="inline"`, `xmlns="http://www.w3.org/1998/Math/MathML"`},
			absent:   []string{`display="block"`},
		},
		{
			name:     "display block",
			src:      "x",
			display:  true,
			contains: []string{`display="block"`},
		},
		{
			name:     "superscript",
			src:      "x^2",
			contains: []string{"<msup><mi>x</mi><mn>2</mn></msup>"},
		},
		{
			name:     "fraction",
			src:      `\frac{1}{2}`,
			contains: []string{"<mfrac", "<mn>1</mn><mn>2</mn></mfrac>"},
		},
		{
			name:     "source kept as annotation",
			src:      "a<b",
			contains: []string{`<annotation encoding="application/x-tex">a&lt;b</annotation>`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToMathML(tt.src, tt.display)
			if err != nil {
				t.Fatalf("ToMathML(%q) error: %v", tt.src, err)
			}
			if !strings.HasPrefix(got, "<math ") || !strings.HasSuffix(got, "</math>") {
				t.Errorf("ToMathML(%q) is not a single math element: %s", tt.src, got)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("ToMathML(%q) missing %q\ngot: %s", tt.src, want, got)
				}
			}
			for _, bad := range tt.absent {
				if strings.Contains(got, bad) {
					t.Errorf("ToMathML(%q) should not contain %q\ngot: %s", tt.src, bad, got)
				}
			}
		})
	}
}

func TestToMathMLTextCannotInjectMarkup(t *testing.T) {
	got, err := ToMathML(`\text{<script>alert(1)</script>}`, false)
	if err != nil {
		return
	}
	if strings.Contains(got, "<script") {
		t.Fatalf("markup escaped the math element: %s", got)
	}
}

func TestToMathMLIsStable(t *testing.T) {
	src := `A = \begin{pmatrix} a & b \\ c & d \end{pmatrix}`
	first, err := ToMathML(src, true)
	if err != nil {
		t.Fatalf("ToMathML: %v", err)
	}
	for i := 0; i < 20; i++ {
		got, err := ToMathML(src, true)
		if err != nil {
			t.Fatalf("ToMathML: %v", err)
		}
		if got != first {
			t.Fatalf("render %d differs:\n%s\nwant:\n%s", i, got, first)
		}
	}
}

func TestToMathMLErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		contains string
	}{
		{"empty", "   ", "empty expression"},
		{"undefined command", `x + \foo`, "foo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToMathML(tt.src, false)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("ToMathML(%q) error = %v, want *ParseError", tt.src, err)
			}
			if !strings.Contains(perr.Message, tt.contains) {
				t.Errorf("message = %q, want it to contain %q", perr.Message, tt.contains)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "attributes sorted",
			input: `<math xmlns="http://www.w3.org/1998/Math/MathML" display="block" class="c"><mi>x</mi></math>`,
			want:  `<math class="c" display="block" xmlns="http://www.w3.org/1998/Math/MathML"><mi>x</mi></math>`,
		},
		{
			name:  "unknown attributes dropped",
			input: `<math onclick="alert(1)" href="javascript:alert(1)"><mi>x</mi></math>`,
			want:  `<math><mi>x</mi></math>`,
		},
		{
			name:  "foreign elements dropped",
			input: `<math><mi>a</mi><script>alert(1)</script><img src=x onerror=alert(1)></math>`,
			want:  `<math><mi>a</mi>alert(1)</math>`,
		},
		{
			name:  "bare ampersand escaped",
			input: `<math><annotation encoding="application/x-tex">a & b</annotation></math>`,
			want:  `<math><annotation encoding="application/x-tex">a &amp; b</annotation></math>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sanitize(tt.input)
			if err != nil {
				t.Fatalf("Sanitize: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeReportsMathErrors(t *testing.T) {
	_, err := Sanitize(`<math><mi>x</mi><merror title=" requires an argument">not</merror></math>`)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
	if perr.Message != "not: requires an argument" {
		t.Fatalf("message = %q", perr.Message)
	}
}
