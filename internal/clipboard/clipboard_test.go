package clipboard

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func fakeSystem(goos string, installed ...string) (*System, *[]string) {
	var calls []string
	have := make(map[string]bool)
	for _, name := range installed {
		have[name] = true
	}
	s := &System{
		goos: goos,
		lookPath: func(name string) (string, error) {
			if have[name] {
				return "/usr/bin/" + name, nil
			}
			return "", errors.New("not found")
		},
		run: func(name string, args []string, stdin io.Reader) error {
			data, _ := io.ReadAll(stdin)
			calls = append(calls, strings.TrimSpace(name+" "+strings.Join(args, " "))+"|"+string(data))
			return nil
		},
	}
	return s, &calls
}

func TestSystemCopyTextPicksFirstAvailable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		goos      string
		installed []string
		want      string
	}{
		{name: "macos", goos: "darwin", installed: []string{"pbcopy"}, want: "pbcopy|hello"},
		{name: "wayland preferred", goos: "linux", installed: []string{"xclip", "wl-copy"}, want: "wl-copy|hello"},
		{name: "xclip fallback", goos: "linux", installed: []string{"xclip"}, want: "xclip -selection clipboard|hello"},
		{name: "xsel last", goos: "linux", installed: []string{"xsel"}, want: "xsel --clipboard --input|hello"},
		{name: "windows", goos: "windows", installed: []string{"clip.exe"}, want: "clip.exe|hello"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s, calls := fakeSystem(tc.goos, tc.installed...)
			if err := s.CopyText("hello"); err != nil {
				t.Fatalf("CopyText() error = %v", err)
			}
			if len(*calls) != 1 || (*calls)[0] != tc.want {
				t.Fatalf("calls = %q, want [%q]", *calls, tc.want)
			}
		})
	}
}

func TestSystemCopyTextUnavailable(t *testing.T) {
	t.Parallel()

	s, calls := fakeSystem("linux")
	if err := s.CopyText("x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("CopyText() error = %v, want ErrUnavailable", err)
	}
	if len(*calls) != 0 {
		t.Fatalf("ran %q with nothing installed", *calls)
	}

	s, _ = fakeSystem("plan9", "pbcopy")
	if err := s.CopyText("x"); err == nil || !strings.Contains(err.Error(), "plan9") {
		t.Fatalf("CopyText() error = %v, want unsupported os", err)
	}
}

func TestSystemCopyTextRunError(t *testing.T) {
	t.Parallel()

	s, _ := fakeSystem("darwin", "pbcopy")
	s.run = func(string, []string, io.Reader) error { return errors.New("boom") }
	if err := s.CopyText("x"); err == nil || err.Error() != "boom" {
		t.Fatalf("CopyText() error = %v, want boom", err)
	}
}
