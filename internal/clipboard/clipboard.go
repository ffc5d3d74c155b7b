// Package clipboard writes text to the system clipboard using the platform's
// command line utilities.
package clipboard

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
)

// ErrUnavailable is returned when no clipboard utility can be found.
var ErrUnavailable = errors.New("no clipboard utility found")

// command is one clipboard writer invocation.
type command struct {
	name string
	args []string
}

// candidates lists clipboard writers per GOOS, in order of preference.
var candidates = map[string][]command{
	"darwin": {{name: "pbcopy"}},
	"linux": {
		{name: "wl-copy"}, // Wayland
		{name: "xclip", args: []string{"-selection", "clipboard"}},
		{name: "xsel", args: []string{"--clipboard", "--input"}},
	},
	"windows": {{name: "clip.exe"}},
}

// System copies text with the first available utility for its OS.
type System struct {
	goos     string
	lookPath func(string) (string, error)
	run      func(name string, args []string, stdin io.Reader) error
}

// NewSystem returns a clipboard for the running OS.
func NewSystem() *System {
	return &System{
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		run:      runCommand,
	}
}

func runCommand(name string, args []string, stdin io.Reader) error {
	cmd := exec.Command(name, args...)
	cmd.Stdin = stdin
	if out, err := cmd.CombinedOutput(); err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// CopyText copies text to the system clipboard
func (s *System) CopyText(text string) error {
	cmds, ok := candidates[s.goos]
	if !ok {
		return fmt.Errorf("clipboard not supported on %s", s.goos)
	}
	for _, c := range cmds {
		if _, err := s.lookPath(c.name); err != nil {
			continue
		}
		return s.run(c.name, c.args, strings.NewReader(text))
	}
	if s.goos == "linux" {
		return fmt.Errorf("%w (install wl-copy, xclip or xsel)", ErrUnavailable)
	}
	return ErrUnavailable
}

// CopyText copies text using the system clipboard.
func CopyText(text string) error {
	return NewSystem().CopyText(text)
}
