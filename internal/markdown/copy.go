package markdown

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Copy button labels.
const (
	CopyLabel   = "Copy"
	CopiedLabel = "Copied!"
)

// DefaultCopyResetAfter is how long a button shows CopiedLabel after a
// successful copy.
const DefaultCopyResetAfter = 2 * time.Second

// ErrNoClipboard is returned by Press when the button has no clipboard.
var ErrNoClipboard = errors.New("no clipboard available")

// Clipboard writes text to a system clipboard.
type Clipboard interface {
	CopyText(text string) error
}

// CopyButton is the copy affordance of one code block. It always copies the
// block's raw text, never the highlighted markup.
type CopyButton struct {
	block      CodeBlock
	clipboard  Clipboard
	logger     *log.Logger
	resetAfter time.Duration

	mu     sync.Mutex
	copied bool
	gen    uint64
	timer  *time.Timer
}

// CopyOption configures a CopyButton.
type CopyOption func(*CopyButton)

// WithResetAfter overrides how long the copied state lasts.
func WithResetAfter(d time.Duration) CopyOption {
	return func(b *CopyButton) {
		if d > 0 {
			b.resetAfter = d
		}
	}
}

// WithCopyLogger sets the logger used for clipboard failures.
func WithCopyLogger(l *log.Logger) CopyOption {
	return func(b *CopyButton) {
		b.logger = l
	}
}

// NewCopyButton binds a copy button to block.
func NewCopyButton(block CodeBlock, cb Clipboard, opts ...CopyOption) *CopyButton {
	b := &CopyButton{
		block:      block,
		clipboard:  cb,
		resetAfter: DefaultCopyResetAfter,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Block returns the code block the button copies.
func (b *CopyButton) Block() CodeBlock { return b.block }

// Press writes the block's raw text to the clipboard in the background. The
// returned channel receives the outcome and is then closed. On success the
// button reports Copied until the reset delay passes; a failure is logged and
// leaves the button state untouched.
func (b *CopyButton) Press() <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		if b.clipboard == nil {
			b.warn(ErrNoClipboard)
			done <- ErrNoClipboard
			return
		}
		if err := b.clipboard.CopyText(b.block.Raw); err != nil {
			b.warn(err)
			done <- err
			return
		}
		b.markCopied()
		done <- nil
	}()
	return done
}

func (b *CopyButton) warn(err error) {
	if b.logger != nil {
		b.logger.Warn("copy to clipboard failed", "block", b.block.ID, "error", err)
	}
}

func (b *CopyButton) markCopied() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.copied = true
	b.gen++
	gen := b.gen
	if b.timer != nil {
		b.timer.Stop()
	}
	// A later press restarts the delay; stale timers see a newer gen and do nothing.
	b.timer = time.AfterFunc(b.resetAfter, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.gen == gen {
			b.copied = false
			b.timer = nil
		}
	})
}

// Copied reports whether the button is in its acknowledged state.
func (b *CopyButton) Copied() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copied
}

// Label is the text the button currently shows.
func (b *CopyButton) Label() string {
	if b.Copied() {
		return CopiedLabel
	}
	return CopyLabel
}

// Close stops a pending reset and returns the button to its idle state.
func (b *CopyButton) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
	b.copied = false
}
