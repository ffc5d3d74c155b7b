// Package logger configures the structured logger shared by markview's
// packages.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// EnvLogLevel overrides the default level when no level is configured.
const EnvLogLevel = "MARKVIEW_LOG_LEVEL"

// Logger is the global logger.
var Logger *log.Logger

var (
	mu     sync.Mutex
	output io.Writer = os.Stderr
	closer io.Closer
)

func init() {
	Logger = log.New(os.Stderr)
	Logger.SetTimeFormat("")
	Logger.SetLevel(log.InfoLevel)
}

// Configure sets the level and destination of the global logger. The level
// falls back to $MARKVIEW_LOG_LEVEL, then info. A non-empty file sends output
// to a size-rotated log file instead of stderr.
func Configure(level, file string) error {
	if level == "" {
		level = os.Getenv(EnvLogLevel)
	}

	var out io.Writer = os.Stderr
	var c io.Closer
	if file != "" {
		rf, err := NewRotatingFile(file)
		if err != nil {
			return err
		}
		out, c = rf, rf
	}

	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		_ = closer.Close()
	}
	output, closer = out, c

	Logger = log.New(out)
	Logger.SetTimeFormat("")
	if file != "" {
		Logger.SetTimeFormat("2006-01-02 15:04:05")
	}
	Logger.SetLevel(ParseLevel(level))
	return nil
}

// Close releases the log file opened by Configure, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	output = os.Stderr
	Logger = log.New(os.Stderr)
	Logger.SetTimeFormat("")
	return err
}

// ParseLevel converts a level name to a log level. Unknown names are info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// NewComponentLogger creates a logger for one component, writing to the
// global destination with the global level.
func NewComponentLogger(prefix string) *log.Logger {
	styles := log.DefaultStyles()
	styles.Levels[log.InfoLevel] = levelStyle("INFO", "33")
	styles.Levels[log.ErrorLevel] = levelStyle("ERROR", "196")
	styles.Levels[log.DebugLevel] = levelStyle("DEBUG", "240")
	styles.Levels[log.WarnLevel] = levelStyle("WARN", "214")
	styles.Levels[log.FatalLevel] = levelStyle("FATAL", "88")

	styles.Keys["error"] = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styles.Keys["block"] = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	styles.Keys["path"] = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	styles.Values["error"] = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	mu.Lock()
	out := output
	level := Logger.GetLevel()
	mu.Unlock()

	l := log.NewWithOptions(out, log.Options{
		Prefix: prefix,
	})
	l.SetStyles(styles)
	l.SetLevel(level)
	return l
}

func levelStyle(name, bg string) lipgloss.Style {
	return lipgloss.NewStyle().
		SetString(name).
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color(bg)).
		Foreground(lipgloss.Color("15"))
}
