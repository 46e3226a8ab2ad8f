// Package display renders the engine's human-facing log lines. It mirrors
// main.py's four color tags (ACTION, PROGRESS, SUCCESS, ERROR) using
// lipgloss styles instead of raw ANSI escapes, and falls back to plain text
// when REDPILL_NOCOLOR is set or the output isn't a terminal.
package display

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Level names one of the engine's log line styles.
type Level int

const (
	Action Level = iota
	Progress
	Success
	Instruction
	Error
)

// Display is the engine's foreground status sink. Unlike slog (used for
// verbose/debug chatter) Display lines are always shown — they are the
// equivalent of main.py's unconditional print statements.
type Display interface {
	Log(level Level, format string, args ...any)
	// Action logs a top-level step, e.g. "Installing foo 1.0".
	Action(format string, args ...any)
	// Progress logs a minor sub-step, e.g. "Downloading foo-1.0.tar.bz2".
	Progress(format string, args ...any)
	// Success logs a completed step.
	Success(format string, args ...any)
	// Error logs a failure. It does not exit the process.
	Error(format string, args ...any)
}

var styles = map[Level]lipgloss.Style{
	Action:      lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true),
	Progress:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Bold(true),
	Success:     lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
	Instruction: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	Error:       lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
}

var prefixes = map[Level]string{
	Action:      ">> ",
	Progress:    "## ",
	Success:     "** ",
	Instruction: "!! ",
	Error:       "!! ",
}

type console struct {
	mu      sync.Mutex
	out     io.Writer
	noColor bool
}

// New returns a Display writing to w. noColor suppresses styling regardless
// of the terminal, mirroring REDPILL_NOCOLOR.
func New(w io.Writer, noColor bool) Display {
	return &console{out: w, noColor: noColor}
}

// NewStderr is the engine's default Display.
func NewStderr(noColor bool) Display {
	return New(os.Stderr, noColor)
}

func (c *console) Log(level Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	line := prefixes[level] + msg
	if !c.noColor {
		line = styles[level].Render(line)
	}
	c.mu.Lock()
	fmt.Fprintln(c.out, line)
	c.mu.Unlock()
	slog.Debug(msg, "level", levelName(level))
}

func (c *console) Action(format string, args ...any)   { c.Log(Action, format, args...) }
func (c *console) Progress(format string, args ...any) { c.Log(Progress, format, args...) }
func (c *console) Success(format string, args ...any)  { c.Log(Success, format, args...) }
func (c *console) Error(format string, args ...any)    { c.Log(Error, format, args...) }

func levelName(l Level) string {
	switch l {
	case Action:
		return "action"
	case Progress:
		return "progress"
	case Success:
		return "success"
	case Instruction:
		return "instruction"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}
