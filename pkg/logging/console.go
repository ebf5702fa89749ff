package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level represents the console verbosity level
type Level int

const (
	// LevelQuiet shows only warnings, errors and the final summary
	LevelQuiet Level = iota
	// LevelNormal shows standard sync progress (default)
	LevelNormal
	// LevelVerbose shows every page, probe and placement
	LevelVerbose
	// LevelDebug shows all internal details for debugging
	LevelDebug
)

// ParseLevel maps a verbosity name to a Level.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "quiet":
		return LevelQuiet, nil
	case "", "normal":
		return LevelNormal, nil
	case "verbose":
		return LevelVerbose, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelNormal, fmt.Errorf("invalid verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", name)
	}
}

// Printer renders human-facing progress on the terminal. It is safe for
// concurrent use; each message is written as one unit.
type Printer struct {
	level  Level
	writer io.Writer
	mu     sync.Mutex

	header  *color.Color
	section *color.Color
	info    *color.Color
	success *color.Color
	warn    *color.Color
	err     *color.Color
	muted   *color.Color

	stepCount int
}

// NewPrinter creates a printer writing to stdout at the given level
func NewPrinter(level Level) *Printer {
	return NewPrinterTo(os.Stdout, level)
}

// NewPrinterTo creates a printer writing to w
func NewPrinterTo(w io.Writer, level Level) *Printer {
	return &Printer{
		level:   level,
		writer:  w,
		header:  color.New(color.FgWhite, color.Bold),
		section: color.New(color.FgCyan),
		info:    color.New(color.FgHiMagenta),
		success: color.New(color.FgGreen, color.Bold),
		warn:    color.New(color.FgYellow),
		err:     color.New(color.FgRed, color.Bold),
		muted:   color.New(color.FgHiBlack),
	}
}

// Header prints a prominent header message
func (p *Printer) Header(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.level >= LevelNormal {
		rule := strings.Repeat("=", 60)
		p.header.Fprintf(p.writer, "\n%s\n  %s\n%s\n", rule, message, rule)
	}
}

// Section prints a section divider
func (p *Printer) Section(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.level >= LevelNormal {
		fmt.Fprintln(p.writer)
		p.section.Fprintf(p.writer, "▶ %s\n", title)
		p.muted.Fprintf(p.writer, "%s\n", strings.Repeat("─", 40))
	}
}

// Step prints a numbered step
func (p *Printer) Step(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.level >= LevelNormal {
		p.stepCount++
		p.section.Fprintf(p.writer, "[%d] %s\n", p.stepCount, message)
	}
}

// Successf prints a success message with checkmark
func (p *Printer) Successf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.level >= LevelNormal {
		p.success.Fprintf(p.writer, "✓ %s\n", fmt.Sprintf(format, args...))
	}
}

// Infof prints an informational message
func (p *Printer) Infof(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.level >= LevelNormal {
		p.info.Fprintf(p.writer, "  %s\n", fmt.Sprintf(format, args...))
	}
}

// Warnf prints a warning message
func (p *Printer) Warnf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warn.Fprintf(p.writer, "⚠ Warning: %s\n", fmt.Sprintf(format, args...))
}

// Errorf prints an error message
func (p *Printer) Errorf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err.Fprintf(p.writer, "✗ Error: %s\n", fmt.Sprintf(format, args...))
}

// Verbosef prints detailed information (only in verbose mode)
func (p *Printer) Verbosef(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.level >= LevelVerbose {
		p.muted.Fprintf(p.writer, "→ %s\n", fmt.Sprintf(format, args...))
	}
}

// Debugf prints debug information (only in debug mode)
func (p *Printer) Debugf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.level >= LevelDebug {
		p.muted.Fprintf(p.writer, "[DEBUG] %s\n", fmt.Sprintf(format, args...))
	}
}
