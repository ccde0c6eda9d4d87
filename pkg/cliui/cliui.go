// Package cliui provides reusable terminal UI helpers (spinners, step
// indicators, key/value styles) for strata CLI commands.
package cliui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"charm.land/lipgloss/v2"
	"golang.org/x/term"
)

var (
	SuccessMark  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	StepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	KeyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	ValueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	DimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	WarnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Step prints an animated spinner while fn runs, then replaces it with
// a ✓ or ✗ checkmark and elapsed time. The spinner is only drawn when w is
// a terminal.
func Step(w io.Writer, msg string, fn func() error) error {
	var mu sync.Mutex
	done := make(chan struct{})
	stopped := make(chan struct{})

	prefix := ""
	if IsTerminal(w) {
		prefix = "\r"
		go spin(w, msg, &mu, done, stopped)
	} else {
		close(stopped)
	}

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	close(done)
	<-stopped

	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(w, "%s  %s %s %s\n",
		prefix,
		Mark(err),
		msg,
		StepStyle.Render(fmt.Sprintf("(%s)", FormatDuration(elapsed))),
	)

	return err
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func spin(w io.Writer, msg string, mu *sync.Mutex, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	frame := 0
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		mu.Lock()
		fmt.Fprintf(w, "\r  %s %s",
			spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]),
			msg,
		)
		mu.Unlock()

		select {
		case <-done:
			return
		case <-ticker.C:
			frame++
		}
	}
}

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// KeyValue renders an aligned "key  value" line; empty values render as <not set>.
func KeyValue(key, value string) string {
	if value == "" {
		return fmt.Sprintf("  %s  %s", KeyStyle.Render(key), DimStyle.Render("<not set>"))
	}
	return fmt.Sprintf("  %s  %s", KeyStyle.Render(key), ValueStyle.Render(value))
}
