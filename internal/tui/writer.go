// Package tui renders tracked violations and the event stream in a terminal UI.
package tui

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"birdnest/internal/geometry"
	"birdnest/internal/monitor"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// updateMsg carries one violation update.
type updateMsg struct{ monitor.Update }

// logMsg carries a line for the event log.
type logMsg struct{ line string }

// statusMsg carries a monitor status snapshot.
type statusMsg struct{ monitor.Status }

// Writer feeds violation updates into a bubbletea program.
type Writer struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewWriter starts the TUI and returns a Writer. Quitting the TUI interrupts
// the process so the service shuts down with it.
func NewWriter(zone geometry.Zone) *Writer {
	w := &Writer{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newModel(zone), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Write implements sink.Writer.
func (w *Writer) Write(u monitor.Update) error {
	w.program.Send(updateMsg{u})
	w.program.Send(logMsg{line: formatUpdate(u, time.Now())})
	return nil
}

// SetStatus refreshes the header.
func (w *Writer) SetStatus(s monitor.Status) {
	w.program.Send(statusMsg{s})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *Writer) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

func formatUpdate(u monitor.Update, now time.Time) string {
	ts := colorGray + "[" + now.Format(time.TimeOnly) + "]" + colorReset
	if u.Violation == nil {
		return fmt.Sprintf("%s %sEXPIRED%s %s", ts, colorYellow, colorReset, u.Serial)
	}
	v := u.Violation
	line := fmt.Sprintf("%s %sUPDATE%s %s%s%s closest=%.1fm pos=(%.0f,%.0f)",
		ts, colorRed, colorReset, colorCyan, u.Serial, colorReset,
		v.ClosestDistance/1000, v.PositionX, v.PositionY)
	if v.Pilot != nil {
		line += fmt.Sprintf(" %spilot=%s%s", colorGreen, v.Pilot.Name(), colorReset)
	}
	return line
}
