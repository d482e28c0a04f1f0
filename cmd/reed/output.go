package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ProjectMoon/reed/internal/daemon"
)

var (
	addStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	updateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	removeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	readyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

// formatEvent renders one daemon event as a single line.
func formatEvent(ev daemon.Event) string {
	ts := dimStyle.Render(ev.Time.Format(time.TimeOnly))
	kind := dimStyle.Render(fmt.Sprintf("%-5s", ev.Content))

	switch ev.Kind {
	case daemon.EventReady:
		return fmt.Sprintf("%s %s %s", ts, kind, readyStyle.Render("ready"))
	case daemon.EventAdd:
		return fmt.Sprintf("%s %s %s %s", ts, kind, label(addStyle, "add"), ev.Title)
	case daemon.EventUpdate:
		return fmt.Sprintf("%s %s %s %s", ts, kind, label(updateStyle, "update"), ev.Title)
	case daemon.EventRemove:
		return fmt.Sprintf("%s %s %s %s", ts, kind, label(removeStyle, "remove"), ev.Path)
	case daemon.EventError:
		return fmt.Sprintf("%s %s %s %v", ts, kind, label(errorStyle, "error"), ev.Err)
	default:
		return fmt.Sprintf("%s %s %s", ts, kind, ev.Kind)
	}
}

// label pads word to a fixed column outside the styled text.
func label(style lipgloss.Style, word string) string {
	return style.Render(word) + strings.Repeat(" ", max(0, 7-len(word)))
}

// syncSummary counts the events of one initial pass.
type syncSummary struct {
	added, updated, removed, errors int
}

func (s *syncSummary) record(ev daemon.Event) {
	switch ev.Kind {
	case daemon.EventAdd:
		s.added++
	case daemon.EventUpdate:
		s.updated++
	case daemon.EventRemove:
		s.removed++
	case daemon.EventError:
		s.errors++
	}
}

func (s syncSummary) print(w io.Writer, kind string) {
	line := fmt.Sprintf("%s: %s added, %s updated, %s removed",
		titleStyle.Render(kind),
		addStyle.Render(fmt.Sprint(s.added)),
		updateStyle.Render(fmt.Sprint(s.updated)),
		removeStyle.Render(fmt.Sprint(s.removed)))
	if s.errors > 0 {
		line += ", " + errorStyle.Render(fmt.Sprintf("%d errors", s.errors))
	}
	fmt.Fprintln(w, line)
}
