// Package display renders the assistant's state on a terminal.
package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Primary lipgloss.Color
	Accent  lipgloss.Color
	Dim     lipgloss.Color
	Error   lipgloss.Color
}

var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Accent:  lipgloss.Color("#ffb86c"),
	Dim:     lipgloss.Color("#6e7681"),
	Error:   lipgloss.Color("#ff5555"),
}

type styles struct {
	status     lipgloss.Style
	active     lipgloss.Style
	idle       lipgloss.Style
	transcript lipgloss.Style
	reply      lipgloss.Style
	heading    lipgloss.Style
	panel      lipgloss.Style
	err        lipgloss.Style
}

func newStyles(r *lipgloss.Renderer, t Theme) styles {
	return styles{
		status:     r.NewStyle().Bold(true).Foreground(t.Primary),
		active:     r.NewStyle().Foreground(t.Accent),
		idle:       r.NewStyle().Foreground(t.Dim),
		transcript: r.NewStyle().Italic(true),
		reply:      r.NewStyle().Foreground(t.Primary),
		heading:    r.NewStyle().Bold(true).Underline(true),
		panel: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Primary).
			Padding(0, 1),
		err: r.NewStyle().Bold(true).Foreground(t.Error),
	}
}

// Console prints one line per state change. It is safe for concurrent use.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	st     styles
	width  int
	active bool
}

func NewConsole(w io.Writer, width int) *Console {
	if width <= 0 {
		width = 80
	}
	r := lipgloss.NewRenderer(w)
	return &Console{w: w, st: newStyles(r, DefaultTheme), width: width}
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, s)
}

func (c *Console) Status(text string) {
	c.println(c.st.status.Render("● " + text))
}

// Activity reports whether the user is currently audible. Only transitions
// are printed.
func (c *Console) Activity(active bool) {
	c.mu.Lock()
	changed := c.active != active
	c.active = active
	c.mu.Unlock()
	if !changed {
		return
	}
	if active {
		c.println(c.st.active.Render("◉ speaking"))
	} else {
		c.println(c.st.idle.Render("○ quiet"))
	}
}

func (c *Console) Transcript(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	c.println(c.st.transcript.Render("you: " + text))
}

func (c *Console) Reply(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	c.println(c.st.reply.Render("risi: " + text))
}

func (c *Console) Error(err error) {
	c.println(c.st.err.Render("error: " + err.Error()))
}

// Content shows long-form markdown in a bordered panel. Headings are
// emphasised, everything else is wrapped as is.
func (c *Console) Content(markdown string) {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return
	}

	lines := strings.Split(markdown, "\n")
	for i, line := range lines {
		if h, ok := heading(line); ok {
			lines[i] = c.st.heading.Render(h)
		}
	}

	c.println(c.st.panel.Width(c.width - 2).Render(strings.Join(lines, "\n")))
}

func heading(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, "#")
	if trimmed == line || !strings.HasPrefix(trimmed, " ") {
		return "", false
	}
	return strings.TrimSpace(trimmed), true
}
