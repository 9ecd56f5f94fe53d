package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/jmcleod/mealdraw/notify"
)

var (
	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	negativeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	positiveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7")).
			Bold(true)
)

func renderNotice(n notify.Notice) string {
	switch n.Type {
	case notify.Warning:
		return warningStyle.Render("! " + n.Message)
	case notify.Negative:
		return negativeStyle.Render("✗ " + n.Message)
	case notify.Positive:
		return positiveStyle.Render("✓ " + n.Message)
	default:
		return infoStyle.Render("i " + n.Message)
	}
}

// noticePrinter writes notices to a terminal, one per line.
type noticePrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *noticePrinter) Notify(n notify.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, renderNotice(n))
}

// printNavigator reports where the UI would navigate to.
type printNavigator struct {
	w io.Writer
}

func (p *printNavigator) Navigate(_ context.Context, path string) {
	fmt.Fprintln(p.w, labelStyle.Render("→ "+path))
}

func printField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-8s", label+":")), valueStyle.Render(value))
}
