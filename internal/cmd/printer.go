package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Iron-Ham/horizon/internal/apply"
	"github.com/Iron-Ham/horizon/internal/engine/types"
	"github.com/Iron-Ham/horizon/internal/event"
	"github.com/Iron-Ham/horizon/internal/util"
)

const maxMessageWidth = 100

// printer writes progress lines for one or more concurrent runs. Styling is
// applied only when the output is a terminal.
type printer struct {
	mu     sync.Mutex
	out    io.Writer
	styled bool

	label   lipgloss.Style
	phase   lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
}

func newPrinter(out io.Writer) *printer {
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	return &printer{
		out:     out,
		styled:  styled,
		label:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
		phase:   lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
		success: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#10B981")),
		failure: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444")),
	}
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// update prints one progress line. Terminal updates are left to result.
func (p *printer) update(label string, u event.Update) {
	if u.Type == event.TypeCompleted || u.Type == event.TypeFailed {
		return
	}

	var b strings.Builder
	b.WriteString(p.render(p.label, "["+label+"]"))
	b.WriteString(" ")
	if u.Phase != "" {
		b.WriteString(p.render(p.phase, u.Phase))
		b.WriteString(" ")
	}
	b.WriteString(util.TruncateString(u.Message, maxMessageWidth))
	if u.Confidence != nil {
		b.WriteString(p.render(p.muted, fmt.Sprintf(" (confidence %.2f)", *u.Confidence)))
	}
	b.WriteString(p.render(p.muted, fmt.Sprintf(" · iteration %d", u.TotalIterations)))
	p.printf("%s\n", b.String())
}

// result prints the run summary and, when files were applied, the commit.
func (p *printer) result(label string, res *types.Result, applied *apply.Result) {
	if res == nil {
		p.printf("%s %s\n", p.render(p.label, "["+label+"]"), p.render(p.failure, "no result"))
		return
	}

	var b strings.Builder
	status := p.render(p.success, "✓ success")
	if !res.Success {
		status = p.render(p.failure, "✗ failed")
		if res.Aborted {
			status = p.render(p.failure, "✗ aborted")
		}
	}
	fmt.Fprintf(&b, "%s %s run %s: %d files, %d iterations, %s\n",
		p.render(p.label, "["+label+"]"), status, res.RunID,
		len(res.AllFiles), res.TotalIterations, res.Duration.Round(time.Millisecond))

	for _, ph := range res.Phases {
		fmt.Fprintf(&b, "  %-12s %-9s %d iterations, %d files, confidence %.2f\n",
			ph.Phase, ph.Status, ph.Iterations, len(ph.Files), ph.Confidence)
	}
	for _, msg := range res.Errors {
		fmt.Fprintf(&b, "  %s %s\n", p.render(p.failure, "error:"), util.TruncateString(msg, maxMessageWidth*2))
	}

	if applied != nil {
		switch {
		case !applied.Success:
			fmt.Fprintf(&b, "  %s %s\n", p.render(p.failure, "apply failed:"), strings.Join(applied.Errors, "; "))
		case applied.CommitURL != "":
			fmt.Fprintf(&b, "  applied to %s: %s\n", applied.Branch, applied.CommitURL)
		case applied.Commit != "":
			fmt.Fprintf(&b, "  applied to %s at %s\n", applied.Branch, shortHash(applied.Commit))
		default:
			fmt.Fprintf(&b, "  %s\n", p.render(p.muted, "apply: nothing changed on "+applied.Branch))
		}
	}
	p.printf("%s", b.String())
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
