package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/jamesainslie/hasher/pkg/hasher/types"
)

// ProgressModel shows a spinner, a bar, and counters while files are
// processed.
type ProgressModel struct {
	title     string
	progress  types.Progress
	spinner   spinner.Model
	startTime time.Time
	width     int
	done      bool
	err       error
}

// ProgressMsg is sent when progress is updated.
type ProgressMsg types.Progress

// DoneMsg is sent when the work finishes.
type DoneMsg struct {
	Err error
}

// NewProgressModel creates a progress model with the given title.
func NewProgressModel(title string) ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = titleStyle

	return ProgressModel{
		title:     title,
		spinner:   s,
		startTime: time.Now(),
		width:     80,
	}
}

// Init starts the spinner.
func (m ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case ProgressMsg:
		m.progress = types.Progress(msg)
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the model. A finished model renders nothing so the
// result output starts on a clean line.
func (m ProgressModel) View() string {
	if m.done {
		if m.err != nil {
			return errorTextStyle.Render("  "+m.title+" failed") + "\n"
		}
		return ""
	}

	width := max(m.width-4, 40)

	var b strings.Builder
	fmt.Fprintf(&b, "  %s %s %s\n", m.spinner.View(), titleStyle.Render(m.title), m.counters())
	b.WriteString(m.renderBar(width))
	b.WriteString("\n")
	if m.progress.CurrentPath != "" {
		b.WriteString(mutedTextStyle.Render("  " + truncatePath(m.progress.CurrentPath, width-2)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m ProgressModel) counters() string {
	p := m.progress
	parts := []string{fmt.Sprintf("%d/%d files", p.FilesDone, p.FilesTotal)}
	if p.BytesDone > 0 {
		parts = append(parts, humanize.IBytes(uint64(p.BytesDone)))
	}
	parts = append(parts, time.Since(m.startTime).Round(100*time.Millisecond).String())
	return mutedTextStyle.Render(strings.Join(parts, "  "))
}

func (m ProgressModel) renderBar(width int) string {
	barWidth := max(width-4, 10)
	filled := 0
	if m.progress.FilesTotal > 0 {
		filled = int(int64(barWidth) * m.progress.FilesDone / m.progress.FilesTotal)
	}
	filled = min(filled, barWidth)

	return "  " + progressFillStyle.Render(strings.Repeat("█", filled)) +
		progressEmptyStyle.Render(strings.Repeat("░", barWidth-filled))
}

// truncatePath shortens a path from the left to fit width.
func truncatePath(path string, width int) string {
	if width <= 3 || len(path) <= width {
		return path
	}
	return "..." + path[len(path)-(width-3):]
}

// Run executes work while rendering a progress display on out. work
// receives a callback that forwards progress to the display. The display
// takes no keyboard input; interrupts reach the process as signals and
// cancel ctx.
func Run(ctx context.Context, out io.Writer, title string, work func(report func(types.Progress)) error) error {
	p := tea.NewProgram(NewProgressModel(title),
		tea.WithContext(ctx),
		tea.WithOutput(out),
		tea.WithInput(nil),
	)

	workErr := make(chan error, 1)
	go func() {
		err := work(func(pr types.Progress) {
			p.Send(ProgressMsg(pr))
		})
		workErr <- err
		p.Send(DoneMsg{Err: err})
	}()

	_, runErr := p.Run()
	err := <-workErr
	if err != nil {
		return err
	}
	if runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("progress display: %w", runErr)
	}
	return nil
}
