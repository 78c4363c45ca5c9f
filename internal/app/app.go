// Package app is the full-screen terminal view of a conversion batch:
// one row per comic with its pipeline stage, plus an overall bar. It
// consumes pipeline events translated onto a tea.Msg channel.
package app

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"comicsqueeze/internal/orchestrator"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	barStyle    = lipgloss.NewStyle().Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	stageStyles = map[orchestrator.Stage]lipgloss.Style{
		orchestrator.StageQueued:      lipgloss.NewStyle().Foreground(lipgloss.Color("248")),
		orchestrator.StageExtracting:  lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		orchestrator.StageTranscoding: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		orchestrator.StageRepackaging: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		orchestrator.StageComplete:    lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		orchestrator.StageSkipped:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		orchestrator.StageFailed:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

type fileRow struct {
	Name    string
	Stage   orchestrator.Stage
	Percent float64
	ErrMsg  string
	Start   time.Time
	Elapsed time.Duration
}

// Model drives the conversion view. Create it with NewModel and hand it
// to tea.NewProgram.
type Model struct {
	state   viewState
	total   int
	spinner spinner.Model
	overall progress.Model
	logger  *slog.Logger

	mu    sync.RWMutex
	rows  map[string]*fileRow
	order []string
	done  int

	Finished *BatchFinishedMsg
	Quitting bool

	termWidth  int
	termHeight int

	uiMsgChan chan tea.Msg
}

func NewModel(total int, uiMsgChan chan tea.Msg, logger *slog.Logger) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &Model{
		state:     converting,
		total:     total,
		spinner:   s,
		overall:   progress.New(progress.WithDefaultGradient()),
		logger:    logger,
		rows:      make(map[string]*fileRow),
		order:     make([]string, 0),
		uiMsgChan: uiMsgChan,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForActivityCmd(m.uiMsgChan))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.logger.Info("quit requested, letting in-flight conversions finish.")
			m.Quitting = true
			m.state = exiting
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height
		m.overall.Width = max(0, m.termWidth-16)
	case FileProgressMsg:
		cmd = m.applyFileProgress(msg)
		cmds = append(cmds, cmd)
	case BatchFinishedMsg:
		m.logger.Info("batch finished.",
			slog.Int("converted", msg.Converted),
			slog.Int("skipped", msg.Skipped),
			slog.Int("failed", msg.Failed),
			slog.Duration("duration", msg.EndTime.Sub(msg.StartTime).Round(time.Millisecond)),
		)
		m.Finished = &msg
		m.state = exiting
		m.uiMsgChan = nil
		return m, tea.Quit
	case spinner.TickMsg:
		if m.state == converting {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	case progress.FrameMsg:
		if m.state == converting {
			progModel, frameCmd := m.overall.Update(msg)
			if newModel, ok := progModel.(progress.Model); ok {
				m.overall = newModel
				cmds = append(cmds, frameCmd)
			}
		}
	}

	if m.uiMsgChan != nil {
		cmds = append(cmds, m.waitForActivityCmd(m.uiMsgChan))
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) applyFileProgress(msg FileProgressMsg) tea.Cmd {
	m.mu.Lock()
	row, exists := m.rows[msg.Path]
	if !exists {
		row = &fileRow{Name: msg.Name, Stage: orchestrator.StageQueued, Start: time.Now()}
		m.rows[msg.Path] = row
		m.order = append(m.order, msg.Path)
	}
	row.Stage = msg.Stage
	row.ErrMsg = msg.ErrMsg
	if msg.Percent > row.Percent {
		row.Percent = msg.Percent
	}
	if msg.Stage.Terminal() {
		row.Percent = 1.0
		if row.Elapsed == 0 {
			row.Elapsed = time.Since(row.Start)
		}
		m.done++
	}
	done := m.done
	m.mu.Unlock()

	var percent float64
	if m.total > 0 {
		percent = float64(done) / float64(m.total)
	}
	return m.overall.SetPercent(percent)
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("--- Comic Squeeze ---"))
	b.WriteString("\n\n")

	switch m.state {
	case converting:
		b.WriteString(m.viewProgress())
		b.WriteString("\n")
		b.WriteString(infoStyle.Render("Converting... 'q' or Ctrl+C to stop after the current files."))
	case exiting:
		b.WriteString(infoStyle.Render("Shutting down..."))
	}

	b.WriteString("\n")
	return b.String()
}

func (m *Model) viewProgress() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s Converting %d comic(s)\n", m.spinner.View(), m.total))
	b.WriteString(barStyle.Render(m.overall.View()))
	b.WriteString(fmt.Sprintf(" (%d/%d)\n\n", m.done, m.total))

	if len(m.order) == 0 {
		return b.String()
	}

	// Until the first WindowSizeMsg arrives the height is unknown; show everything.
	maxLines := len(m.order)
	if m.termHeight > 0 {
		maxLines = m.termHeight - 10
		if maxLines < 1 {
			maxLines = 1
		}
	}
	startIdx := 0
	if len(m.order) > maxLines {
		startIdx = len(m.order) - maxLines
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-40s | %-12s | %8s | %s", "File", "Stage", "Progress", "Elapsed")))
	b.WriteString("\n")
	for i := startIdx; i < len(m.order); i++ {
		row := m.rows[m.order[i]]
		if row == nil {
			continue
		}
		style, ok := stageStyles[row.Stage]
		if !ok {
			style = infoStyle
		}

		elapsedStr := ""
		if row.Elapsed > 0 {
			elapsedStr = row.Elapsed.Round(time.Millisecond).String()
		} else if !row.Start.IsZero() && row.Stage != orchestrator.StageQueued {
			elapsedStr = time.Since(row.Start).Round(time.Second).String() + "..."
		}

		name := row.Name
		if len(name) > 40 {
			name = name[:37] + "..."
		}
		b.WriteString(fmt.Sprintf("%-40s | %-12s | %7.0f%% | %s\n",
			name, style.Render(row.Stage.String()), row.Percent*100, elapsedStr))
		if row.Stage == orchestrator.StageFailed && row.ErrMsg != "" {
			b.WriteString(errorStyle.Render("  -> " + row.ErrMsg))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// waitForActivityCmd blocks on the translator channel and republishes
// whatever arrives as the next bubbletea message.
func (m *Model) waitForActivityCmd(uiMsgChan chan tea.Msg) tea.Cmd {
	if uiMsgChan == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-uiMsgChan
		if !ok {
			return nil
		}
		return msg
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
