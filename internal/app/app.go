// Package app renders ingest progress in the terminal with bubbletea.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	ingestprogress "github.com/mishka251/goszakupki-parces/internal/progress"
)

// --- Styles ---
var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	progressBarStyle  = lipgloss.NewStyle().Padding(0, 1)
	regionHeaderStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	regionStatusStyle = map[string]lipgloss.Style{
		StatusQueued:   lipgloss.NewStyle().Foreground(lipgloss.Color("248")),
		StatusLoading:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		StatusComplete: lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
	}
)

// Task is the background work driven by the view. It must report progress
// through the given reporter and honour ctx.
type Task func(ctx context.Context, rep ingestprogress.Reporter) error

// RegionProgress is the displayed state of one region.
type RegionProgress struct {
	Region  string
	Status  string
	Percent int
	Done    int
	Total   int
	File    string
	Start   time.Time
	Elapsed time.Duration
}

type AppModel struct {
	State            AppState
	spinner          spinner.Model
	overallProgress  progress.Model
	progressBarWidth int

	mu          sync.RWMutex
	regions     map[string]*RegionProgress
	regionOrder []string

	task      Task
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	done      chan struct{}
	taskErr   error
	lastError error

	termWidth  int
	termHeight int

	uiMsgChan chan tea.Msg // never reassigned, closed by the task goroutine
	logger    *slog.Logger
}

// NewAppModel prepares a view for the given regions. The task starts with Init.
func NewAppModel(ctx context.Context, regions []string, task Task, logger *slog.Logger) *AppModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ctx, cancel := context.WithCancel(ctx)
	m := &AppModel{
		State:           Running,
		spinner:         s,
		overallProgress: progress.New(progress.WithDefaultGradient()),
		regions:         make(map[string]*RegionProgress, len(regions)),
		task:            task,
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
		uiMsgChan:       make(chan tea.Msg),
		startTime:       time.Now(),
		termWidth:       100,
		termHeight:      30,
		logger:          logger,
	}
	for _, r := range regions {
		m.regions[r] = &RegionProgress{Region: r, Status: StatusQueued}
		m.regionOrder = append(m.regionOrder, r)
	}
	return m
}

// --- Bubbletea Interface ---

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startTask(), m.waitForActivityCmd())
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			if m.State == Running {
				m.logger.Warn("Ingest interrupted from the terminal.")
			}
			m.cancel()
			m.State = Exiting
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height
		m.progressBarWidth = max(0, m.termWidth-4)
		m.overallProgress.Width = m.progressBarWidth
	case RegionProgressMsg:
		m.applyRegionProgress(msg)
		cmds = append(cmds, m.overallProgress.SetPercent(m.overallPercent()))
	case TaskFinishedMsg:
		m.lastError = msg.Err
		if msg.Err != nil {
			m.State = ShowError
		} else {
			m.State = Finished
		}
		return m, tea.Quit
	case spinner.TickMsg:
		if m.State == Running {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	case progress.FrameMsg:
		progModel, frameCmd := m.overallProgress.Update(msg)
		if newModel, ok := progModel.(progress.Model); ok {
			m.overallProgress = newModel
			cmds = append(cmds, frameCmd)
		}
	}

	if _, ok := msg.(RegionProgressMsg); ok {
		cmds = append(cmds, m.waitForActivityCmd())
	}
	return m, tea.Batch(cmds...)
}

func (m *AppModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("--- Goszakupki Software Purchases ---"))
	b.WriteString("\n\n")
	b.WriteString(m.viewProgress())

	switch m.State {
	case Running:
		b.WriteString("\n")
		b.WriteString(infoStyle.Render("Ingest running... 'q' or Ctrl+C to stop."))
	case Finished:
		b.WriteString("\n")
		b.WriteString(infoStyle.Render(fmt.Sprintf("Done in %s.", time.Since(m.startTime).Round(time.Second))))
	case ShowError:
		b.WriteString("\n")
		b.WriteString(m.viewError())
	case Exiting:
		b.WriteString("\n")
		b.WriteString(infoStyle.Render("Stopping..."))
	}
	b.WriteString("\n")
	return b.String()
}

// Wait blocks until the background task has returned and yields its error.
func (m *AppModel) Wait() error {
	<-m.done
	return m.taskErr
}

// Cancel stops the background task.
func (m *AppModel) Cancel() { m.cancel() }

// --- View Helpers ---

func (m *AppModel) viewProgress() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var b strings.Builder

	complete := 0
	for _, rp := range m.regions {
		if rp.Status == StatusComplete {
			complete++
		}
	}
	b.WriteString(fmt.Sprintf("%s Regions loaded: %d/%d\n", m.spinner.View(), complete, len(m.regionOrder)))
	b.WriteString(progressBarStyle.Render(m.overallProgress.View()))
	b.WriteString("\n\n")

	maxLines := m.termHeight - 10
	if maxLines < 1 {
		maxLines = 1
	}
	startIdx := 0
	if len(m.regionOrder) > maxLines {
		startIdx = len(m.regionOrder) - maxLines
	}

	b.WriteString(regionHeaderStyle.Render(fmt.Sprintf("%-30s | %-10s | %5s | %-9s | %s", "Region", "Status", "%", "Files", "Elapsed")))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", m.termWidth))
	b.WriteString("\n")
	for i := startIdx; i < len(m.regionOrder); i++ {
		rp := m.regions[m.regionOrder[i]]
		style, ok := regionStatusStyle[rp.Status]
		if !ok {
			style = infoStyle
		}
		elapsed := ""
		if rp.Elapsed > 0 {
			elapsed = rp.Elapsed.Round(time.Millisecond).String()
		} else if !rp.Start.IsZero() {
			elapsed = time.Since(rp.Start).Round(time.Second).String() + "..."
		}
		name := rp.Region
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		b.WriteString(fmt.Sprintf("%-30s | %-10s | %4d%% | %4d/%-4d | %s", name, style.Render(rp.Status), rp.Percent, rp.Done, rp.Total, elapsed))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *AppModel) viewError() string {
	var b strings.Builder
	b.WriteString(errorStyle.Render("Ingest finished with errors:"))
	b.WriteString("\n")
	if m.lastError != nil {
		b.WriteString(wrapText(m.lastError.Error(), m.termWidth-4))
	}
	b.WriteString("\n")
	return b.String()
}

// --- Update Helpers ---

func (m *AppModel) applyRegionProgress(msg RegionProgressMsg) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rp, ok := m.regions[msg.Region]
	if !ok {
		rp = &RegionProgress{Region: msg.Region}
		m.regions[msg.Region] = rp
		m.regionOrder = append(m.regionOrder, msg.Region)
	}
	if rp.Start.IsZero() {
		rp.Start = time.Now()
	}
	if msg.Percent >= rp.Percent {
		rp.Percent = msg.Percent
	}
	rp.Done, rp.Total, rp.File = msg.Done, msg.Total, msg.File
	rp.Status = StatusLoading
	if rp.Percent >= 100 {
		rp.Status = StatusComplete
		rp.Elapsed = time.Since(rp.Start)
	}
}

func (m *AppModel) overallPercent() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.regionOrder) == 0 {
		return 0
	}
	sum := 0
	for _, rp := range m.regions {
		sum += rp.Percent
	}
	return float64(sum) / float64(100*len(m.regionOrder))
}

func (m *AppModel) waitForActivityCmd() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.uiMsgChan
		if !ok {
			return nil
		}
		return msg
	}
}

// send forwards a message to the UI unless the view has gone away.
func (m *AppModel) send(msg tea.Msg) {
	select {
	case m.uiMsgChan <- msg:
	case <-m.ctx.Done():
	}
}

// --- Task Starter ---

func (m *AppModel) startTask() tea.Cmd {
	return func() tea.Msg {
		updates := make(chan ingestprogress.Update, 64)
		translated := make(chan struct{})

		go func() {
			defer close(translated)
			for u := range updates {
				m.send(NewRegionProgress(u))
			}
		}()

		go func() {
			defer close(m.done)
			err := m.task(m.ctx, ingestprogress.ChannelReporter{C: updates})
			close(updates)
			<-translated
			m.taskErr = err
			m.send(NewTaskFinished(m.startTime, err))
			close(m.uiMsgChan)
		}()
		return nil
	}
}

func wrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return text
	}
	var result strings.Builder
	var currentLine strings.Builder
	for _, word := range strings.Fields(text) {
		if currentLine.Len() > 0 && currentLine.Len()+len(word)+1 > maxWidth {
			result.WriteString(currentLine.String())
			result.WriteString("\n")
			currentLine.Reset()
		}
		if currentLine.Len() > 0 {
			currentLine.WriteString(" ")
		}
		currentLine.WriteString(word)
	}
	result.WriteString(currentLine.String())
	return result.String()
}
