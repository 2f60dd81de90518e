package sim

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"twinsim/internal/config"
	"twinsim/internal/fault"
	"twinsim/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a tick log line for the viewport.
type logMsg struct{ line string }

// alertMsg carries an alert log line.
type alertMsg struct{ line string }

// recordMsg carries the latest tick record for the status panes.
type recordMsg struct{ telemetry.TickRecord }

var (
	styleHeader   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	styleOK       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleWarn     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleCritical = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	styleDim      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleSync     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

// TUIWriter renders the run using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter.
func NewTUIWriter(cfg *config.Config) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	m := newTUIModel(cfg)
	p := tea.NewProgram(m, tea.WithAltScreen())
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

// Write implements RecordWriter.
func (w *TUIWriter) Write(rec telemetry.TickRecord) error {
	line := fmt.Sprintf("%s t=%-6d cpu=%5.1f%% mem=%7.1fKB batt=%5.1f%% drift=%.3f acc=%.3f",
		styleDim.Render(fmt.Sprintf("[%6.0fs]", rec.TimestampS)),
		rec.Tick,
		rec.CPUUtilization*100,
		rec.MemoryUsedKB,
		rec.BatteryPercent,
		rec.StateDrift,
		rec.StateAccuracy,
	)
	if rec.Temperature != nil {
		line += fmt.Sprintf(" temp=%.1f hum=%.0f lux=%.0f", *rec.Temperature, *rec.Humidity, *rec.Light)
	}
	if rec.SyncEvent {
		line += " " + styleSync.Render("SYNC")
	}
	w.program.Send(logMsg{line: line})
	w.program.Send(recordMsg{rec})
	return nil
}

// WriteBatch outputs multiple tick records.
func (w *TUIWriter) WriteBatch(recs []telemetry.TickRecord) error {
	for _, r := range recs {
		_ = w.Write(r)
	}
	return nil
}

// WriteAlert implements AlertWriter.
func (w *TUIWriter) WriteAlert(a fault.Alert) error {
	style := styleWarn
	if a.Severity == fault.SeverityCritical {
		style = styleCritical
	}
	w.program.Send(alertMsg{line: style.Render(a.String())})
	return nil
}

// WriteAlerts outputs multiple alerts.
func (w *TUIWriter) WriteAlerts(alerts []fault.Alert) error {
	for _, a := range alerts {
		_ = w.WriteAlert(a)
	}
	return nil
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	cfg *config.Config

	table   table.Model
	vp      viewport.Model
	alertVP viewport.Model

	logs      []string
	alertLogs []string
	last      telemetry.TickRecord

	wrap       bool
	autoscroll bool
	help       bool

	width        int
	height       int
	headerHeight int
}

func newTUIModel(cfg *config.Config) tuiModel {
	cols := []table.Column{
		{Title: "Config", Width: 24},
		{Title: "Value", Width: 14},
		{Title: "Config", Width: 24},
		{Title: "Value", Width: 14},
	}
	rows := []table.Row{
		{"Strategy", cfg.Sync.Strategy, "Seed", fmt.Sprintf("%d", cfg.Simulation.RandomSeed)},
		{"Duration (h)", fmt.Sprintf("%.1f", cfg.Simulation.DurationHours), "Sampling (s)", fmt.Sprintf("%d", cfg.Simulation.SamplingRateS)},
		{"Battery (mAh)", fmt.Sprintf("%.0f", cfg.Device.Battery.CapacityMAh), "RAM (KB)", fmt.Sprintf("%.0f", cfg.Device.Memory.TotalRAMKB)},
		{"Edge Filtering", fmt.Sprintf("%t", cfg.Edge.Enabled), "Compression", fmt.Sprintf("%t", cfg.Edge.CompressionEnabled)},
	}
	t := table.New(table.WithColumns(cols), table.WithRows(rows), table.WithHeight(len(rows)+1))
	return tuiModel{
		cfg:        cfg,
		table:      t,
		vp:         viewport.New(0, 0),
		alertVP:    viewport.New(0, 0),
		autoscroll: true,
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.alertVP.Width = msg.Width
		m.headerHeight = lipgloss.Height(m.renderHeader())
		m.updateViewportHeight()
		m.refreshViewport()
		m.refreshAlerts()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			m.refreshAlerts()
		case "a":
			m.autoscroll = !m.autoscroll
		case "?":
			m.help = !m.help
		case "up", "k":
			m.vp.LineUp(1)
		case "down", "j":
			m.vp.LineDown(1)
		case "pgup":
			m.vp.ViewUp()
		case "pgdown":
			m.vp.ViewDown()
		}
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > 2000 {
			m.logs = m.logs[len(m.logs)-2000:]
		}
		m.refreshViewport()
	case alertMsg:
		m.alertLogs = append(m.alertLogs, msg.line)
		if len(m.alertLogs) > 500 {
			m.alertLogs = m.alertLogs[len(m.alertLogs)-500:]
		}
		m.refreshAlerts()
	case recordMsg:
		m.last = msg.TickRecord
	}
	return m, nil
}

func (m *tuiModel) updateViewportHeight() {
	alertHeight := m.height / 5
	if alertHeight < 3 {
		alertHeight = 3
	}
	m.alertVP.Height = alertHeight
	h := m.height - m.headerHeight - alertHeight - 2
	if h < 3 {
		h = 3
	}
	m.vp.Height = h
}

func (m *tuiModel) refreshViewport() {
	content := strings.Join(m.logs, "\n")
	if m.wrap && m.vp.Width > 0 {
		content = wordwrap.String(content, m.vp.Width)
	}
	m.vp.SetContent(content)
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshAlerts() {
	content := strings.Join(m.alertLogs, "\n")
	if m.wrap && m.alertVP.Width > 0 {
		content = wordwrap.String(content, m.alertVP.Width)
	}
	m.alertVP.SetContent(content)
	m.alertVP.GotoBottom()
}

func (m tuiModel) renderHeader() string {
	title := styleHeader.Render("twinsim · device/twin synchronization")
	status := fmt.Sprintf("tick %d · battery %s · accuracy %s · last sync t=%d",
		m.last.Tick,
		batteryStyle(m.last.BatteryPercent).Render(fmt.Sprintf("%.1f%%", m.last.BatteryPercent)),
		styleOK.Render(fmt.Sprintf("%.3f", m.last.StateAccuracy)),
		m.last.LastSyncTick,
	)
	return lipgloss.JoinVertical(lipgloss.Left, title, m.table.View(), status)
}

func batteryStyle(pct float64) lipgloss.Style {
	switch {
	case pct < 5:
		return styleCritical
	case pct < 20:
		return styleWarn
	}
	return styleOK
}

func (m tuiModel) View() string {
	if m.help {
		return strings.Join([]string{
			styleHeader.Render("keys"),
			"  q       quit",
			"  w       toggle word wrap",
			"  a       toggle autoscroll",
			"  ?       toggle this help",
			"  up/down scroll tick log",
		}, "\n")
	}
	header := m.renderHeader()
	alerts := styleDim.Render(fmt.Sprintf("alerts (%d)", len(m.alertLogs))) + "\n" + m.alertVP.View()
	footer := styleDim.Render(fmt.Sprintf("[q]uit [w]rap [a]utoscroll [?]help · %s", time.Now().Format("15:04:05")))
	return lipgloss.JoinVertical(lipgloss.Left, header, m.vp.View(), alerts, footer)
}
