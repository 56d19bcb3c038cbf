package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/lerobot-pi0/pkg/pilot"
	"github.com/gwillem/lerobot-pi0/pkg/robot"
)

type ContinuousCommand struct {
	ControlHz float64 `long:"control-hz" description:"Trajectory request frequency"`
	policyFlags
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Motor colors - distinct colors for each motor
var motorColors = map[robot.MotorName]string{
	robot.ShoulderPan:  "196", // red
	robot.ShoulderLift: "208", // orange
	robot.ElbowFlex:    "226", // yellow
	robot.WristFlex:    "46",  // green
	robot.WristRoll:    "51",  // cyan
	robot.Gripper:      "201", // magenta
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// chanWriter feeds log lines into the TUI, dropping when nobody reads.
type chanWriter struct {
	ch chan string
}

func (w chanWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	select {
	case w.ch <- msg:
	default:
	}
	return len(p), nil
}

func newChannelLogger(ch chan string) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        chanWriter{ch: ch},
		NoColor:    true,
		TimeFormat: "15:04:05",
	}).With().Timestamp().Logger()
}

type monitorModel struct {
	runner   *pilot.Runner
	logCh    chan string
	errCh    chan error
	chart    *streamlinechart.Model
	width    int
	height   int
	logs     []string
	quitting bool
	step     int
	total    int
	hz       float64
}

func (m *monitorModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the runner
type updateMsg pilot.StepUpdate
type logMsg string
type doneMsg struct{ err error }

func waitForUpdate(r *pilot.Runner) tea.Cmd {
	return func() tea.Msg {
		return updateMsg(<-r.Updates())
	}
}

func waitForLog(ch chan string) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ch)
	}
}

func waitForDone(ch chan error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{err: <-ch}
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *monitorModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *monitorModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialMonitorModel(runner *pilot.Runner, logCh chan string, errCh chan error, hz float64) monitorModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-200, 200),
	)

	// Set up data set styles for each motor
	for _, name := range robot.AllMotors() {
		color := motorColors[name]
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(color))
		chart.SetDataSetStyles(string(name), runes.ThinLineStyle, style)
	}

	return monitorModel{
		runner: runner,
		logCh:  logCh,
		errCh:  errCh,
		chart:  &chart,
		hz:     hz,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		waitForUpdate(m.runner),
		waitForLog(m.logCh),
		waitForDone(m.errCh),
	)
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case updateMsg:
		u := pilot.StepUpdate(msg)
		m.step = u.Step
		m.total = u.Total
		for i, name := range robot.AllMotors() {
			if i < len(u.Command) {
				m.chart.PushDataSet(string(name), u.Command[i])
			}
		}
		m.chart.DrawAll()
		return m, waitForUpdate(m.runner)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.logCh)

	case doneMsg:
		if msg.err != nil && msg.err != context.Canceled {
			m.addLog(fmt.Sprintf("runner stopped: %v", msg.err))
		}
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Continuous control stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("LeRobot-Pi0 Continuous"))
	sb.WriteString(fmt.Sprintf(" - %g Hz trajectories", m.hz))
	if m.total > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  step %d/%d", m.step+1, m.total)))
	}
	sb.WriteString("\n\n")

	// Chart of commanded positions
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9"))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, name := range robot.AllMotors() {
		color := motorColors[name]
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
		item := colorStyle.Render("━━") + " " + string(name)
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}

func (c *ContinuousCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	c.policyFlags.apply(&cfg.Policy)
	if c.ControlHz != 0 {
		cfg.Policy.ControlHz = c.ControlHz
	}

	logCh := make(chan string, 10)
	logger := newChannelLogger(logCh)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner, cleanup, err := buildRunner(ctx, cfg, nil, logger, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	errCh := make(chan error, 1)
	done := make(chan struct{})
	var runErr error
	go func() {
		runErr = runner.RunContinuous(ctx)
		errCh <- runErr
		close(done)
	}()

	p := tea.NewProgram(
		initialMonitorModel(runner, logCh, errCh, cfg.Policy.TrajectoryHz),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run monitor: %w", err)
	}

	// Let the current trajectory reach a terminal state before exiting.
	stop()
	<-done
	if runErr != nil && runErr != context.Canceled {
		return runErr
	}
	return nil
}
