package viz

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/interval"
	"github.com/san-kum/cosim/internal/protocol"
)

const historyCapacity = 600

type TickMsg time.Time

// Model is the live view of one run.
type Model struct {
	feed       *Feed
	problem    string
	start, end float64

	flag       protocol.Flag
	width      float64
	t          float64
	intervals  int
	turns      int
	failures   int
	iterations []float64
	residuals  []float64
	history    []IntervalMsg // successful intervals only
	value      dynamo.Value

	node, component int

	done     bool
	report   *interval.RunReport
	err      error
	showHelp bool
	frame    int
}

func NewModel(feed *Feed, problem string, start, end float64) Model {
	return Model{
		feed:    feed,
		problem: problem,
		start:   start,
		end:     end,
		t:       start,
		flag:    protocol.FlagNone,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/10, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.feed.Next(), tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.feed.Stop()
			return m, tea.Quit
		case "n":
			m.cycleNode(1)
		case "p":
			m.cycleNode(-1)
		case "c":
			m.cycleComponent()
		case "t":
			NextTheme()
		case "?":
			m.showHelp = !m.showHelp
		}
		return m, nil

	case IntervalMsg:
		m.observe(msg)
		return m, m.feed.Next()

	case WidthMsg:
		m.width = msg.Width
		return m, m.feed.Next()

	case DoneMsg:
		m.done = true
		m.report = msg.Report
		m.err = msg.Err
		if msg.Report != nil {
			m.flag = msg.Report.Final
		}
		return m, nil

	case TickMsg:
		m.frame++
		if m.done {
			return m, nil
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) observe(msg IntervalMsg) {
	m.turns++
	m.flag = msg.Flag
	m.width = msg.Width
	m.intervals = msg.Interval

	if msg.Flag == protocol.FlagFailed {
		m.failures++
		return
	}
	if !msg.Flag.Success() {
		return
	}

	m.t = msg.Time
	m.value = msg.Value
	m.iterations = appendBounded(m.iterations, float64(msg.Iterations))
	m.residuals = appendBounded(m.residuals, msg.Residual)
	m.history = append(m.history, msg)
	if len(m.history) > historyCapacity {
		m.history = m.history[1:]
	}
}

func appendBounded(s []float64, v float64) []float64 {
	s = append(s, v)
	if len(s) > historyCapacity {
		s = s[1:]
	}
	return s
}

func (m *Model) cycleNode(dir int) {
	n := len(m.value)
	if n == 0 {
		return
	}
	m.node = (m.node + dir + n) % n
	m.component = 0
}

func (m *Model) cycleComponent() {
	if m.node >= len(m.value) || len(m.value[m.node]) == 0 {
		return
	}
	m.component = (m.component + 1) % len(m.value[m.node])
}

// series is the selected node component at every interval end.
func (m Model) series() []float64 {
	out := make([]float64, 0, len(m.history))
	for _, h := range m.history {
		if m.node < len(h.Value) && m.component < len(h.Value[m.node]) {
			out = append(out, h.Value[m.node][m.component])
		}
	}
	return out
}

func (m Model) progress() float64 {
	span := m.end - m.start
	if span <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, (m.t-m.start)/span))
}

func (m Model) View() string {
	var s strings.Builder

	spinner := AnimatedSpinner(m.frame)
	if m.done {
		spinner = "■"
	}
	s.WriteString(headerStyle().Render(fmt.Sprintf("%s %s", spinner, strings.ToUpper(m.problem))) + "\n\n")
	s.WriteString(labelStyle.Render("Flag") + FlagBadge(m.flag) + "\n")
	s.WriteString(labelStyle.Render("Progress") + ProgressBar(m.progress(), 30) +
		valueStyle.Render(fmt.Sprintf(" %5.1f%%", 100*m.progress())) + "\n")
	s.WriteString(labelStyle.Render("Time") + valueStyle.Render(fmt.Sprintf("%.4g / %.4g", m.t, m.end)) + "\n")
	s.WriteString(labelStyle.Render("Width") + valueStyle.Render(fmt.Sprintf("%.4g", m.width)) + "\n")
	s.WriteString(labelStyle.Render("Intervals") + valueStyle.Render(fmt.Sprintf("%d (%d turns, %d failed)", m.intervals, m.turns, m.failures)) + "\n")

	if n := len(m.iterations); n > 0 {
		s.WriteString(labelStyle.Render("Iterations") + valueStyle.Render(fmt.Sprintf("%.0f", m.iterations[n-1])) + " " + Sparkline(m.iterations, 30) + "\n")
		s.WriteString(labelStyle.Render("Residual") + valueStyle.Render(fmt.Sprintf("%.3g", m.residuals[n-1])) + " " + Sparkline(logScale(m.residuals), 30) + "\n")
	}

	if series := m.series(); len(series) > 1 {
		chart := asciigraph.Plot(series,
			asciigraph.Height(8),
			asciigraph.Width(50),
			asciigraph.Caption(fmt.Sprintf("node %d x%d", m.node, m.component)))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}

	if m.done {
		s.WriteString("\n" + Separator(40) + "\n")
		switch {
		case m.err != nil:
			s.WriteString(FlagBadge(protocol.FlagFailed) + " " + valueStyle.Render(m.err.Error()) + "\n")
		case m.report != nil:
			s.WriteString(valueStyle.Render(fmt.Sprintf("run ended %s after %d intervals", m.report.Final, m.report.Intervals)) + "\n")
		}
	}

	s.WriteString(helpStyle.Render("N/P:Node C:Component T:Theme ?:Help Q:Quit"))

	view := statsStyle.Render(s.String())
	if m.showHelp {
		return lipgloss.JoinVertical(lipgloss.Left, helpOverlay, view)
	}
	return view
}

const helpOverlay = `
╔══════════════════════════════════════╗
║          KEYBOARD SHORTCUTS          ║
╠══════════════════════════════════════╣
║  N / P    - Next / previous node     ║
║  C        - Next state component     ║
║  T        - Cycle themes             ║
║  ?        - Toggle this help         ║
║  Q        - Quit                     ║
╚══════════════════════════════════════╝
`

// AnimatedSpinner returns frame of animated spinner
func AnimatedSpinner(frame int) string {
	spinners := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	return spinners[frame%len(spinners)]
}

// logScale maps residuals to log10 so the sparkline shows orders of magnitude.
func logScale(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Log10(math.Max(v, 1e-300))
	}
	return out
}

// Run blocks until the user quits the view.
func Run(m Model) error {
	_, err := tea.NewProgram(m).Run()
	return err
}
