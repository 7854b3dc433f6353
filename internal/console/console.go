// Package console is a terminal front end for the runtime: it drives the
// same command dispatcher the windowed UI uses, stepping frames on a
// ticker and plotting live stats. Useful over SSH and in CI smoke runs.
package console

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/fluxlab/internal/command"
	"github.com/san-kum/fluxlab/internal/engine"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

type state int

const (
	stateMenu state = iota
	stateRun
)

const historyLen = 120

type model struct {
	mgr  *engine.Manager
	cmds *command.Dispatcher

	state  state
	cursor int
	kinds  []engine.Kind

	input   string
	editing bool
	lastOut string
	lastErr string

	population []float64
	frames     int
	lastFrame  time.Time
	fps        float64

	width  int
	height int
}

// New builds the console over an already-wired manager and dispatcher.
func New(mgr *engine.Manager, cmds *command.Dispatcher) tea.Model {
	return &model{
		mgr:    mgr,
		cmds:   cmds,
		kinds:  engine.AllKinds,
		width:  80,
		height: 24,
	}
}

// Run blocks inside the bubbletea event loop.
func Run(mgr *engine.Manager, cmds *command.Dispatcher) error {
	_, err := tea.NewProgram(New(mgr, cmds), tea.WithAltScreen()).Run()
	return err
}

func (m *model) Init() tea.Cmd { return nil }

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if m.state != stateRun {
			return m, nil
		}
		m.stepFrame()
		return m, tick()
	}
	return m, nil
}

func (m *model) stepFrame() {
	now := time.Now()
	dt := 1.0 / 30
	if !m.lastFrame.IsZero() {
		if measured := now.Sub(m.lastFrame).Seconds(); measured > 0 {
			dt = measured
			m.fps = 1 / measured
		}
	}
	m.lastFrame = now
	m.frames++

	if err := m.mgr.StepAndRender(dt); err != nil {
		m.lastErr = err.Error()
		return
	}

	_ = m.mgr.WithEcosystem(func(eco engine.EcosystemControls) error {
		total := 0
		for _, n := range eco.PopulationData() {
			total += n
		}
		m.population = append(m.population, float64(total))
		if len(m.population) > historyLen {
			m.population = m.population[len(m.population)-historyLen:]
		}
		return nil
	})
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editing {
		return m.commandKey(msg)
	}
	switch m.state {
	case stateMenu:
		return m.menuKey(msg)
	case stateRun:
		return m.runKey(msg)
	}
	return m, nil
}

func (m *model) menuKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.kinds)-1 {
			m.cursor++
		}
	case "enter", " ":
		kind := m.kinds[m.cursor]
		if _, err := m.cmds.Dispatch("load_simulation", []byte(fmt.Sprintf(`{"kind":%q}`, kind))); err != nil {
			m.lastErr = err.Error()
			return m, nil
		}
		m.lastErr = ""
		m.population = nil
		m.frames = 0
		m.lastFrame = time.Time{}
		m.state = stateRun
		return m, tea.Batch(tea.ClearScreen, tick())
	}
	return m, nil
}

func (m *model) runKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "escape":
		m.mgr.Unload()
		m.state = stateMenu
		return m, tea.ClearScreen
	case "ctrl+c":
		return m, tea.Quit
	case " ", "p":
		m.dispatch("toggle_pause", "")
	case "t":
		m.dispatch("reset_trails", "")
	case "a":
		m.dispatch("reset_agents", "")
	case "r":
		m.dispatch("reset_simulation", "")
	case "g":
		m.dispatch("toggle_gui", "")
	case ":":
		m.editing = true
		m.input = ""
	}
	return m, nil
}

// commandKey edits the raw command line: "name {json payload}".
func (m *model) commandKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.editing = false
		m.runCommand(m.input)
		m.input = ""
	case "escape":
		m.editing = false
		m.input = ""
	case "backspace":
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	default:
		if msg.Type == tea.KeyRunes {
			m.input += string(msg.Runes)
		} else if msg.String() == " " {
			m.input += " "
		}
	}
	return m, nil
}

func (m *model) runCommand(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	name, payload, _ := strings.Cut(line, " ")
	m.dispatch(name, payload)
}

func (m *model) dispatch(name, payload string) {
	out, err := m.cmds.Dispatch(name, []byte(payload))
	if err != nil {
		m.lastErr = err.Error()
		m.lastOut = ""
		return
	}
	m.lastErr = ""
	m.lastOut = out
}

func (m *model) View() string {
	switch m.state {
	case stateMenu:
		return m.menuView()
	default:
		return m.runView()
	}
}

func (m *model) menuView() string {
	var b strings.Builder
	b.WriteString(cyan.Render("fluxlab console") + "\n\n")
	for i, kind := range m.kinds {
		marker := "  "
		style := white
		if i == m.cursor {
			marker = "> "
			style = green
		}
		b.WriteString(marker + style.Render(string(kind)) + "\n")
	}
	b.WriteString("\n" + dim.Render("enter: run   j/k: move   q: quit") + "\n")
	if m.lastErr != "" {
		b.WriteString(red.Render(m.lastErr) + "\n")
	}
	return b.String()
}

func (m *model) runView() string {
	var b strings.Builder
	kind, _ := m.mgr.ActiveKind()
	b.WriteString(cyan.Render(string(kind)) + dim.Render(fmt.Sprintf("  frame %d  %.0f fps", m.frames, m.fps)) + "\n")

	lutName, reversed := m.mgr.ActiveLUT()
	rev := ""
	if reversed {
		rev = " (reversed)"
	}
	b.WriteString(dim.Render("lut: "+lutName+rev) + "\n\n")

	_ = m.mgr.WithEcosystem(func(eco engine.EcosystemControls) error {
		b.WriteString(m.populationView(eco))
		return nil
	})

	if m.editing {
		b.WriteString(yellow.Render(":"+m.input+"█") + "\n")
	} else {
		b.WriteString(dim.Render("space: pause  t/a/r: resets  :: command  q: back") + "\n")
	}
	if m.lastOut != "" {
		b.WriteString(green.Render(m.lastOut) + "\n")
	}
	if m.lastErr != "" {
		b.WriteString(red.Render(m.lastErr) + "\n")
	}
	return b.String()
}

func (m *model) populationView(eco engine.EcosystemControls) string {
	var b strings.Builder
	counts := eco.PopulationData()
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("  %-14s %s\n", k, white.Render(fmt.Sprintf("%d", counts[k]))))
	}
	if len(m.population) >= 2 {
		width := m.width - 12
		if width > 80 {
			width = 80
		}
		if width > 10 {
			graph := asciigraph.Plot(m.population,
				asciigraph.Height(8),
				asciigraph.Width(width),
				asciigraph.Caption("total population"))
			b.WriteString("\n" + graph + "\n")
		}
	}
	b.WriteString("\n")
	return b.String()
}
