package picker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/looter/nuclide/internal/output"
	"github.com/looter/nuclide/internal/search"
)

// debounceInterval is the delay after the last keystroke before a fetch.
const debounceInterval = 80 * time.Millisecond

type pickerState int

const (
	stateIdle pickerState = iota
	stateLoading
	stateLoaded
	stateEmpty
	stateError
	stateCancelled
)

type fetchDoneMsg struct {
	requestID uint64
	results   []search.Result
	err       error
}

type debounceMsg struct {
	id uint64
}

type initMsg struct{}

// Model is the Bubble Tea model for the file picker.
type Model struct {
	state     pickerState
	input     textinput.Model
	spinner   spinner.Model
	results   []search.Result
	selection int
	err       error

	provider    Provider
	requestID   uint64
	debounceID  uint64
	cancelFetch context.CancelFunc

	width  int
	height int

	chosen *search.Result
}

// NewModel creates a picker seeded with query.
func NewModel(provider Provider, query string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.PromptStyle = promptStyle
	ti.SetValue(query)
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = dimStyle

	return Model{
		state:     stateIdle,
		input:     ti,
		spinner:   sp,
		selection: -1,
		provider:  provider,
	}
}

// Result returns the chosen result, or false if the user cancelled.
func (m Model) Result() (search.Result, bool) {
	if m.chosen == nil {
		return search.Result{}, false
	}
	return *m.chosen, true
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, func() tea.Msg { return initMsg{} })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case fetchDoneMsg:
		return m.handleFetchDone(msg)

	case debounceMsg:
		if msg.id != m.debounceID {
			return m, nil
		}
		return m, m.startFetch()

	case initMsg:
		return m, tea.Batch(m.startFetch(), m.spinner.Tick)

	case spinner.TickMsg:
		if m.state != stateLoading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		m.state = stateCancelled
		m.cancelInflight()
		return m, tea.Quit

	case tea.KeyEnter:
		if m.selection >= 0 && m.selection < len(m.results) {
			r := m.results[m.selection]
			m.chosen = &r
		}
		m.cancelInflight()
		return m, tea.Quit

	case tea.KeyUp, tea.KeyCtrlP:
		if m.selection > 0 {
			m.selection--
		}
		return m, nil

	case tea.KeyDown, tea.KeyCtrlN:
		if m.selection < len(m.results)-1 {
			m.selection++
		}
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() == before {
		return m, cmd
	}
	return m, tea.Batch(cmd, m.startDebounce())
}

func (m Model) handleFetchDone(msg fetchDoneMsg) (tea.Model, tea.Cmd) {
	if msg.requestID != m.requestID {
		return m, nil
	}
	m.cancelFetch = nil

	if msg.err != nil {
		m.state = stateError
		m.err = msg.err
		m.results = nil
		m.selection = -1
		return m, nil
	}

	m.results = msg.results
	m.err = nil
	if len(m.results) == 0 {
		m.state = stateEmpty
		m.selection = -1
		return m, nil
	}
	m.state = stateLoaded
	m.selection = min(max(m.selection, 0), len(m.results)-1)
	return m, nil
}

func (m *Model) startDebounce() tea.Cmd {
	m.debounceID++
	id := m.debounceID
	return tea.Tick(debounceInterval, func(time.Time) tea.Msg {
		return debounceMsg{id: id}
	})
}

// startFetch cancels the previous fetch and queries the provider.
func (m *Model) startFetch() tea.Cmd {
	m.cancelInflight()
	m.requestID++
	m.state = stateLoading

	reqID := m.requestID
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelFetch = cancel

	query := m.input.Value()
	limit := m.listHeight()
	p := m.provider
	return func() tea.Msg {
		results, err := p.Fetch(ctx, query, limit)
		return fetchDoneMsg{requestID: reqID, results: results, err: err}
	}
}

func (m *Model) cancelInflight() {
	if m.cancelFetch != nil {
		m.cancelFetch()
		m.cancelFetch = nil
	}
}

// listHeight is the number of result rows that fit below the input line.
func (m Model) listHeight() int {
	const chrome = 2
	h := m.height - chrome
	if h < 1 {
		h = 20
	}
	return h
}

var (
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	normalStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	matchStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("154"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteRune('\n')
	b.WriteString(m.viewContent())
	b.WriteRune('\n')
	b.WriteString(m.viewStatus())
	return b.String()
}

func (m Model) viewContent() string {
	switch m.state {
	case stateIdle:
		return ""
	case stateLoading:
		if len(m.results) > 0 {
			return m.viewList()
		}
		return m.spinner.View() + dimStyle.Render(" searching")
	case stateEmpty:
		return dimStyle.Render("No matches")
	case stateError:
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	case stateCancelled:
		return dimStyle.Render("Cancelled")
	case stateLoaded:
		return m.viewList()
	}
	return ""
}

func (m Model) viewList() string {
	rows := min(len(m.results), m.listHeight())
	lines := make([]string, 0, rows)
	for i := range rows {
		r := m.results[i]
		line := output.Highlight(displayPath(r, m.width), shiftIndexes(r, m.width), matchStyle)
		if i == m.selection {
			lines = append(lines, selectedStyle.Render("▌ ")+line)
		} else {
			lines = append(lines, normalStyle.Render("  ")+line)
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) viewStatus() string {
	if len(m.results) == 0 {
		return ""
	}
	return dimStyle.Render(fmt.Sprintf("%d/%d", m.selection+1, len(m.results)))
}

// displayPath trims the head of long paths so the file name stays visible.
func displayPath(r search.Result, width int) string {
	path := r.Path
	runes := []rune(path)
	avail := width - 4
	if width <= 0 || len(runes) <= avail || avail < 8 {
		return path
	}
	return "…" + string(runes[len(runes)-avail+1:])
}

// shiftIndexes maps match indexes onto the output of displayPath.
func shiftIndexes(r search.Result, width int) []int {
	display := []rune(displayPath(r, width))
	full := []rune(r.Path)
	if len(display) == len(full) {
		return r.MatchIndexes
	}
	cut := len(full) - (len(display) - 1)
	shifted := make([]int, 0, len(r.MatchIndexes))
	for _, i := range r.MatchIndexes {
		if i >= cut {
			shifted = append(shifted, i-cut+1)
		}
	}
	return shifted
}

// AbsPath joins the chosen result onto its root.
func AbsPath(r search.Result) string {
	if r.Root == "" {
		return r.Path
	}
	return filepath.Join(r.Root.String(), filepath.FromSlash(r.Path))
}
