// Package browser is the interactive terminal front end of the listing
// search. It is a bubbletea model over a coordinator.Coordinator.
//
// Searches run as tea.Cmds and come back as messages. Resolve is called from
// Update, so outcomes of superseded searches are dropped inside the single
// threaded event loop.
package browser

import (
	"context"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ffimoveis/imoveis/internal/coordinator"
	"github.com/ffimoveis/imoveis/internal/domain"
)

// focus is the control receiving key input.
type focus int

const (
	focusQuery focus = iota
	focusType
	focusLocation
	focusPrice
	focusCount
)

func (f focus) String() string {
	switch f {
	case focusType:
		return "tipo"
	case focusLocation:
		return "local"
	case focusPrice:
		return "preço"
	default:
		return "busca"
	}
}

// priceEdge is the slider handle being dragged.
type priceEdge int

const (
	edgeLow priceEdge = iota
	edgeHigh
)

// setupMsg carries bounds and locations fetched at start-up.
type setupMsg struct {
	setup coordinator.Setup
}

// outcomeMsg carries a finished search.
type outcomeMsg struct {
	outcome coordinator.Outcome
}

// Config configures the browser.
type Config struct {
	// InitialQuery is a shared URL query string restored at start-up.
	InitialQuery string
	// Timeout bounds each catalog call.
	Timeout time.Duration
	// PriceSteps is the number of arrow presses needed to sweep the whole
	// price extent.
	PriceSteps int
	// MaxResults caps the rendered result list. Zero shows everything.
	MaxResults int
}

// DefaultConfig returns the settings used by cmd/browser.
func DefaultConfig() Config {
	return Config{
		Timeout:    10 * time.Second,
		PriceSteps: 20,
		MaxResults: 15,
	}
}

// Model is the bubbletea model of the listing browser.
type Model struct {
	coord *coordinator.Coordinator
	cfg   Config
	ctx   context.Context

	input    textinput.Model
	focus    focus
	edge     priceEdge
	dragging bool

	ready    bool
	quitting bool
	width    int
	height   int
}

// New creates a browser over coord. ctx bounds every search it issues.
func New(ctx context.Context, coord *coordinator.Coordinator, cfg Config) Model {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.PriceSteps <= 0 {
		cfg.PriceSteps = DefaultConfig().PriceSteps
	}

	f := coord.LoadURL(cfg.InitialQuery)

	ti := textinput.New()
	ti.Prompt = "🔍 "
	ti.Placeholder = "Buscar por título ou localização..."
	ti.CharLimit = 200
	ti.Width = 48
	ti.SetValue(f.Query)
	ti.Focus()

	return Model{
		coord: coord,
		cfg:   cfg,
		ctx:   ctx,
		input: ti,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.fetchSetup())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case setupMsg:
		m.coord.ApplySetup(msg.setup)
		m.ready = true
		m.syncInput()
		return m, m.search(m.coord.Start())

	case outcomeMsg:
		m.coord.Resolve(msg.outcome)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.focus == focusQuery {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		return m.moveFocus(1)

	case "shift+tab":
		return m.moveFocus(-1)

	case "ctrl+r":
		m.dragging = false
		req := m.coord.ClearFilters()
		m.syncInput()
		return m, m.search(req)

	case "ctrl+s":
		m.dragging = false
		return m, m.search(m.coord.Submit())
	}

	// Selectors need the real bounds and locations first.
	if !m.ready && m.focus != focusQuery {
		return m, nil
	}

	switch m.focus {
	case focusType:
		return m.handleTypeKey(msg)
	case focusLocation:
		return m.handleLocationKey(msg)
	case focusPrice:
		return m.handlePriceKey(msg)
	default:
		return m.handleQueryKey(msg)
	}
}

func (m Model) handleQueryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEnter {
		m.coord.TypeQuery(m.input.Value())
		return m, m.search(m.coord.ConfirmQuery())
	}

	var cmd tea.Cmd
	before := m.input.Value()
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); v != before {
		m.coord.TypeQuery(v)
	}
	return m, cmd
}

func (m Model) handleTypeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var delta int
	switch msg.String() {
	case "left", "h":
		delta = -1
	case "right", "l":
		delta = 1
	default:
		return m, nil
	}

	options := typeOptions()
	cur := max(slices.Index(options, m.coord.Filters().PropertyType), 0)
	next := options[cycle(cur, delta, len(options))]
	req, ok := m.coord.SelectType(next)
	if !ok {
		return m, nil
	}
	return m, m.search(req)
}

func (m Model) handleLocationKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var delta int
	switch msg.String() {
	case "left", "h":
		delta = -1
	case "right", "l":
		delta = 1
	default:
		return m, nil
	}

	ids := []string{""}
	for _, l := range m.coord.Locations() {
		ids = append(ids, l.ID)
	}
	if len(ids) == 1 {
		return m, nil
	}
	cur := max(slices.Index(ids, m.coord.Filters().LocationID), 0)
	next := ids[cycle(cur, delta, len(ids))]
	req, ok := m.coord.SelectLocation(next)
	if !ok {
		return m, nil
	}
	return m, m.search(req)
}

func (m Model) handlePriceKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "down", "k", "j":
		if m.edge == edgeLow {
			m.edge = edgeHigh
		} else {
			m.edge = edgeLow
		}
		return m, nil

	case "left", "h":
		m.drag(-1)
		return m, nil

	case "right", "l":
		m.drag(1)
		return m, nil

	case "enter", " ":
		return m.releasePrice()
	}
	return m, nil
}

// drag moves the active slider handle by one step without searching.
func (m *Model) drag(dir int) {
	b := m.coord.Bounds()
	step := (b.Max - b.Min) / float64(m.cfg.PriceSteps)
	if step <= 0 {
		return
	}

	r := m.coord.Filters().PriceRange
	switch m.edge {
	case edgeLow:
		r.Low = min(b.Clamp(r.Low+float64(dir)*step), r.High)
	default:
		r.High = max(b.Clamp(r.High+float64(dir)*step), r.Low)
	}
	m.coord.DragPrice(r.Low, r.High)
	m.dragging = true
}

// releasePrice commits the slider position.
func (m Model) releasePrice() (tea.Model, tea.Cmd) {
	m.dragging = false
	r := m.coord.Filters().PriceRange
	return m, m.search(m.coord.ReleasePrice(r.Low, r.High))
}

// moveFocus cycles focus. Leaving the slider mid-drag releases it.
func (m Model) moveFocus(delta int) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.focus == focusPrice && m.dragging {
		m.dragging = false
		r := m.coord.Filters().PriceRange
		cmd = m.search(m.coord.ReleasePrice(r.Low, r.High))
	}

	m.focus = focus(cycle(int(m.focus), delta, int(focusCount)))
	if m.focus == focusQuery {
		return m, tea.Batch(cmd, m.input.Focus())
	}
	m.input.Blur()
	return m, cmd
}

// syncInput copies the stored query into the text field.
func (m *Model) syncInput() {
	if q := m.coord.Filters().Query; q != m.input.Value() {
		m.input.SetValue(q)
		m.input.CursorEnd()
	}
}

func (m Model) fetchSetup() tea.Cmd {
	coord, parent, timeout := m.coord, m.ctx, m.cfg.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		return setupMsg{setup: coord.FetchSetup(ctx)}
	}
}

func (m Model) search(req coordinator.Request) tea.Cmd {
	coord, parent, timeout := m.coord, m.ctx, m.cfg.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		return outcomeMsg{outcome: coord.Execute(ctx, req)}
	}
}

// typeOptions lists the selector values, "all types" first.
func typeOptions() []domain.PropertyType {
	return append([]domain.PropertyType{""}, domain.ValidPropertyTypes()...)
}

func cycle(i, delta, n int) int {
	return ((i+delta)%n + n) % n
}
