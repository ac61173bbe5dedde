package browser

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/charmbracelet/bubbles/cursor"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffimoveis/imoveis/internal/catalog/memory"
	"github.com/ffimoveis/imoveis/internal/coordinator"
	"github.com/ffimoveis/imoveis/internal/domain"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestModel(t *testing.T, rawQuery string) Model {
	t.Helper()
	cat, err := memory.NewSeeded()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.InitialQuery = rawQuery
	m := New(context.Background(), coordinator.New(cat, quietLogger()), cfg)
	m.input.Cursor.SetMode(cursor.CursorStatic)
	return m
}

// started runs Init and applies the setup and first search.
func started(t *testing.T, rawQuery string) Model {
	t.Helper()
	m := newTestModel(t, rawQuery)
	return drain(t, m, m.Init())
}

// collect executes cmd and keeps the messages the browser reacts to.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		var out []tea.Msg
		for _, c := range msg {
			out = append(out, collect(c)...)
		}
		return out
	case setupMsg, outcomeMsg, tea.QuitMsg:
		return []tea.Msg{msg}
	default:
		return nil
	}
}

// drain feeds every message produced by cmd back into m.
func drain(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	for _, msg := range collect(cmd) {
		if _, quit := msg.(tea.QuitMsg); quit {
			continue
		}
		next, more := m.Update(msg)
		m = next.(Model)
		m = drain(t, m, more)
	}
	return m
}

// press sends one key without running the resulting command.
func press(m Model, key tea.KeyMsg) (Model, tea.Cmd) {
	next, cmd := m.Update(key)
	return next.(Model), cmd
}

// pressAndRun sends one key and runs whatever it triggers.
func pressAndRun(t *testing.T, m Model, key tea.KeyMsg) Model {
	t.Helper()
	m, cmd := press(m, key)
	return drain(t, m, cmd)
}

func typeText(m Model, text string) Model {
	for _, r := range text {
		m, _ = press(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func resultIDs(m Model) []string {
	var ids []string
	for _, r := range m.coord.Results() {
		ids = append(ids, r.ID)
	}
	return ids
}

var (
	keyEnter    = tea.KeyMsg{Type: tea.KeyEnter}
	keyTab      = tea.KeyMsg{Type: tea.KeyTab}
	keyShiftTab = tea.KeyMsg{Type: tea.KeyShiftTab}
	keyLeft     = tea.KeyMsg{Type: tea.KeyLeft}
	keyRight    = tea.KeyMsg{Type: tea.KeyRight}
	keyDown     = tea.KeyMsg{Type: tea.KeyDown}
	keySpace    = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	keyEsc      = tea.KeyMsg{Type: tea.KeyEsc}
	keyClear    = tea.KeyMsg{Type: tea.KeyCtrlR}
	keySubmit   = tea.KeyMsg{Type: tea.KeyCtrlS}
)

// ---------------------------------------------------------------------------
// Start-up
// ---------------------------------------------------------------------------

func TestModel_Init_LoadsSetupAndSearches(t *testing.T) {
	m := started(t, "")

	assert.True(t, m.ready)
	assert.Equal(t, domain.Bounds{Min: 741000, Max: 1200000}, m.coord.Bounds())
	assert.Len(t, m.coord.Locations(), 3)
	assert.Equal(t, []string{"1", "2", "3"}, resultIDs(m))
	assert.Equal(t, domain.PhaseIdle, m.coord.State().Phase)
	assert.Equal(t, uint64(1), m.coord.State().Generation)
	assert.Empty(t, m.coord.URL())
}

func TestModel_New_RestoresQueryIntoInput(t *testing.T) {
	m := newTestModel(t, "q=santos")

	assert.Equal(t, "santos", m.input.Value())
}

func TestModel_Init_AppliesSharedURL(t *testing.T) {
	m := started(t, "tipo=casa")

	assert.Equal(t, []string{"2"}, resultIDs(m))
	assert.Equal(t, "tipo=casa", m.coord.URL())
}

func TestModel_Init_KeepsSharedPricesAbovePlaceholderCeiling(t *testing.T) {
	cat := memory.New()
	cat.Replace([]domain.PropertyRecord{
		{ID: "m1", Title: "Mansão no Morumbi", City: "São Paulo", LocationID: "sao-paulo", Price: 5_000_000, PropertyType: domain.PropertyTypeHouse},
		{ID: "m2", Title: "Cobertura duplex Jardins", City: "São Paulo", LocationID: "sao-paulo", Price: 14_000_000, PropertyType: domain.PropertyTypePenthouse},
		{ID: "m3", Title: "Casa pé na areia", City: "Bertioga", LocationID: "bertioga", Price: 20_000_000, PropertyType: domain.PropertyTypeHouse},
	})
	cfg := DefaultConfig()
	cfg.InitialQuery = "min_price=12000000&max_price=15000000"
	m := New(context.Background(), coordinator.New(cat, quietLogger()), cfg)
	m = drain(t, m, m.Init())

	assert.Equal(t, domain.Bounds{Min: 5_000_000, Max: 20_000_000}, m.coord.Bounds())
	assert.Equal(t, domain.PriceRange{Low: 12_000_000, High: 15_000_000}, m.coord.Filters().PriceRange)
	assert.Equal(t, "min_price=12000000&max_price=15000000", m.coord.URL())
	assert.Equal(t, []string{"m2"}, resultIDs(m))
}

// ---------------------------------------------------------------------------
// Query field
// ---------------------------------------------------------------------------

func TestModel_Typing_DoesNotSearch(t *testing.T) {
	m := started(t, "")

	m = typeText(m, "tatuapé")

	assert.Equal(t, "tatuapé", m.coord.Filters().Query)
	assert.Equal(t, uint64(1), m.coord.State().Generation)
	assert.Equal(t, domain.PhaseIdle, m.coord.State().Phase)
	assert.Equal(t, []string{"1", "2", "3"}, resultIDs(m))
}

func TestModel_Enter_ConfirmsQuery(t *testing.T) {
	m := started(t, "")
	m = typeText(m, "tatuapé")

	m = pressAndRun(t, m, keyEnter)

	assert.Equal(t, []string{"1"}, resultIDs(m))
	assert.Equal(t, "q=tatuap%C3%A9", m.coord.URL())
	assert.Equal(t, uint64(2), m.coord.State().Generation)
}

// ---------------------------------------------------------------------------
// Selectors
// ---------------------------------------------------------------------------

func TestModel_TypeSelector_SearchesImmediately(t *testing.T) {
	m := started(t, "")
	m, _ = press(m, keyTab)
	require.Equal(t, focusType, m.focus)

	m = pressAndRun(t, m, keyRight)

	assert.Equal(t, domain.PropertyTypeApartment, m.coord.Filters().PropertyType)
	assert.Equal(t, []string{"1"}, resultIDs(m))
	assert.Equal(t, "tipo=apartamento", m.coord.URL())
}

func TestModel_TypeSelector_WrapsToAllTypes(t *testing.T) {
	m := started(t, "tipo=apartamento")
	m, _ = press(m, keyTab)

	m = pressAndRun(t, m, keyLeft)

	assert.Equal(t, domain.PropertyType(""), m.coord.Filters().PropertyType)
	assert.Equal(t, []string{"1", "2", "3"}, resultIDs(m))
	assert.Empty(t, m.coord.URL())
}

func TestModel_LocationSelector_CyclesKnownLocations(t *testing.T) {
	m := started(t, "")
	m, _ = press(m, keyTab)
	m, _ = press(m, keyTab)
	require.Equal(t, focusLocation, m.focus)

	m = pressAndRun(t, m, keyRight)

	assert.Equal(t, "campinas", m.coord.Filters().LocationID)
	assert.Equal(t, []string{"2"}, resultIDs(m))
	assert.Equal(t, "local=campinas", m.coord.URL())
}

func TestModel_Selectors_IgnoredBeforeSetup(t *testing.T) {
	m := newTestModel(t, "")
	m, _ = press(m, keyTab)

	m, cmd := press(m, keyRight)

	assert.Nil(t, cmd)
	assert.Equal(t, uint64(0), m.coord.State().Generation)
}

// ---------------------------------------------------------------------------
// Price slider
// ---------------------------------------------------------------------------

func focusPriceSlider(m Model) Model {
	m, _ = press(m, keyShiftTab)
	return m
}

func TestModel_PriceDrag_DoesNotSearch(t *testing.T) {
	m := started(t, "")
	m = focusPriceSlider(m)
	require.Equal(t, focusPrice, m.focus)

	m, cmd := press(m, keyRight)

	assert.Nil(t, cmd)
	assert.True(t, m.dragging)
	assert.Equal(t, 763950.0, m.coord.Filters().PriceRange.Low)
	assert.Equal(t, uint64(1), m.coord.State().Generation)
	assert.Empty(t, m.coord.URL())
}

func TestModel_PriceRelease_Searches(t *testing.T) {
	m := started(t, "")
	m = focusPriceSlider(m)
	m, _ = press(m, keyRight)

	m = pressAndRun(t, m, keySpace)

	assert.False(t, m.dragging)
	assert.Equal(t, "min_price=763950", m.coord.URL())
	assert.Equal(t, []string{"2", "3"}, resultIDs(m))
}

func TestModel_PriceHighEdge(t *testing.T) {
	m := started(t, "")
	m = focusPriceSlider(m)
	m, _ = press(m, keyDown)
	require.Equal(t, edgeHigh, m.edge)

	for range 10 {
		m, _ = press(m, keyLeft)
	}
	m = pressAndRun(t, m, keyEnter)

	assert.Equal(t, 970500.0, m.coord.Filters().PriceRange.High)
	assert.Equal(t, "max_price=970500", m.coord.URL())
	assert.Equal(t, []string{"1", "2"}, resultIDs(m))
}

func TestModel_PriceHandlesNeverCross(t *testing.T) {
	m := started(t, "")
	m = focusPriceSlider(m)

	for range 30 {
		m, _ = press(m, keyRight)
	}

	r := m.coord.Filters().PriceRange
	assert.Equal(t, r.High, r.Low)
	assert.Equal(t, 1200000.0, r.Low)
}

func TestModel_LeavingSliderMidDrag_Releases(t *testing.T) {
	m := started(t, "")
	m = focusPriceSlider(m)
	m, _ = press(m, keyRight)

	m = pressAndRun(t, m, keyTab)

	assert.Equal(t, focusQuery, m.focus)
	assert.False(t, m.dragging)
	assert.Equal(t, "min_price=763950", m.coord.URL())
}

// ---------------------------------------------------------------------------
// Global keys
// ---------------------------------------------------------------------------

func TestModel_ClearFilters(t *testing.T) {
	m := started(t, "q=santos&tipo=cobertura")
	require.Equal(t, "santos", m.input.Value())

	m = pressAndRun(t, m, keyClear)

	assert.Empty(t, m.input.Value())
	assert.Empty(t, m.coord.URL())
	assert.Equal(t, []string{"1", "2", "3"}, resultIDs(m))
}

func TestModel_SubmitButton_UsesTypedText(t *testing.T) {
	m := started(t, "")
	m = typeText(m, "campinas")

	m = pressAndRun(t, m, keySubmit)

	assert.Equal(t, []string{"2"}, resultIDs(m))
	assert.Equal(t, "q=campinas", m.coord.URL())
}

func TestModel_Esc_Quits(t *testing.T) {
	m := started(t, "")

	m, cmd := press(m, keyEsc)

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.quitting)
	assert.Empty(t, m.View())
}

// ---------------------------------------------------------------------------
// Out-of-order completion
// ---------------------------------------------------------------------------

func TestModel_StaleOutcomeIsDiscarded(t *testing.T) {
	m := started(t, "")
	m, _ = press(m, keyTab)

	m, first := press(m, keyRight)  // apartamento
	m, second := press(m, keyRight) // casa

	newer := collect(second)
	older := collect(first)
	require.Len(t, newer, 1)
	require.Len(t, older, 1)

	next, _ := m.Update(newer[0])
	m = next.(Model)
	next, _ = m.Update(older[0])
	m = next.(Model)

	assert.Equal(t, []string{"2"}, resultIDs(m))
	assert.Equal(t, "tipo=casa", m.coord.URL())
	assert.Equal(t, domain.PhaseIdle, m.coord.State().Phase)
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

type downSource struct{}

var errDown = errors.New("connection refused")

func (downSource) FetchAllProperties(context.Context) ([]domain.PropertyRecord, error) {
	return nil, errDown
}

func (downSource) FetchPriceBounds(context.Context) (domain.Bounds, error) {
	return domain.Bounds{}, errDown
}

func (downSource) FetchLocations(context.Context) ([]domain.Location, error) {
	return nil, errDown
}

func TestModel_FirstLoadFailure_ShowsRetryHint(t *testing.T) {
	m := New(context.Background(), coordinator.New(downSource{}, quietLogger()), DefaultConfig())
	m.input.Cursor.SetMode(cursor.CursorStatic)

	m = drain(t, m, m.Init())

	assert.True(t, m.coord.FirstLoadFailed())
	assert.Equal(t, domain.DefaultBounds, m.coord.Bounds())
	assert.Contains(t, m.View(), "Tente novamente")
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "R$ 1.200.000", FormatPrice(1200000))
	assert.Equal(t, "R$ 741.000", FormatPrice(741000))
	assert.Equal(t, "R$ 0", FormatPrice(0))
}

func TestModel_View_ShowsURLAndResults(t *testing.T) {
	m := started(t, "local=santos")

	view := m.View()

	assert.Contains(t, view, "?local=santos")
	assert.Contains(t, view, "1 imóveis encontrados")
	assert.Contains(t, view, "Boqueirão, Santos")
	assert.Contains(t, view, "R$ 1.200.000")
}

func TestModel_View_NoResults(t *testing.T) {
	m := started(t, "q=inexistente")

	assert.Contains(t, m.View(), "Nenhum imóvel encontrado")
}
