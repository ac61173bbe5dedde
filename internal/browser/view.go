package browser

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ffimoveis/imoveis/internal/domain"
)

const sliderWidth = 32

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	urlStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	labelStyle   = lipgloss.NewStyle().Width(8).Foreground(lipgloss.Color("250"))
	focusedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	blurredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	priceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	footerStyle  = lipgloss.NewStyle().BorderTop(true).BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("238")).PaddingTop(0)
)

var brl = message.NewPrinter(language.BrazilianPortuguese)

// FormatPrice renders v as Brazilian reais, e.g. "R$ 1.200.000".
func FormatPrice(v float64) string {
	return brl.Sprintf("R$ %d", int64(math.Round(v)))
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderControls())
	b.WriteString("\n")
	b.WriteString(m.renderResults())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	url := "?" + m.coord.URL()
	if m.coord.URL() == "" {
		url = "/"
	}
	return titleStyle.Render("Imóveis Disponíveis") + "  " + urlStyle.Render(url)
}

func (m Model) renderControls() string {
	f := m.coord.Filters()

	rows := []string{
		m.row(focusQuery, m.input.View()),
		m.row(focusType, m.selector(f.PropertyType.DisplayName())),
		m.row(focusLocation, m.selector(m.locationName(f.LocationID))),
		m.row(focusPrice, m.slider(f.PriceRange)),
	}
	return strings.Join(rows, "\n") + "\n"
}

func (m Model) row(f focus, content string) string {
	label := labelStyle.Render(f.String())
	if m.focus == f {
		label = focusedStyle.Width(8).Render(f.String())
	}
	return label + " " + content
}

func (m Model) selector(value string) string {
	return blurredStyle.Render("‹ " + value + " ›")
}

func (m Model) locationName(id string) string {
	if id == "" {
		return "Todas as cidades"
	}
	for _, l := range m.coord.Locations() {
		if l.ID == id {
			return l.DisplayName
		}
	}
	return id
}

// slider draws the price range as a track with the selected span filled.
func (m Model) slider(r domain.PriceRange) string {
	bounds := m.coord.Bounds()
	span := bounds.Max - bounds.Min

	lo, hi := 0, sliderWidth
	if span > 0 {
		lo = int(math.Round((r.Low - bounds.Min) / span * sliderWidth))
		hi = int(math.Round((r.High - bounds.Min) / span * sliderWidth))
	}
	lo = max(0, min(lo, sliderWidth))
	hi = max(lo, min(hi, sliderWidth))

	track := strings.Repeat("─", lo) + strings.Repeat("━", hi-lo) + strings.Repeat("─", sliderWidth-hi)
	low, high := FormatPrice(r.Low), FormatPrice(r.High)
	if m.focus == focusPrice {
		if m.edge == edgeLow {
			low = focusedStyle.Render(low)
		} else {
			high = focusedStyle.Render(high)
		}
	}
	return fmt.Sprintf("%s [%s] %s", low, track, high)
}

func (m Model) renderResults() string {
	if !m.ready && len(m.coord.Results()) == 0 {
		return mutedStyle.Render("Carregando...") + "\n"
	}
	if m.coord.FirstLoadFailed() {
		return errorStyle.Render("Não foi possível carregar os imóveis. Tente novamente (ctrl+s).") + "\n"
	}

	results := m.coord.Results()
	if len(results) == 0 {
		return mutedStyle.Render("Nenhum imóvel encontrado com os filtros selecionados.") + "\n" +
			mutedStyle.Render("ctrl+r limpa os filtros.") + "\n"
	}

	shown := results
	if m.cfg.MaxResults > 0 && len(shown) > m.cfg.MaxResults {
		shown = shown[:m.cfg.MaxResults]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d imóveis encontrados\n", len(results))
	for _, r := range shown {
		fmt.Fprintf(&b, "  %s  %s  %s\n",
			priceStyle.Render(fmt.Sprintf("%14s", FormatPrice(r.Price))),
			r.Title,
			mutedStyle.Render(fmt.Sprintf("%s, %s · %s", r.NeighborhoodName, r.City, r.PropertyType.DisplayName())),
		)
	}
	if hidden := len(results) - len(shown); hidden > 0 {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  … e mais %d", hidden)) + "\n")
	}
	return b.String()
}

func (m Model) renderFooter() string {
	state := m.coord.State()
	status := "pronto"
	if state.Phase == domain.PhaseSearching {
		status = "buscando..."
	}
	help := "tab foco · enter confirma · ←/→ altera · ↑/↓ troca alça · ctrl+s busca · ctrl+r limpa · esc sai"
	return footerStyle.Render(fmt.Sprintf("%s (#%d)  %s", status, state.Generation, mutedStyle.Render(help)))
}
