package update

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/mooncove/internal/colorsort"
	"github.com/sandeepkv93/mooncove/internal/views"
)

func (m Model) handleRelaxKey(msg tea.KeyMsg) Model {
	game := m.Relax.Game
	last := len(game.Swatches) - 1
	switch msg.String() {
	case "left", "h":
		if m.Relax.Cursor%colorsort.Columns > 0 {
			m.Relax.Cursor--
		}
	case "right", "l":
		if m.Relax.Cursor%colorsort.Columns < colorsort.Columns-1 && m.Relax.Cursor < last {
			m.Relax.Cursor++
		}
	case "up", "k":
		if m.Relax.Cursor-colorsort.Columns >= 0 {
			m.Relax.Cursor -= colorsort.Columns
		}
	case "down", "j":
		if m.Relax.Cursor+colorsort.Columns <= last {
			m.Relax.Cursor += colorsort.Columns
		}
	case "enter":
		swapped, err := game.Select(m.Relax.Cursor)
		if err != nil {
			m.setError(err)
			return m
		}
		if swapped && game.Sorted() {
			m.Status = StatusBar{Text: fmt.Sprintf("level %d sorted!", game.Level)}
		}
	case "c":
		if game.ToggleCheat() {
			m.Status = StatusBar{Text: "brightness shown"}
		} else {
			m.Status = StatusBar{Text: "brightness hidden"}
		}
	case "n":
		if err := game.NextLevel(); err != nil {
			if errors.Is(err, colorsort.ErrNotSorted) {
				m.Status = StatusBar{Text: "keep sorting: columns go dark to light", IsError: true}
				return m
			}
			m.setError(err)
			return m
		}
		m.Relax.Cursor = 0
		m.Status = StatusBar{Text: fmt.Sprintf("level %d", game.Level)}
	}
	return m
}

func (m Model) renderRelaxView() string {
	game := m.Relax.Game
	data := views.RelaxPanelData{
		Level:    game.Level,
		Columns:  colorsort.Columns,
		Cursor:   m.Relax.Cursor,
		Selected: game.Selected(),
		Cheat:    game.Cheat,
		Sorted:   game.Sorted(),
	}
	for _, sw := range game.Swatches {
		data.Swatches = append(data.Swatches, views.SwatchData{Hex: sw.Hex, Brightness: sw.Brightness})
	}
	return views.RenderRelaxPanel(data)
}
