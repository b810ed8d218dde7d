package update

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/mooncove/internal/backend"
	"github.com/sandeepkv93/mooncove/internal/model"
	"github.com/sandeepkv93/mooncove/internal/puzzle"
	"github.com/sandeepkv93/mooncove/internal/views"
)

var errGalleryUnavailable = errors.New("gallery unavailable")

func (m Model) refreshGallery() Model {
	if m.deps.Gallery == nil {
		return m
	}
	items, err := m.deps.Gallery.Items(m.ctx)
	if err != nil {
		m.setError(err)
		return m
	}
	m.Gallery.Items = items
	if m.Gallery.Cursor >= len(items) {
		m.Gallery.Cursor = len(items) - 1
	}
	if m.Gallery.Cursor < 0 {
		m.Gallery.Cursor = 0
	}
	return m
}

func (m Model) handleGalleryKey(msg tea.KeyMsg) Model {
	switch msg.String() {
	case "j", "down":
		if m.Gallery.Cursor < len(m.Gallery.Items)-1 {
			m.Gallery.Cursor++
		}
	case "k", "up":
		if m.Gallery.Cursor > 0 {
			m.Gallery.Cursor--
		}
	case "r":
		return m.revealActive()
	}
	return m
}

func (m Model) revealActive() Model {
	if m.deps.Gallery == nil {
		m.setError(errGalleryUnavailable)
		return m
	}
	res, err := m.deps.Gallery.RevealActive(m.ctx)
	if errors.Is(err, puzzle.ErrNoActiveItem) {
		m.Status = StatusBar{Text: "every picture is complete"}
		return m
	}
	if err != nil {
		m.setError(err)
		return m
	}
	return m.onReveal(res)
}

func (m Model) onReveal(res puzzle.Result) Model {
	m.Gallery.LastReveal = &res
	m = m.refreshGallery()
	switch {
	case res.Completed && res.Promoted != nil:
		m.Status = StatusBar{Text: fmt.Sprintf("picture complete! next puzzle #%d unlocked", res.Promoted.Order+1)}
	case res.Completed:
		m.Status = StatusBar{Text: "picture complete! the gallery is finished"}
	default:
		m.Status = StatusBar{Text: fmt.Sprintf("piece %d revealed (%d/%d)", res.Piece, len(res.Item.OpenIndex), model.PieceCount)}
	}
	return m
}

func waitForRevealCmd(ch <-chan puzzle.Result) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		res, ok := <-ch
		if !ok {
			return nil
		}
		return RevealMsg{Result: res}
	}
}

func waitForSnapshotCmd(ch <-chan backend.Snapshot, wrap func(backend.Snapshot) tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return wrap(snap)
	}
}

func sessionSnapshot(s backend.Snapshot) tea.Msg { return SessionSnapshotMsg{Snapshot: s} }
func gallerySnapshot(s backend.Snapshot) tea.Msg { return GallerySnapshotMsg{Snapshot: s} }

func (m Model) renderGalleryView() string {
	data := views.GalleryPanelData{
		Cursor:  m.Gallery.Cursor,
		Columns: model.PuzzleColumns,
		Rows:    model.PuzzleRows,
	}
	for _, item := range m.Gallery.Items {
		open := make([]bool, model.PieceCount)
		for row := 0; row < model.PuzzleRows; row++ {
			for col := 0; col < model.PuzzleColumns; col++ {
				piece := model.PieceAt(row, col)
				open[piece-1] = item.IsOpen(piece)
			}
		}
		data.Items = append(data.Items, views.GalleryItemData{
			Image:  item.Image,
			Status: string(item.Status),
			Open:   open,
			Opened: len(item.OpenIndex),
		})
	}
	return views.RenderGalleryPanel(data)
}
