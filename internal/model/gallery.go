package model

import (
	"errors"
	"fmt"
	"strings"
)

const (
	PuzzleColumns = 7
	PuzzleRows    = 5
	// PieceCount is the number of pieces covering one gallery image.
	PieceCount = PuzzleColumns * PuzzleRows
)

type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusInProgress ItemStatus = "in-progress"
	ItemStatusCompleted  ItemStatus = "completed"
)

func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemStatusPending, ItemStatusInProgress, ItemStatusCompleted:
		return true
	default:
		return false
	}
}

type GalleryItem struct {
	ID        string     `json:"id"`
	Image     string     `json:"image"`
	OpenIndex []int      `json:"openIndex"`
	Status    ItemStatus `json:"status"`
	Order     int        `json:"order"`
}

func (g GalleryItem) IsOpen(piece int) bool {
	for _, idx := range g.OpenIndex {
		if idx == piece {
			return true
		}
	}
	return false
}

func (g GalleryItem) IsFull() bool {
	return len(g.OpenIndex) >= PieceCount
}

// Remaining lists the unrevealed piece indices in ascending order.
func (g GalleryItem) Remaining() []int {
	open := make(map[int]bool, len(g.OpenIndex))
	for _, idx := range g.OpenIndex {
		open[idx] = true
	}
	out := make([]int, 0, PieceCount-len(open))
	for piece := 1; piece <= PieceCount; piece++ {
		if !open[piece] {
			out = append(out, piece)
		}
	}
	return out
}

func (g GalleryItem) Validate() error {
	if strings.TrimSpace(g.ID) == "" {
		return errors.New("model: gallery item id is required")
	}
	if !g.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidItemStatus, g.Status)
	}
	seen := make(map[int]bool, len(g.OpenIndex))
	for _, idx := range g.OpenIndex {
		if idx < 1 || idx > PieceCount {
			return fmt.Errorf("%w: %d", ErrInvalidPiece, idx)
		}
		if seen[idx] {
			return fmt.Errorf("%w: duplicate %d", ErrInvalidPiece, idx)
		}
		seen[idx] = true
	}
	if g.Status == ItemStatusCompleted && len(g.OpenIndex) != PieceCount {
		return errors.New("model: completed item must have every piece open")
	}
	if g.Status != ItemStatusCompleted && len(g.OpenIndex) == PieceCount {
		return errors.New("model: item with every piece open must be completed")
	}
	return nil
}

// PieceAt maps a zero-based grid cell to its 1-based piece index.
func PieceAt(row, col int) int {
	return row*PuzzleColumns + col + 1
}
