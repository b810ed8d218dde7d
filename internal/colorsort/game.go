// Package colorsort is the relax minigame: swap color swatches until each
// column runs from dark to light.
package colorsort

import (
	"errors"
	"fmt"
	"math/rand/v2"

	colorful "github.com/lucasb-eyer/go-colorful"
)

const (
	Columns = 2
	// Steps is how many lighter and darker shades surround the base color.
	Steps    = 5
	StepSize = 0.05
)

var (
	ErrInvalidIndex = errors.New("colorsort: invalid swatch index")
	ErrNotSorted    = errors.New("colorsort: grid is not sorted yet")
)

type Swatch struct {
	Hex        string
	Brightness float64
}

func NewSwatch(c colorful.Color) Swatch {
	c = c.Clamped()
	return Swatch{Hex: c.Hex(), Brightness: Brightness(c)}
}

// Brightness is the perceived brightness on a 0-255 scale.
func Brightness(c colorful.Color) float64 {
	r, g, b := c.Clamped().RGB255()
	return (299*float64(r) + 587*float64(g) + 114*float64(b)) / 1000
}

type Game struct {
	Level    int
	Swatches []Swatch
	Cheat    bool

	selected int
	sorted   bool
	rng      *rand.Rand
}

func NewGame(rng *rand.Rand) *Game {
	g := &Game{Level: 1, selected: -1, rng: rng}
	g.deal()
	return g
}

func (g *Game) deal() {
	base := colorful.Color{R: g.rng.Float64(), G: g.rng.Float64(), B: g.rng.Float64()}
	g.Swatches = Shades(base)
	g.rng.Shuffle(len(g.Swatches), func(i, j int) {
		g.Swatches[i], g.Swatches[j] = g.Swatches[j], g.Swatches[i]
	})
	g.selected = -1
	g.sorted = IsSorted(g.Swatches)
}

// Shades returns the base color darkened and lightened in even steps,
// darkest first. The base itself is left out.
func Shades(base colorful.Color) []Swatch {
	h, s, l := base.Hsl()
	out := make([]Swatch, 0, 2*Steps)
	for i := -Steps; i <= Steps; i++ {
		if i == 0 {
			continue
		}
		shifted := l + float64(i)*StepSize
		if shifted < 0 {
			shifted = 0
		}
		if shifted > 1 {
			shifted = 1
		}
		out = append(out, NewSwatch(colorful.Hsl(h, s, shifted)))
	}
	return out
}

// Selected returns the index waiting for a swap partner, or -1.
func (g *Game) Selected() int { return g.selected }

func (g *Game) Sorted() bool { return g.sorted }

// Select marks a swatch. Selecting a second one swaps the pair; selecting
// the same one again clears the mark.
func (g *Game) Select(i int) (swapped bool, err error) {
	if i < 0 || i >= len(g.Swatches) {
		return false, fmt.Errorf("%w: %d", ErrInvalidIndex, i)
	}
	switch g.selected {
	case -1:
		g.selected = i
		return false, nil
	case i:
		g.selected = -1
		return false, nil
	}
	g.Swatches[g.selected], g.Swatches[i] = g.Swatches[i], g.Swatches[g.selected]
	g.selected = -1
	g.sorted = IsSorted(g.Swatches)
	return true, nil
}

// IsSorted reports whether brightness never drops going down any column.
func IsSorted(grid []Swatch) bool {
	for col := 0; col < Columns; col++ {
		for idx := col + Columns; idx < len(grid); idx += Columns {
			if grid[idx-Columns].Brightness > grid[idx].Brightness {
				return false
			}
		}
	}
	return true
}

func (g *Game) NextLevel() error {
	if !g.sorted {
		return ErrNotSorted
	}
	g.Level++
	g.deal()
	return nil
}

func (g *Game) ToggleCheat() bool {
	g.Cheat = !g.Cheat
	return g.Cheat
}
