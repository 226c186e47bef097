// Package race is a two-player sliding puzzle. Both players get a shuffled
// board and the same target; the first to reproduce the target in the
// centre of their board wins.
package race

import (
	"math/rand/v2"
)

// Board geometry.
const (
	Size       = 5
	TargetSize = 3
	Tiles      = Size*Size - 1
	perColor   = Tiles / colors
)

// Color is a tile color. None marks the hole.
type Color uint8

const (
	None Color = iota
	White
	Yellow
	Orange
	Red
	Green
	Blue
)

const colors = 6

var colorNames = [...]string{"none", "white", "yellow", "orange", "red", "green", "blue"}

func (c Color) String() string {
	if int(c) < len(colorNames) {
		return colorNames[c]
	}
	return "invalid"
}

// Valid reports whether c is None or one of the six tile colors.
func (c Color) Valid() bool { return c <= Blue }

// Pos is a board cell.
type Pos struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Valid reports whether p lies on the board.
func (p Pos) Valid() bool {
	return p.Row >= 0 && p.Row < Size && p.Col >= 0 && p.Col < Size
}

// Board is a full game board: 24 tiles and one hole.
type Board [Size][Size]Color

// Target is the pattern the centre of a board must match.
type Target [TargetSize][TargetSize]Color

// Generate returns a shuffled board with four tiles of each color and the
// hole in the centre.
func Generate(rng *rand.Rand) Board {
	var tiles [Tiles]Color
	for i := range tiles {
		tiles[i] = Color(i/perColor) + White
	}
	rng.Shuffle(len(tiles), func(i, j int) { tiles[i], tiles[j] = tiles[j], tiles[i] })

	var b Board
	i := 0
	for r := range Size {
		for c := range Size {
			if r == Size/2 && c == Size/2 {
				continue
			}
			b[r][c] = tiles[i]
			i++
		}
	}
	return b
}

// GenerateTarget returns a random target that a board can reach: no color
// appears more often than the board has tiles of it.
func GenerateTarget(rng *rand.Rand) Target {
	for {
		var t Target
		var counts [colors + 1]int
		ok := true
		for r := range TargetSize {
			for c := range TargetSize {
				col := Color(rng.IntN(colors)) + White
				t[r][c] = col
				if counts[col]++; counts[col] > perColor {
					ok = false
				}
			}
		}
		if ok {
			return t
		}
	}
}

// Hole returns the position of the hole.
func (b *Board) Hole() Pos {
	return find((*[Size][Size]Color)(b), None)
}

// Click slides the tiles between pos and the hole toward the hole. It
// reports false, leaving b unchanged, when pos is off the board, is the
// hole, or shares neither row nor column with it.
func (b *Board) Click(pos Pos) bool {
	return slide((*[Size][Size]Color)(b), b.Hole(), pos)
}

// Matches reports whether the centre of b equals t.
func (b *Board) Matches(t Target) bool {
	off := (Size - TargetSize) / 2
	for r := range TargetSize {
		for c := range TargetSize {
			if b[r+off][c+off] != t[r][c] {
				return false
			}
		}
	}
	return true
}

func find[T comparable](g *[Size][Size]T, v T) Pos {
	for r := range Size {
		for c := range Size {
			if g[r][c] == v {
				return Pos{Row: r, Col: c}
			}
		}
	}
	return Pos{Row: -1, Col: -1}
}

func slide[T any](g *[Size][Size]T, hole, pos Pos) bool {
	if !pos.Valid() || !hole.Valid() || pos == hole {
		return false
	}
	empty := g[hole.Row][hole.Col]
	switch {
	case pos.Row == hole.Row:
		step := 1
		if pos.Col < hole.Col {
			step = -1
		}
		for c := hole.Col; c != pos.Col; c += step {
			g[pos.Row][c] = g[pos.Row][c+step]
		}
	case pos.Col == hole.Col:
		step := 1
		if pos.Row < hole.Row {
			step = -1
		}
		for r := hole.Row; r != pos.Row; r += step {
			g[r][pos.Col] = g[r+step][pos.Col]
		}
	default:
		return false
	}
	g[pos.Row][pos.Col] = empty
	return true
}

// Tile is one tile of a Layout.
type Tile struct {
	Index int
	Color Color
	Pos   Pos
}

// Layout is a board whose tiles keep their identity as they slide, so a
// page can move each tile instead of repainting cells.
type Layout struct {
	Colors [Tiles]Color     `json:"colors"`
	Grid   [Size][Size]int8 `json:"grid"` // Tile index per cell, -1 for the hole
}

// NewLayout numbers b's tiles in row order.
func NewLayout(b Board) Layout {
	var l Layout
	i := 0
	for r := range Size {
		for c := range Size {
			if b[r][c] == None {
				l.Grid[r][c] = -1
				continue
			}
			l.Colors[i] = b[r][c]
			l.Grid[r][c] = int8(i)
			i++
		}
	}
	return l
}

// Click is Board.Click for a layout.
func (l *Layout) Click(pos Pos) bool {
	return slide(&l.Grid, find(&l.Grid, -1), pos)
}

// Board returns the colors l shows.
func (l *Layout) Board() Board {
	var b Board
	for r := range Size {
		for c := range Size {
			if i := l.Grid[r][c]; i >= 0 {
				b[r][c] = l.Colors[i]
			}
		}
	}
	return b
}

// Tiles returns the tiles in index order.
func (l *Layout) Tiles() []Tile {
	tiles := make([]Tile, Tiles)
	for r := range Size {
		for c := range Size {
			if i := l.Grid[r][c]; i >= 0 {
				tiles[i] = Tile{Index: int(i), Color: l.Colors[i], Pos: Pos{Row: r, Col: c}}
			}
		}
	}
	return tiles
}
