package race

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRNG() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }

func TestGenerate(t *testing.T) {
	rng := testRNG()
	for range 20 {
		b := Generate(rng)
		assert.Equal(t, Pos{Row: 2, Col: 2}, b.Hole())

		counts := map[Color]int{}
		for _, row := range b {
			for _, c := range row {
				counts[c]++
			}
		}
		assert.Equal(t, 1, counts[None])
		for c := White; c <= Blue; c++ {
			assert.Equal(t, 4, counts[c], "color %s", c)
		}
	}
}

func TestGenerateTarget(t *testing.T) {
	rng := testRNG()
	for range 200 {
		target := GenerateTarget(rng)
		counts := map[Color]int{}
		for _, row := range target {
			for _, c := range row {
				require.NotEqual(t, None, c)
				counts[c]++
			}
		}
		for c, n := range counts {
			assert.LessOrEqual(t, n, 4, "color %s", c)
		}
	}
}

// numbered returns a board whose cells are distinct so slides are easy to
// read: the hole is at (2,2).
func numbered() Board {
	var b Board
	for r := range Size {
		for c := range Size {
			b[r][c] = Color((r*Size+c)%colors) + White
		}
	}
	b[2][2] = None
	return b
}

func TestClickRow(t *testing.T) {
	b := numbered()
	before := b
	require.True(t, b.Click(Pos{Row: 2, Col: 0}))

	assert.Equal(t, Pos{Row: 2, Col: 0}, b.Hole())
	assert.Equal(t, before[2][0], b[2][1])
	assert.Equal(t, before[2][1], b[2][2])
	assert.Equal(t, before[2][3], b[2][3])

	require.True(t, b.Click(Pos{Row: 2, Col: 4}))
	assert.Equal(t, Pos{Row: 2, Col: 4}, b.Hole())
	assert.Equal(t, before[2][0], b[2][0])
	assert.Equal(t, before[2][4], b[2][3])
}

func TestClickColumn(t *testing.T) {
	b := numbered()
	before := b
	require.True(t, b.Click(Pos{Row: 4, Col: 2}))

	assert.Equal(t, Pos{Row: 4, Col: 2}, b.Hole())
	assert.Equal(t, before[3][2], b[2][2])
	assert.Equal(t, before[4][2], b[3][2])
}

func TestClickInvalid(t *testing.T) {
	b := numbered()
	before := b
	for _, p := range []Pos{{2, 2}, {0, 0}, {3, 1}, {-1, 2}, {2, 5}} {
		assert.False(t, b.Click(p), "%v", p)
	}
	assert.Equal(t, before, b)
}

func TestMatches(t *testing.T) {
	b := Generate(testRNG())
	moved := b
	require.True(t, moved.Click(Pos{Row: 2, Col: 0}))

	var target Target
	for r := range TargetSize {
		for c := range TargetSize {
			target[r][c] = moved[r+1][c+1]
		}
	}
	assert.False(t, b.Matches(target))
	assert.True(t, moved.Matches(target))
}

func TestLayoutFollowsBoard(t *testing.T) {
	rng := testRNG()
	b := Generate(rng)
	l := NewLayout(b)
	require.Equal(t, b, l.Board())

	for range 500 {
		p := Pos{Row: rng.IntN(Size), Col: rng.IntN(Size)}
		assert.Equal(t, b.Click(p), l.Click(p))
		require.Equal(t, b, l.Board())
	}

	seen := map[Pos]bool{}
	for i, tile := range l.Tiles() {
		assert.Equal(t, i, tile.Index)
		assert.Equal(t, l.Colors[i], tile.Color)
		assert.False(t, seen[tile.Pos])
		seen[tile.Pos] = true
	}
	assert.Len(t, seen, Tiles)
}

func TestLayoutClickKeepsTileIdentity(t *testing.T) {
	l := NewLayout(numbered())
	tile := l.Grid[2][1]
	require.True(t, l.Click(Pos{Row: 2, Col: 0}))
	assert.Equal(t, tile, l.Grid[2][2])
	assert.Equal(t, Pos{Row: 2, Col: 2}, l.Tiles()[tile].Pos)
}
