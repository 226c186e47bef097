package race

import (
	"fmt"
	"strconv"

	"github.com/vango-dev/isomorph/pkg/reactive"
	"github.com/vango-dev/isomorph/pkg/transport"
	"github.com/vango-dev/isomorph/pkg/view"
)

// Phase is where the page is in a game.
type Phase uint8

const (
	Waiting Phase = iota
	Playing
	WaitGameEnd // Local board matches; waiting for the server's verdict
	Won
	Lost
	Abandoned // The opponent left
	ConnectionError
)

// Message is the banner text for p.
func (p Phase) Message() string {
	switch p {
	case Waiting:
		return "Waiting for opponent"
	case Won:
		return "You win!"
	case Lost:
		return "You lose!"
	case Abandoned:
		return "Opponent left the game"
	case ConnectionError:
		return "Server connection error"
	default:
		return ""
	}
}

// Over reports whether the game has ended for this page.
func (p Phase) Over() bool { return p >= Won }

// State keys.
const (
	KeyPhase    = "race.phase"
	KeyTarget   = "race.target"
	KeyBoard    = "race.board"
	KeyOpponent = "race.opponent"
)

type cellsKey struct{}

// cells are the page's state, shared by the view and the client's
// message handler.
type cells struct {
	st       *reactive.Store
	phase    *reactive.Cell[Phase]
	target   *reactive.Cell[Target]
	board    *reactive.Cell[Layout]
	opponent *reactive.Cell[Layout]
}

func bind(st *reactive.Store) *cells {
	g := &cells{
		st:       st,
		phase:    reactive.New(st, KeyPhase, Waiting),
		target:   reactive.New(st, KeyTarget, Target{}),
		board:    reactive.New(st, KeyBoard, Layout{}),
		opponent: reactive.New(st, KeyOpponent, Layout{}),
	}
	st.SetValue(cellsKey{}, g)
	return g
}

func cellsOf(st *reactive.Store) *cells {
	g, _ := st.Value(cellsKey{}).(*cells)
	return g
}

// click applies a local move and sends it. The board moves before the
// server confirms; an invalid move never leaves the page.
func (g *cells) click(pos Pos) {
	if g.phase.Peek() != Playing {
		return
	}
	l := g.board.Peek()
	if !l.Click(pos) {
		return
	}
	g.st.Batch(func() {
		g.board.Set(l)
		if b := l.Board(); b.Matches(g.target.Peek()) {
			g.phase.Set(WaitGameEnd)
		}
	})
	if err := transport.Emit(g.st, &Click{Pos: pos}); err != nil {
		g.st.Logger().Warn("click not sent", "pos", pos, "error", err)
	}
}

// View renders the race page. Path is where "Play again" leads.
func View(path string) view.View {
	return func(st *reactive.Store) *view.Node {
		g := bind(st)
		return view.Main(view.Class("race"),
			view.H1("Race"),
			view.Dyn(func() *view.Node {
				if msg := g.phase.Get().Message(); msg != "" {
					return view.P(view.Class("message"), view.AriaLive("polite"), msg)
				}
				return nil
			}),
			view.Dyn(func() *view.Node {
				if !g.phase.Get().Over() {
					return nil
				}
				return view.A(view.Class("again"), view.Href(path), "Play again")
			}),
			view.Div(view.Class("boards"),
				view.Dyn(func() *view.Node {
					if g.phase.Get() == Waiting {
						return nil
					}
					return boardView("board mine", g.board.Get(), g.click)
				}),
				view.Section(view.Class("side"),
					view.H2("Target"),
					view.Dyn(func() *view.Node {
						if g.phase.Get() == Waiting {
							return nil
						}
						return targetView(g.target.Get())
					}),
					view.H2("Opponent"),
					view.Dyn(func() *view.Node {
						if g.phase.Get() == Waiting {
							return nil
						}
						return boardView("board opponent", g.opponent.Get(), nil)
					}),
				),
			),
		)
	}
}

func cellStyle(p Pos) string {
	return fmt.Sprintf("--row: %d; --col: %d;", p.Row, p.Col)
}

// boardView renders tiles in index order so a move only restyles the
// tiles that slid.
func boardView(class string, l Layout, onClick func(Pos)) *view.Node {
	return view.Div(view.Class(class),
		view.Map(l.Tiles(), func(_ int, t Tile) *view.Node {
			attrs := []view.Attr{
				view.Class("tile", t.Color.String()),
				view.Style(cellStyle(t.Pos)),
				view.Data("tile", strconv.Itoa(t.Index)),
			}
			if onClick != nil {
				pos := t.Pos
				attrs = append(attrs, view.OnClick(func() { onClick(pos) }))
			}
			return view.Div(attrs)
		}),
	)
}

func targetView(t Target) *view.Node {
	var squares []*view.Node
	for r, row := range t {
		for c, col := range row {
			squares = append(squares, view.Div(
				view.Class("tile", col.String()),
				view.Style(cellStyle(Pos{Row: r, Col: c})),
			))
		}
	}
	return view.Div(view.Class("target"), squares)
}
