package race

import (
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/vango-dev/isomorph/pkg/protocol"
	"github.com/vango-dev/isomorph/pkg/session"
)

// Lobby pairs connecting players into games. One lobby serves every
// session of the race app.
type Lobby struct {
	logger *slog.Logger

	mu      sync.Mutex
	deal    func() (Target, [2]Board) // Called with mu held
	waiting *player
	games   int
}

// NewLobby creates a lobby. A nil rng seeds one randomly.
func NewLobby(logger *slog.Logger, rng *rand.Rand) *Lobby {
	if logger == nil {
		logger = slog.Default()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	l := &Lobby{logger: logger.With("component", "lobby")}
	l.deal = func() (Target, [2]Board) {
		return GenerateTarget(rng), [2]Board{Generate(rng), Generate(rng)}
	}
	return l
}

type player struct {
	s    *session.Session
	game *game // Guarded by Lobby.mu
	slot int
}

// Handler returns the session handler for one player.
func (l *Lobby) Handler() session.Handler {
	p := &player{}
	return session.Funcs{
		OnMount: func(s *session.Session) {
			p.s = s
			l.join(p)
		},
		OnReceive: func(_ *session.Session, m protocol.Message) {
			l.receive(p, m)
		},
		OnUnmount: func(*session.Session) {
			l.leave(p)
		},
	}
}

// Waiting reports whether a player is waiting for an opponent.
func (l *Lobby) Waiting() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waiting != nil
}

// Games returns the number of games in progress.
func (l *Lobby) Games() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.games
}

func (l *Lobby) join(p *player) {
	l.mu.Lock()
	if l.waiting == nil {
		l.waiting = p
		l.mu.Unlock()
		p.s.Logger().Info("waiting for opponent")
		return
	}
	first := l.waiting
	l.waiting = nil

	target, boards := l.deal()
	g := &game{
		lobby:  l,
		target: target,
		boards: boards,
		events: make(chan event, 16),
		done:   make(chan struct{}),
	}
	g.players = [2]*player{first, p}
	first.game, first.slot = g, 0
	p.game, p.slot = g, 1
	l.games++
	l.mu.Unlock()

	l.logger.Info("game started", "players", []string{first.s.ID(), p.s.ID()})
	go g.run()
}

func (l *Lobby) receive(p *player, m protocol.Message) {
	l.mu.Lock()
	g := p.game
	if l.waiting == p {
		l.waiting = nil
	}
	l.mu.Unlock()

	if g == nil {
		p.s.Logger().Warn("message while waiting", "tag", m.Tag())
		p.s.Close(protocol.CloseError, "no game in progress")
		return
	}
	click, ok := m.(*Click)
	if !ok {
		p.s.Logger().Warn("unexpected message", "tag", m.Tag())
		g.post(event{from: p.slot, invalid: true})
		return
	}
	g.post(event{from: p.slot, pos: click.Pos})
}

func (l *Lobby) leave(p *player) {
	l.mu.Lock()
	g := p.game
	if l.waiting == p {
		l.waiting = nil
	}
	l.mu.Unlock()

	if g != nil {
		g.post(event{from: p.slot, left: true})
	}
}

type event struct {
	from    int
	pos     Pos
	invalid bool
	left    bool
}

// game runs one match on its own goroutine. Sessions only post events.
type game struct {
	lobby   *Lobby
	players [2]*player
	boards  [2]Board
	target  Target
	events  chan event
	done    chan struct{}
}

func (g *game) post(e event) {
	select {
	case g.events <- e:
	case <-g.done:
	}
}

func (g *game) run() {
	defer func() {
		g.lobby.mu.Lock()
		g.lobby.games--
		g.lobby.mu.Unlock()
		close(g.done)
	}()

	for i, p := range g.players {
		_ = p.s.Send(&GameStart{Target: g.target, Board: g.boards[i], Opponent: g.boards[1-i]})
	}

	for e := range g.events {
		me, other := g.players[e.from], g.players[1-e.from]
		switch {
		case e.left:
			g.abandon(other)
			return
		case e.invalid || !g.boards[e.from].Click(e.pos):
			me.s.Logger().Warn("invalid move", "row", e.pos.Row, "col", e.pos.Col)
			me.s.Close(protocol.CloseError, "invalid move")
			g.abandon(other)
			return
		}

		_ = other.s.Send(&OpponentClick{Pos: e.pos})
		if g.boards[e.from].Matches(g.target) {
			_ = me.s.Send(&GameEnd{Win: true})
			_ = other.s.Send(&GameEnd{Win: false})
			g.lobby.logger.Info("game won", "winner", me.s.ID())
			me.s.Close(protocol.CloseNormal, "game over")
			other.s.Close(protocol.CloseNormal, "game over")
			return
		}
	}
}

// abandon tells p its opponent is gone and ends its session.
func (g *game) abandon(p *player) {
	_ = p.s.Send(&OpponentLeft{})
	p.s.Close(protocol.CloseNormal, "opponent left")
}
