package race

import (
	"io"
	"time"

	"github.com/vango-dev/isomorph/pkg/client"
	"github.com/vango-dev/isomorph/pkg/protocol"
)

// PingInterval keeps idle game connections alive through proxies.
const PingInterval = 50 * time.Second

// Boot hydrates a served race page. A game cannot survive a new session,
// so the page does not reconnect; it shows an error instead.
func Boot(page io.Reader, path string, cfg client.Config) (*client.Runtime, error) {
	cfg.View = View(path)
	cfg.Codec = Codec()
	cfg.NoReconnect = true
	cfg.OnMessage = handleMessage
	cfg.OnDisconnect = handleDisconnect
	if cfg.Transport.PingInterval == 0 {
		cfg.Transport.PingInterval = PingInterval
	}
	return client.Boot(page, cfg)
}

func handleMessage(rt *client.Runtime, m protocol.Message) {
	g := cellsOf(rt.Store())
	if g == nil {
		return
	}
	switch m := m.(type) {
	case *GameStart:
		rt.Store().Batch(func() {
			g.target.Set(m.Target)
			g.board.Set(NewLayout(m.Board))
			g.opponent.Set(NewLayout(m.Opponent))
			g.phase.Set(Playing)
		})
	case *OpponentClick:
		l := g.opponent.Peek()
		if l.Click(m.Pos) {
			g.opponent.Set(l)
		}
	case *GameEnd:
		if m.Win {
			g.phase.Set(Won)
		} else {
			g.phase.Set(Lost)
		}
	case *OpponentLeft:
		if !g.phase.Peek().Over() {
			g.phase.Set(Abandoned)
		}
	}
}

// handleDisconnect turns any disconnect before the game has ended into a
// connection error.
func handleDisconnect(rt *client.Runtime, _ error) {
	g := cellsOf(rt.Store())
	if g == nil || g.phase.Peek().Over() {
		return
	}
	g.phase.Set(ConnectionError)
}
