package race

import (
	"fmt"

	"github.com/vango-dev/isomorph/pkg/protocol"
)

// Wire tags of the race variants.
const (
	TagClick protocol.Tag = protocol.FirstAppTag + iota
	TagGameStart
	TagOpponentClick
	TagGameEnd
	TagOpponentLeft
)

// Click is a player's move, client to server.
type Click struct {
	Pos Pos
}

// GameStart deals the boards, server to client.
type GameStart struct {
	Target   Target
	Board    Board
	Opponent Board
}

// OpponentClick relays the opponent's move.
type OpponentClick struct {
	Pos Pos
}

// GameEnd reports the result.
type GameEnd struct {
	Win bool
}

// OpponentLeft reports that the other player disconnected or was removed.
type OpponentLeft struct{}

// Codec returns a codec with the race variants registered.
func Codec() *protocol.Codec {
	reg := protocol.NewRegistry()
	reg.MustRegister(TagClick, "Click", func() protocol.Message { return &Click{} })
	reg.MustRegister(TagGameStart, "GameStart", func() protocol.Message { return &GameStart{} })
	reg.MustRegister(TagOpponentClick, "OpponentClick", func() protocol.Message { return &OpponentClick{} })
	reg.MustRegister(TagGameEnd, "GameEnd", func() protocol.Message { return &GameEnd{} })
	reg.MustRegister(TagOpponentLeft, "OpponentLeft", func() protocol.Message { return &OpponentLeft{} })
	return protocol.NewCodec(reg)
}

func (*Click) Tag() protocol.Tag { return TagClick }
func (m *Click) EncodeTo(e *protocol.Encoder) { writePos(e, m.Pos) }
func (m *Click) DecodeFrom(d *protocol.Decoder) error { return readPos(d, &m.Pos) }

func (*OpponentClick) Tag() protocol.Tag { return TagOpponentClick }
func (m *OpponentClick) EncodeTo(e *protocol.Encoder) { writePos(e, m.Pos) }
func (m *OpponentClick) DecodeFrom(d *protocol.Decoder) error { return readPos(d, &m.Pos) }

func (*GameEnd) Tag() protocol.Tag { return TagGameEnd }
func (m *GameEnd) EncodeTo(e *protocol.Encoder) { e.WriteBool(m.Win) }
func (m *GameEnd) DecodeFrom(d *protocol.Decoder) (err error) {
	m.Win, err = d.ReadBool()
	return err
}

func (*OpponentLeft) Tag() protocol.Tag { return TagOpponentLeft }
func (*OpponentLeft) EncodeTo(*protocol.Encoder) {}
func (*OpponentLeft) DecodeFrom(*protocol.Decoder) error { return nil }

func (*GameStart) Tag() protocol.Tag { return TagGameStart }

func (m *GameStart) EncodeTo(e *protocol.Encoder) {
	for _, row := range m.Target {
		for _, c := range row {
			e.WriteUint8(uint8(c))
		}
	}
	for _, b := range []*Board{&m.Board, &m.Opponent} {
		for _, row := range b {
			for _, c := range row {
				e.WriteUint8(uint8(c))
			}
		}
	}
}

func (m *GameStart) DecodeFrom(d *protocol.Decoder) error {
	var err error
	for r := range TargetSize {
		for c := range TargetSize {
			if m.Target[r][c], err = readColor(d); err != nil {
				return err
			}
		}
	}
	for _, b := range []*Board{&m.Board, &m.Opponent} {
		for r := range Size {
			for c := range Size {
				if b[r][c], err = readColor(d); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Positions travel as two bytes; an off-board position is malformed.
func writePos(e *protocol.Encoder, p Pos) {
	e.WriteUint8(uint8(p.Row))
	e.WriteUint8(uint8(p.Col))
}

func readPos(d *protocol.Decoder, p *Pos) error {
	row, err := d.ReadUint8()
	if err != nil {
		return err
	}
	col, err := d.ReadUint8()
	if err != nil {
		return err
	}
	*p = Pos{Row: int(row), Col: int(col)}
	if !p.Valid() {
		return fmt.Errorf("position %d,%d off the board", row, col)
	}
	return nil
}

func readColor(d *protocol.Decoder) (Color, error) {
	b, err := d.ReadUint8()
	if err != nil {
		return None, err
	}
	if c := Color(b); c.Valid() {
		return c, nil
	}
	return None, fmt.Errorf("invalid color %d", b)
}
