package race

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/isomorph/pkg/protocol"
)

func TestMessagesRoundTrip(t *testing.T) {
	c := Codec()
	rng := testRNG()
	msgs := []protocol.Message{
		&Click{Pos: Pos{Row: 4, Col: 0}},
		&OpponentClick{Pos: Pos{Row: 1, Col: 3}},
		&GameStart{Target: GenerateTarget(rng), Board: Generate(rng), Opponent: Generate(rng)},
		&GameEnd{Win: true},
		&GameEnd{},
		&OpponentLeft{},
	}
	for _, m := range msgs {
		got, err := c.Decode(c.Encode(m))
		require.NoError(t, err, "%T", m)
		assert.Equal(t, m, got)
	}
}

func TestMessagesRejectMalformed(t *testing.T) {
	c := Codec()

	e := protocol.NewEncoder()
	e.WriteUvarint(uint64(TagClick))
	e.WriteLenBytes([]byte{7, 1})
	_, err := c.Decode(e.Bytes())
	assert.ErrorIs(t, err, protocol.ErrMalformed)

	data := c.Encode(&GameStart{Board: Generate(testRNG())})
	// Tag and length take three bytes; corrupt the first target cell.
	data[3] = 0x42
	_, err = c.Decode(data)
	assert.ErrorIs(t, err, protocol.ErrMalformed)
}
