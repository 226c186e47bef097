package protocol

// Built-in variant tags.
const (
	TagPing        Tag = 0x0001 // Keepalive request
	TagPong        Tag = 0x0002 // Keepalive response
	TagClose       Tag = 0x0003 // Orderly session close
	TagWelcome     Tag = 0x0010 // Server → client, first message of a session
	TagStateUpdate Tag = 0x0011 // Keyed cell value push, either direction
)

// CloseReason indicates why a session is being closed.
type CloseReason uint8

const (
	CloseNormal         CloseReason = 0x00 // Normal closure
	CloseGoingAway      CloseReason = 0x01 // Client/server going away
	CloseServerShutdown CloseReason = 0x03 // Server shutting down
	CloseError          CloseReason = 0x04 // Protocol or decode error
	CloseRateLimited    CloseReason = 0x05 // Inbound rate exceeded
)

// String returns the string representation of the close reason.
func (cr CloseReason) String() string {
	switch cr {
	case CloseNormal:
		return "Normal"
	case CloseGoingAway:
		return "GoingAway"
	case CloseServerShutdown:
		return "ServerShutdown"
	case CloseError:
		return "Error"
	case CloseRateLimited:
		return "RateLimited"
	default:
		return "Unknown"
	}
}

// Ping asks the peer to answer with a Pong carrying the same timestamp.
type Ping struct {
	Timestamp uint64 // Unix milliseconds
}

func (*Ping) Tag() Tag { return TagPing }
func (m *Ping) EncodeTo(e *Encoder) { e.WriteUint64(m.Timestamp) }
func (m *Ping) DecodeFrom(d *Decoder) (err error) {
	m.Timestamp, err = d.ReadUint64()
	return err
}

// Pong answers a Ping.
type Pong struct {
	Timestamp uint64
}

func (*Pong) Tag() Tag { return TagPong }
func (m *Pong) EncodeTo(e *Encoder) { e.WriteUint64(m.Timestamp) }
func (m *Pong) DecodeFrom(d *Decoder) (err error) {
	m.Timestamp, err = d.ReadUint64()
	return err
}

// Close announces an orderly shutdown of the session.
type Close struct {
	Reason  CloseReason
	Message string
}

func (*Close) Tag() Tag { return TagClose }

func (m *Close) EncodeTo(e *Encoder) {
	e.WriteUint8(uint8(m.Reason))
	e.WriteString(m.Message)
}

func (m *Close) DecodeFrom(d *Decoder) error {
	b, err := d.ReadUint8()
	if err != nil {
		return err
	}
	m.Reason = CloseReason(b)
	m.Message, err = d.ReadString()
	return err
}

// Welcome is the first message a server sends on a new connection.
type Welcome struct {
	SessionID string
}

func (*Welcome) Tag() Tag { return TagWelcome }
func (m *Welcome) EncodeTo(e *Encoder) { e.WriteString(m.SessionID) }
func (m *Welcome) DecodeFrom(d *Decoder) (err error) {
	m.SessionID, err = d.ReadString()
	return err
}

// StateUpdate carries the encoded value of one keyed reactive cell.
// Value uses the same textual encoding as the page snapshot.
type StateUpdate struct {
	Key   string
	Value []byte
}

func (*StateUpdate) Tag() Tag { return TagStateUpdate }

func (m *StateUpdate) EncodeTo(e *Encoder) {
	e.WriteString(m.Key)
	e.WriteLenBytes(m.Value)
}

func (m *StateUpdate) DecodeFrom(d *Decoder) error {
	var err error
	if m.Key, err = d.ReadString(); err != nil {
		return err
	}
	m.Value, err = d.ReadLenBytes()
	return err
}

func registerBuiltins(r *Registry) {
	r.MustRegister(TagPing, "Ping", func() Message { return &Ping{} })
	r.MustRegister(TagPong, "Pong", func() Message { return &Pong{} })
	r.MustRegister(TagClose, "Close", func() Message { return &Close{} })
	r.MustRegister(TagWelcome, "Welcome", func() Message { return &Welcome{} })
	r.MustRegister(TagStateUpdate, "StateUpdate", func() Message { return &StateUpdate{} })
}
