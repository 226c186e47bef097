// Package counter is the minimal isomorph application: a number the server
// owns and the page increments.
package counter

import (
	"io"
	"net/http"
	"strconv"

	"github.com/vango-dev/isomorph/pkg/client"
	"github.com/vango-dev/isomorph/pkg/protocol"
	"github.com/vango-dev/isomorph/pkg/reactive"
	"github.com/vango-dev/isomorph/pkg/server"
	"github.com/vango-dev/isomorph/pkg/session"
	"github.com/vango-dev/isomorph/pkg/transport"
	"github.com/vango-dev/isomorph/pkg/view"
)

// Name is the application name used in socket paths and metrics.
const Name = "counter"

// KeyCount is the state key of the count cell.
const KeyCount = "count"

// TagIncrement is the wire tag of Increment.
const TagIncrement = protocol.FirstAppTag

// Increment asks the server to add Delta to the count.
type Increment struct {
	Delta int64
}

func (*Increment) Tag() protocol.Tag { return TagIncrement }
func (m *Increment) EncodeTo(e *protocol.Encoder) { e.WriteSvarint(m.Delta) }
func (m *Increment) DecodeFrom(d *protocol.Decoder) (err error) {
	m.Delta, err = d.ReadSvarint()
	return err
}

// Codec returns a codec with the counter's variants registered.
func Codec() *protocol.Codec {
	reg := protocol.NewRegistry()
	reg.MustRegister(TagIncrement, "Increment", func() protocol.Message { return &Increment{} })
	return protocol.NewCodec(reg)
}

// View renders the counter. It runs unchanged on the server and the client.
func View(st *reactive.Store) *view.Node {
	count := reactive.New(st, KeyCount, 0)
	status := st.Status()
	emit := func(delta int64) func() {
		return func() {
			if err := transport.Emit(st, &Increment{Delta: delta}); err != nil {
				st.Logger().Warn("increment not sent", "delta", delta, "error", err)
			}
		}
	}

	return view.Main(view.Class("counter"),
		view.H1("Counter"),
		view.Dyn(func() *view.Node {
			if text := client.StatusText(status.Get()); text != "" {
				return view.P(view.Class("status"), view.AriaLive("polite"), text)
			}
			return nil
		}),
		view.Div(view.Class("controls"),
			view.Button(view.Class("dec"), view.AriaLabel("Decrement"), view.OnClick(emit(-1)), "-"),
			view.Dyn(func() *view.Node {
				return view.Span(view.Class("count"), view.Textf("%d", count.Get()))
			}),
			view.Button(view.Class("inc"), view.AriaLabel("Increment"), view.OnClick(emit(1)), "+"),
		),
	)
}

// Start reads the optional start query parameter.
func Start(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("start"))
	if err != nil {
		return 0
	}
	return n
}

// Seed returns the page state for r.
func Seed(r *http.Request) (reactive.Snapshot, error) {
	n := Start(r)
	if n == 0 {
		return nil, nil
	}
	return reactive.Snapshot{KeyCount: []byte(strconv.Itoa(n))}, nil
}

// Handler is the server side of one counter page. The server owns the
// count; the page only sends increments.
func Handler(start int) session.Handler {
	var count *reactive.Cell[int]
	return session.Funcs{
		OnMount: func(s *session.Session) {
			count = reactive.New(s.Store(), KeyCount, start)
			if err := s.Sync(KeyCount); err != nil {
				s.Logger().Error("sync failed", "key", KeyCount, "error", err)
			}
		},
		OnReceive: func(s *session.Session, m protocol.Message) {
			inc, ok := m.(*Increment)
			if !ok {
				s.Logger().Warn("unexpected message", "tag", m.Tag())
				return
			}
			count.Update(func(n int) int { return n + int(inc.Delta) })
		},
	}
}

// Boot hydrates a served counter page. Run the returned runtime to connect.
func Boot(page io.Reader, cfg client.Config) (*client.Runtime, error) {
	cfg.View = View
	cfg.Codec = Codec()
	return client.Boot(page, cfg)
}

// App returns the counter's server registration, mounted at the site root.
func App() server.App {
	return server.App{
		Name:  Name,
		Path:  "/",
		Title: "Counter",
		View:  View,
		Codec: Codec(),
		Seed:  Seed,
		Handler: func(r *http.Request) session.Handler {
			return Handler(Start(r))
		},
		StyleSheets: []string{"counter.css"},
	}
}
