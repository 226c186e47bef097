package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/isomorph/pkg/reactive"
	"github.com/vango-dev/isomorph/pkg/view"
)

const defaultTracerName = "isomorph/render"

var (
	// ErrVoidChildren is returned when a void element such as <input> has
	// children.
	ErrVoidChildren = errors.New("render: void element has children")

	// ErrInvalidTag is returned for an empty tag or one an HTML parser
	// would report differently.
	ErrInvalidTag = errors.New("render: invalid tag name")

	// ErrUnknownKind is returned for a node kind outside the view package.
	ErrUnknownKind = errors.New("render: unknown node kind")
)

// Config configures a Renderer.
type Config struct {
	// Logger receives render failures. Defaults to slog.Default().
	Logger *slog.Logger

	// TracerName names the tracer used for render spans.
	TracerName string
}

// Renderer renders views to annotated markup. It is safe for concurrent use;
// all per-render state lives in the call.
type Renderer struct {
	logger *slog.Logger
	tracer trace.Tracer
}

// NewRenderer creates a Renderer.
func NewRenderer(cfg Config) *Renderer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TracerName == "" {
		cfg.TracerName = defaultTracerName
	}
	return &Renderer{
		logger: cfg.Logger.With("component", "render"),
		tracer: otel.Tracer(cfg.TracerName),
	}
}

// Result is the output of a server render.
type Result struct {
	HTML     string
	Snapshot reactive.Snapshot
	Keys     []string // Snapshot keys, sorted
	Nodes    int      // Elements and dynamic fragments rendered
}

// Render runs v against st and renders the tree. Dynamic fragments are
// evaluated inside store computations so their reads are recorded; the
// caller owns st and should dispose it once the result is no longer needed.
func (r *Renderer) Render(ctx context.Context, st *reactive.Store, v view.View) (*Result, error) {
	_, span := r.tracer.Start(ctx, "render")
	defer span.End()

	p := &pass{st: st, keys: make(map[string]struct{})}
	var renderErr error
	guardErr := reactive.Guard(func() {
		var root *view.Node
		p.addKeys(st.Collect(func() { root = v(st) }))
		if root != nil {
			renderErr = p.node(root)
		}
	})
	err := errors.Join(guardErr, renderErr)

	var res *Result
	if err == nil {
		res, err = p.result()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("render failed", "error", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("isomorph.render.nodes", res.Nodes),
		attribute.Int("isomorph.render.bytes", len(res.HTML)),
		attribute.StringSlice("isomorph.render.keys", res.Keys),
	)
	return res, nil
}

// pass holds the state of one render.
type pass struct {
	st   *reactive.Store
	buf  bytes.Buffer
	hid  int
	keys map[string]struct{}
}

func (p *pass) nextHID() string {
	p.hid++
	return view.HID(p.hid)
}

func (p *pass) addKeys(keys []string) {
	for _, k := range keys {
		p.keys[k] = struct{}{}
	}
}

func (p *pass) result() (*Result, error) {
	keys := make([]string, 0, len(p.keys))
	for k := range p.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	snap := reactive.Snapshot{}
	if len(keys) > 0 {
		var err error
		if snap, err = p.st.Snapshot(keys...); err != nil {
			return nil, fmt.Errorf("render: snapshot: %w", err)
		}
	}
	return &Result{HTML: p.buf.String(), Snapshot: snap, Keys: keys, Nodes: p.hid}, nil
}

func (p *pass) node(n *view.Node) error {
	switch n.Kind {
	case view.KindElement:
		return p.element(n)
	case view.KindText:
		p.buf.WriteString(escapeHTML(n.Text))
		return nil
	case view.KindDynamic:
		return p.dynamic(n)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownKind, n.Kind)
	}
}

// children renders a sibling list, separating adjacent non-empty texts.
// Empty texts render nothing and do not break adjacency.
func (p *pass) children(kids []*view.Node) error {
	prevText := false
	for _, c := range kids {
		if c == nil {
			continue
		}
		if c.Kind == view.KindText {
			if c.Text == "" {
				continue
			}
			if prevText {
				p.comment(view.TextSeparator)
			}
			prevText = true
		} else {
			prevText = false
		}
		if err := p.node(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) element(n *view.Node) error {
	if !validTag(n.Tag) {
		return fmt.Errorf("%w: %q", ErrInvalidTag, n.Tag)
	}
	hid := p.nextHID()

	p.buf.WriteByte('<')
	p.buf.WriteString(n.Tag)
	for _, a := range n.MarkupAttrs() {
		p.buf.WriteByte(' ')
		p.buf.WriteString(a.Key)
		if a.Value != "" {
			p.buf.WriteString(`="`)
			p.buf.WriteString(escapeAttr(a.Value))
			p.buf.WriteByte('"')
		}
	}
	fmt.Fprintf(&p.buf, ` %s="%s"`, view.HIDAttr, hid)
	for _, ev := range n.Events() {
		fmt.Fprintf(&p.buf, ` %s%s="true"`, view.EventAttrPrefix, ev)
	}
	p.buf.WriteByte('>')

	if view.IsVoidElement(n.Tag) {
		if len(n.Children) > 0 {
			return fmt.Errorf("%w: <%s> (%s)", ErrVoidChildren, n.Tag, hid)
		}
		return nil
	}
	if err := p.children(n.Children); err != nil {
		return err
	}
	p.buf.WriteString("</")
	p.buf.WriteString(n.Tag)
	p.buf.WriteByte('>')
	return nil
}

func (p *pass) dynamic(n *view.Node) error {
	hid := p.nextHID()
	p.comment(view.OpenMarker(hid))

	var kids []*view.Node
	c := p.st.Effect(func() { kids = n.Expand() })
	p.addKeys(c.Keys())

	if err := p.children(kids); err != nil {
		return err
	}
	p.comment(view.CloseMarker(hid))
	return nil
}

func (p *pass) comment(data string) {
	p.buf.WriteString("<!--")
	p.buf.WriteString(data)
	p.buf.WriteString("-->")
}

// validTag accepts lowercase ASCII names an HTML parser reports verbatim.
func validTag(tag string) bool {
	if tag == "" || tag[0] < 'a' || tag[0] > 'z' {
		return false
	}
	for i := 1; i < len(tag); i++ {
		c := tag[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return false
		}
	}
	return true
}
