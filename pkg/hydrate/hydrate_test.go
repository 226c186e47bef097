package hydrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/isomorph/pkg/dom"
	"github.com/vango-dev/isomorph/pkg/reactive"
	"github.com/vango-dev/isomorph/pkg/render"
	"github.com/vango-dev/isomorph/pkg/view"
)

// serverRender renders v on a throwaway store and parses the markup the way
// a browser would.
func serverRender(t *testing.T, v view.View) (*dom.Document, reactive.Snapshot) {
	t.Helper()
	st := reactive.NewStore()
	defer st.Dispose()

	res, err := render.NewRenderer(render.Config{}).Render(context.Background(), st, v)
	require.NoError(t, err)
	doc, err := dom.ParseFragment(res.HTML)
	require.NoError(t, err)
	return doc, res.Snapshot
}

// hydrateOver renders server and hydrates client over the result.
func hydrateOver(t *testing.T, server, client view.View) (*Root, *dom.Document, error) {
	t.Helper()
	doc, snap := serverRender(t, server)
	st := reactive.NewStore()
	t.Cleanup(st.Dispose)
	require.NoError(t, st.Restore(snap))
	h, err := Hydrate(st, doc.Root, client, Options{})
	return h, doc, err
}

func counterView(initial int) view.View {
	return func(st *reactive.Store) *view.Node {
		count := reactive.New(st, "count", initial)
		return view.Div(view.Class("counter"),
			view.Button(view.OnClick(func() { count.Update(func(n int) int { return n - 1 }) }), "-"),
			view.Dyn(func() *view.Node { return view.Span(view.Textf("%d", count.Get())) }),
			view.Button(view.OnClick(func() { count.Update(func(n int) int { return n + 1 }) }), "+"),
		)
	}
}

func findTag(n *dom.Node, tag string) *dom.Node {
	return n.Find(func(c *dom.Node) bool { return c.Type == dom.ElementNode && c.Tag == tag })
}

func findButton(n *dom.Node, label string) *dom.Node {
	return n.Find(func(c *dom.Node) bool {
		return c.Type == dom.ElementNode && c.Tag == "button" && c.TextContent() == label
	})
}

func TestHydrateCreatesNoNodes(t *testing.T) {
	h, doc, err := hydrateOver(t, counterView(5), counterView(0))
	require.NoError(t, err)

	assert.Equal(t, Attached, h.State())
	assert.Equal(t, 0, doc.Created())
	assert.Equal(t, Stats{Elements: 4, Texts: 3, Dynamics: 1, Listeners: 2}, h.Stats())
	assert.Equal(t, "5", findTag(doc.Root, "span").TextContent())
}

func TestHydratedListenersPatchInPlace(t *testing.T) {
	h, doc, err := hydrateOver(t, counterView(5), counterView(0))
	require.NoError(t, err)

	span := findTag(doc.Root, "span")
	text := span.FirstChild
	require.NotNil(t, text)

	assert.Equal(t, 1, findButton(doc.Root, "+").Dispatch(dom.Event{Type: "click"}))
	assert.Same(t, span, findTag(doc.Root, "span"))
	assert.Same(t, text, span.FirstChild)
	assert.Equal(t, "6", text.Data)

	findButton(doc.Root, "-").Dispatch(dom.Event{Type: "click"})
	findButton(doc.Root, "-").Dispatch(dom.Event{Type: "click"})
	assert.Equal(t, "4", text.Data)

	assert.Equal(t, 0, doc.Created())
	assert.Equal(t, 3, h.Stats().Patches)
}

func TestAdjacentTextsHydrate(t *testing.T) {
	v := func(st *reactive.Store) *view.Node {
		return view.P(view.Text("a"), view.Text(""), view.Text("b"))
	}
	h, doc, err := hydrateOver(t, v, v)
	require.NoError(t, err)
	assert.Equal(t, 2, h.Stats().Texts)
	assert.Equal(t, "ab", doc.Root.TextContent())
}

func TestHydrateMismatch(t *testing.T) {
	tests := []struct {
		name     string
		server   view.View
		client   view.View
		path     string
		expected string
	}{
		{
			name:     "text",
			server:   func(*reactive.Store) *view.Node { return view.Div("a") },
			client:   func(*reactive.Store) *view.Node { return view.Div("b") },
			path:     "/0/0",
			expected: `text "b"`,
		},
		{
			name:     "tag",
			server:   func(*reactive.Store) *view.Node { return view.Div(view.Span()) },
			client:   func(*reactive.Store) *view.Node { return view.Div(view.P()) },
			path:     "/0/0",
			expected: "<p>",
		},
		{
			name:     "attributes",
			server:   func(*reactive.Store) *view.Node { return view.Div(view.Class("a")) },
			client:   func(*reactive.Store) *view.Node { return view.Div(view.Class("b")) },
			path:     "/0",
			expected: `attributes [class="b"]`,
		},
		{
			name:     "extra live node",
			server:   func(*reactive.Store) *view.Node { return view.Ul(view.Li(), view.Li()) },
			client:   func(*reactive.Store) *view.Node { return view.Ul(view.Li()) },
			path:     "/0",
			expected: "end of <ul>",
		},
		{
			name:   "missing marker",
			server: func(*reactive.Store) *view.Node { return view.Div("x") },
			client: func(*reactive.Store) *view.Node {
				return view.Div(view.Dyn(func() *view.Node { return view.Text("x") }))
			},
			path:     "/0/0",
			expected: `comment "[h2"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, err := hydrateOver(t, tt.server, tt.client)
			require.Error(t, err)
			assert.True(t, IsMismatch(err))
			assert.ErrorIs(t, err, ErrStructuralMismatch)

			var me *MismatchError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.path, me.Path)
			assert.Equal(t, tt.expected, me.Expected)
			assert.Equal(t, Mismatched, h.State())
		})
	}
}

func TestMismatchStopsBeforeLaterListeners(t *testing.T) {
	server := func(*reactive.Store) *view.Node {
		return view.Div(view.Span("x"), view.Button(view.OnClick(func() {}), "go"))
	}
	client := func(*reactive.Store) *view.Node {
		return view.Div(view.Span("y"), view.Button(view.OnClick(func() {}), "go"))
	}
	doc, snap := serverRender(t, server)
	before := doc.Root.InnerHTML()

	st := reactive.NewStore()
	defer st.Dispose()
	require.NoError(t, st.Restore(snap))
	_, err := Hydrate(st, doc.Root, client, Options{})
	require.Error(t, err)

	assert.Empty(t, findTag(doc.Root, "button").Listeners())
	assert.Equal(t, before, doc.Root.InnerHTML())
	assert.Equal(t, 0, doc.Created())
}

func TestMismatchDisposesFragments(t *testing.T) {
	var count *reactive.Cell[int]
	server := func(st *reactive.Store) *view.Node {
		c := reactive.New(st, "count", 1)
		return view.Div(view.Dyn(func() *view.Node { return view.Textf("%d", c.Get()) }), view.Span("x"))
	}
	client := func(st *reactive.Store) *view.Node {
		count = reactive.New(st, "count", 0)
		return view.Div(view.Dyn(func() *view.Node { return view.Textf("%d", count.Get()) }), view.Span("y"))
	}
	h, doc, err := hydrateOver(t, server, client)
	require.Error(t, err)

	count.Set(9)
	assert.Equal(t, 0, h.Stats().Patches)
	assert.Contains(t, doc.Root.InnerHTML(), "1")
	assert.NotContains(t, doc.Root.InnerHTML(), "9")
}

func TestPatchReplacesDifferentSubtree(t *testing.T) {
	var on *reactive.Cell[bool]
	v := func(st *reactive.Store) *view.Node {
		on = reactive.New(st, "on", false)
		return view.Div(view.Dyn(func() *view.Node {
			if on.Get() {
				return view.Strong("yes")
			}
			return view.Span("no")
		}))
	}
	_, doc, err := hydrateOver(t, v, v)
	require.NoError(t, err)

	on.Set(true)
	html := doc.Root.InnerHTML()
	assert.Contains(t, html, `<!--[h2--><strong data-hid="h4">yes</strong><!--]h2-->`)
	assert.NotContains(t, html, "<span")
	assert.Equal(t, 2, doc.Created())

	on.Set(false)
	assert.Contains(t, doc.Root.InnerHTML(), `<span data-hid="h5">no</span>`)
	assert.Nil(t, findTag(doc.Root, "strong"))
}

func TestPatchSyncsAttributesAndListeners(t *testing.T) {
	var active *reactive.Cell[bool]
	clicks := 0
	v := func(st *reactive.Store) *view.Node {
		active = reactive.New(st, "active", false)
		return view.Div(view.Dyn(func() *view.Node {
			if active.Get() {
				return view.Button(view.Class("on"), view.OnClick(func() { clicks++ }), "b")
			}
			return view.Button(view.Disabled(true), "b")
		}))
	}
	_, doc, err := hydrateOver(t, v, v)
	require.NoError(t, err)

	btn := findTag(doc.Root, "button")
	_, disabled := btn.Attr("disabled")
	assert.True(t, disabled)
	assert.Equal(t, 0, btn.Dispatch(dom.Event{Type: "click"}))

	active.Set(true)
	assert.Same(t, btn, findTag(doc.Root, "button"))
	_, disabled = btn.Attr("disabled")
	assert.False(t, disabled)
	class, _ := btn.Attr("class")
	assert.Equal(t, "on", class)
	marker, _ := btn.Attr(view.EventAttrPrefix + "click")
	assert.Equal(t, "true", marker)

	btn.Dispatch(dom.Event{Type: "click"})
	assert.Equal(t, 1, clicks)

	active.Set(false)
	assert.Empty(t, btn.Listeners())
	_, ok := btn.Attr(view.EventAttrPrefix + "click")
	assert.False(t, ok)
}

func TestNestedFragments(t *testing.T) {
	var show *reactive.Cell[bool]
	var count *reactive.Cell[int]
	v := func(st *reactive.Store) *view.Node {
		show = reactive.New(st, "show", true)
		count = reactive.New(st, "count", 1)
		return view.Div(view.Dyn(func() *view.Node {
			if !show.Get() {
				return nil
			}
			return view.Section(view.Dyn(func() *view.Node { return view.Textf("n=%d", count.Get()) }))
		}))
	}
	h, doc, err := hydrateOver(t, v, v)
	require.NoError(t, err)
	assert.Equal(t, 2, h.Stats().Dynamics)

	count.Set(2)
	assert.Equal(t, "n=2", findTag(doc.Root, "section").TextContent())
	assert.Equal(t, 0, doc.Created())

	show.Set(false)
	assert.Nil(t, findTag(doc.Root, "section"))
	assert.Equal(t, `<div data-hid="h1"><!--[h2--><!--]h2--></div>`, doc.Root.InnerHTML())

	patches := h.Stats().Patches
	count.Set(3)
	assert.Equal(t, patches, h.Stats().Patches)

	show.Set(true)
	assert.Equal(t, "n=3", findTag(doc.Root, "section").TextContent())

	count.Set(4)
	assert.Equal(t, "n=4", findTag(doc.Root, "section").TextContent())
}

func TestEmptyTextBecomesVisible(t *testing.T) {
	var msg *reactive.Cell[string]
	v := func(st *reactive.Store) *view.Node {
		msg = reactive.New(st, "msg", "")
		return view.Div(view.Dyn(func() *view.Node { return view.Text(msg.Get()) }))
	}
	_, doc, err := hydrateOver(t, v, v)
	require.NoError(t, err)

	msg.Set("hi")
	assert.Equal(t, `<div data-hid="h1"><!--[h2-->hi<!--]h2--></div>`, doc.Root.InnerHTML())
	assert.Equal(t, 1, doc.Created())

	msg.Set("")
	assert.Equal(t, `<div data-hid="h1"><!--[h2--><!--]h2--></div>`, doc.Root.InnerHTML())
}

func TestListGrowsAndShrinks(t *testing.T) {
	var items *reactive.Cell[[]string]
	v := func(st *reactive.Store) *view.Node {
		items = reactive.New(st, "items", []string{"a", "b"})
		return view.Ul(view.DynList(func() []*view.Node {
			return view.Map(items.Get(), func(_ int, s string) *view.Node { return view.Li(s) })
		}))
	}
	_, doc, err := hydrateOver(t, v, v)
	require.NoError(t, err)

	first := findTag(doc.Root, "li")
	items.Set([]string{"a", "b", "c"})
	assert.Equal(t, "abc", doc.Root.TextContent())
	assert.Same(t, first, findTag(doc.Root, "li"))

	items.Set([]string{"z"})
	assert.Equal(t, "z", doc.Root.TextContent())
	assert.Same(t, first, findTag(doc.Root, "li"))
}

func TestDisposeStopsPatching(t *testing.T) {
	h, doc, err := hydrateOver(t, counterView(1), counterView(0))
	require.NoError(t, err)

	h.Dispose()
	h.Dispose()
	findButton(doc.Root, "+").Dispatch(dom.Event{Type: "click"})
	assert.Equal(t, "1", findTag(doc.Root, "span").TextContent())
	assert.Equal(t, 0, h.Stats().Patches)
}
