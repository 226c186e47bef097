package render

import (
	"fmt"
	"io"
)

const (
	// RootID is the id of the element that wraps the rendered view.
	RootID = "app"

	// StateID is the id of the script element that carries the snapshot.
	StateID = "__state"
)

// Page describes the document around a rendered view.
type Page struct {
	Title       string
	Lang        string   // Defaults to "en"
	App         string   // Written as data-app on the root element
	Socket      string   // WebSocket path, written as data-ws on the root
	StyleSheets []string // Stylesheet URLs
	Bundle      string   // Client bundle URL
}

// RenderPage writes a complete HTML document containing res.
func (r *Renderer) RenderPage(w io.Writer, page Page, res *Result) error {
	lang := page.Lang
	if lang == "" {
		lang = "en"
	}
	state, err := res.Snapshot.Marshal()
	if err != nil {
		return fmt.Errorf("render: marshal snapshot: %w", err)
	}

	ew := &errWriter{w: w}
	ew.printf("<!DOCTYPE html>\n<html lang=\"%s\">\n<head>\n", escapeAttr(lang))
	ew.printf("  <meta charset=\"utf-8\">\n")
	ew.printf("  <meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	if page.Title != "" {
		ew.printf("  <title>%s</title>\n", escapeHTML(page.Title))
	}
	for _, href := range page.StyleSheets {
		ew.printf("  <link rel=\"stylesheet\" href=\"%s\">\n", escapeAttr(href))
	}
	ew.printf("</head>\n<body>\n")

	ew.printf("<div id=\"%s\"", RootID)
	if page.App != "" {
		ew.printf(" data-app=\"%s\"", escapeAttr(page.App))
	}
	if page.Socket != "" {
		ew.printf(" data-ws=\"%s\"", escapeAttr(page.Socket))
	}
	ew.printf(">%s</div>\n", res.HTML)

	// encoding/json escapes <, > and &, so the snapshot cannot close the
	// script element early.
	ew.printf("<script type=\"application/json\" id=\"%s\">%s</script>\n", StateID, state)
	if page.Bundle != "" {
		ew.printf("<script src=\"%s\" defer></script>\n", escapeAttr(page.Bundle))
	}
	ew.printf("</body>\n</html>\n")
	return ew.err
}

// errWriter keeps the first write error and drops later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
