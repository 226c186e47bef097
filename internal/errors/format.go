package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[90m"
	colorBold  = "\033[1m"
)

var colorEnabled = true

// DisableColors disables ANSI color output.
func DisableColors() {
	colorEnabled = false
}

// EnableColors enables ANSI color output.
func EnableColors() {
	colorEnabled = true
}

func color(code, text string) string {
	if !colorEnabled {
		return text
	}
	return code + text + colorReset
}

// Format returns the error formatted for a terminal.
func (e *Error) Format() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(color(colorRed+colorBold, "ERROR "))
	if e.Code != "" {
		b.WriteString(color(colorBold, e.Code+": "))
	}
	b.WriteString(e.Message)
	b.WriteString("\n")

	if e.Detail != "" {
		for _, line := range wrapText(e.Detail, 76) {
			b.WriteString("\n  " + line)
		}
		b.WriteString("\n")
	}
	if e.Wrapped != nil {
		b.WriteString("\n  " + color(colorGray, "cause: "+e.Wrapped.Error()) + "\n")
	}
	if e.Suggestion != "" {
		b.WriteString("\n  " + color(colorCyan, "Hint: ") + e.Suggestion + "\n")
	}
	b.WriteString("\n")
	return b.String()
}

// FormatCompact returns a single-line rendering.
func (e *Error) FormatCompact() string {
	return e.Error()
}

func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	var cur strings.Builder
	for _, word := range strings.Fields(text) {
		if cur.Len() > 0 && cur.Len()+len(word)+1 > width {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

// Fprint writes err to w, formatted when it is an *Error.
func Fprint(w io.Writer, err error) {
	var e *Error
	if stderrors.As(err, &e) {
		fmt.Fprint(w, e.Format())
		return
	}
	fmt.Fprintf(w, "\n%s %s\n\n", color(colorRed+colorBold, "ERROR:"), err.Error())
}

// PrintError prints err to stderr.
func PrintError(err error) {
	Fprint(os.Stderr, err)
}
