// Package routepath normalizes request and route paths so one page has
// exactly one URL.
package routepath

import (
	"errors"
	"strings"
)

// Result is a canonicalized path.
type Result struct {
	// Path is the canonical path without the query string.
	Path string

	// Query is the query string without the leading "?".
	Query string

	// Changed reports whether Path differs from the input path.
	Changed bool
}

// URL returns Path with the query reattached.
func (r Result) URL() string {
	if r.Query == "" {
		return r.Path
	}
	return r.Path + "?" + r.Query
}

var (
	ErrBackslash     = errors.New("routepath: path contains backslash")
	ErrNullByte      = errors.New("routepath: path contains null byte")
	ErrPercentEscape = errors.New("routepath: invalid percent escape")
	ErrEscapesRoot   = errors.New("routepath: path escapes root via ..")
)

// Canonicalize collapses repeated slashes, resolves "." and ".." segments
// and drops a trailing slash except on the root. Backslashes, NUL bytes,
// malformed percent escapes and ".." above the root are rejected. A query
// string is split off and returned unchanged.
func Canonicalize(input string) (Result, error) {
	if input == "" {
		return Result{Path: "/", Changed: true}, nil
	}

	raw, query, _ := strings.Cut(input, "?")

	if strings.Contains(raw, `\`) {
		return Result{}, ErrBackslash
	}
	if strings.Contains(raw, "\x00") || strings.Contains(strings.ToUpper(raw), "%00") {
		return Result{}, ErrNullByte
	}
	if err := checkEscapes(raw); err != nil {
		return Result{}, err
	}

	var segs []string
	for _, seg := range strings.Split(raw, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(segs) == 0 {
				return Result{}, ErrEscapesRoot
			}
			segs = segs[:len(segs)-1]
		default:
			segs = append(segs, seg)
		}
	}

	p := "/" + strings.Join(segs, "/")
	return Result{Path: p, Query: query, Changed: p != raw}, nil
}

func checkEscapes(p string) error {
	for i := 0; i < len(p); i++ {
		if p[i] != '%' {
			continue
		}
		if i+2 >= len(p) || !isHex(p[i+1]) || !isHex(p[i+2]) {
			return ErrPercentEscape
		}
		i += 2
	}
	return nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
