// Package stringutil provides text helpers for user messages: accent
// folding for keyword matching, rune-safe truncation and chunking.
package stringutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s and strips combining marks, so "Admisión" and
// "ADMISION" both become "admision". The ñ is folded to n as well.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// ContainsAny reports whether s contains any of the substrings.
// Empty substrings never match.
func ContainsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Chunk splits s into pieces of at most size runes, preferring to break at
// a newline in the second half of a piece.
func Chunk(s string, size int) []string {
	if size <= 0 || s == "" {
		return nil
	}
	var out []string
	r := []rune(s)
	for len(r) > size {
		cut := size
		for i := size - 1; i >= size/2; i-- {
			if r[i] == '\n' {
				cut = i + 1
				break
			}
		}
		if piece := strings.TrimRight(string(r[:cut]), "\n"); piece != "" {
			out = append(out, piece)
		}
		r = r[cut:]
	}
	if rest := strings.TrimRight(string(r), "\n"); strings.TrimSpace(rest) != "" {
		out = append(out, rest)
	}
	return out
}
