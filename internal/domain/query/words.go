package query

import "strings"

// WordCount splits on whitespace. A token containing '/' counts once per
// non-empty slash-separated part.
func WordCount(text string) int {
	n := 0
	for _, tok := range strings.Fields(text) {
		if !strings.Contains(tok, "/") {
			n++
			continue
		}
		for _, part := range strings.Split(tok, "/") {
			if part != "" {
				n++
			}
		}
	}
	return n
}

// Tokens returns the lowercased whitespace/slash separated tokens of text
// with surrounding punctuation trimmed.
func Tokens(text string) []string {
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		for _, part := range strings.Split(tok, "/") {
			part = strings.Trim(part, ",.;:!?\"'()")
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
