package helpers

import (
	"strings"
	"unicode"
)

// CollapseSpace trims s and folds every run of whitespace into a single space
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// StripSymbols removes emoji and other pictographic symbols that chat messages
// decorate deal titles with
func StripSymbols(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.Is(unicode.So, r) || unicode.Is(unicode.Sk, r) || r == '\uFE0F' || r == '\u200D' {
			return -1
		}
		return r
	}, s)
}
