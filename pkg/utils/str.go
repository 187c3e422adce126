package utils

import (
	"regexp"
	"strings"
)

// SplitByMultipleDelimiters splits s on any of the delimiters, trimming
// spaces and dropping empty parts, so "a; b,,c" yields [a b c]
func SplitByMultipleDelimiters(s string, delimiters ...string) []string {
	var parts []string
	if len(delimiters) == 0 {
		parts = []string{s}
	} else {
		re := regexp.MustCompile("[" + regexp.QuoteMeta(strings.Join(delimiters, "")) + "]")
		parts = re.Split(s, -1)
	}

	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
