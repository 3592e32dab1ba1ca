// Package strx holds string helpers shared by the services.
package strx

import "strings"

// Coalesce returns s if non-empty, otherwise d.
func Coalesce(s, d string) string {
	if s == "" {
		return d
	}
	return s
}

// Replace maps every rune of s found in set to r.
func Replace(s, set string, r rune) string {
	return strings.Map(func(c rune) rune {
		if strings.ContainsRune(set, c) {
			return r
		}
		return c
	}, s)
}
