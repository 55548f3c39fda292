package ocr

import (
	"strings"
	"unicode"
)

// normalizeLabel lowercases s and keeps only letters and digits, so
// "Version 1", "VERSION-1" and "version1" compare equal.
func normalizeLabel(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// MatchVersion finds which of versions appears in text. When several
// match, the longest wins ("version10" over "version1"); equal lengths
// resolve to the earliest in versions.
func MatchVersion(text string, versions []string) (string, bool) {
	haystack := normalizeLabel(text)
	if haystack == "" {
		return "", false
	}

	best, bestLen := "", 0
	for _, v := range versions {
		needle := normalizeLabel(v)
		if needle == "" || len(needle) <= bestLen {
			continue
		}
		if strings.Contains(haystack, needle) {
			best, bestLen = v, len(needle)
		}
	}
	return best, best != ""
}
