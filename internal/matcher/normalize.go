package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripAccents decomposes to NFD, removes combining marks and recomposes,
// so "São José" and "Sao Jose" normalize to the same string.
var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeNome canonicalizes a client name for the fallback lookup:
// lowercase, diacritics stripped, whitespace collapsed. The registry side
// must index names with the same normalization for the fallback to work.
func NormalizeNome(nome string) string {
	out, _, err := transform.String(stripAccents, nome)
	if err != nil {
		out = nome
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}
