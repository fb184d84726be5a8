// Package romanize renders lyrics and titles in Latin script where it can.
// Full-width forms are folded, Latin text loses its diacritics, kana and
// Cyrillic are transliterated, and other scripts pass through unchanged.
package romanize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Romanizer converts text to Latin script. It is safe for concurrent use.
type Romanizer struct{}

// New creates a romanizer.
func New() *Romanizer {
	return &Romanizer{}
}

// NeedsRomanization reports whether text contains letters outside plain ASCII.
func NeedsRomanization(text string) bool {
	for _, r := range text {
		if r > unicode.MaxASCII && unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// Romanize returns text in Latin script. It never fails; untransliterable
// runes are kept as they are.
func (r *Romanizer) Romanize(text string) string {
	if !NeedsRomanization(text) {
		return text
	}

	return stripLatinMarks(transliterate(width.Fold.String(text)))
}

// stripLatinMarks removes combining marks attached to Latin letters only, so
// scripts that depend on their marks stay intact.
func stripLatinMarks(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	latinBase := false
	for _, r := range norm.NFD.String(text) {
		if unicode.Is(unicode.Mn, r) {
			if !latinBase {
				b.WriteRune(r)
			}
			continue
		}
		latinBase = unicode.Is(unicode.Latin, r)
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}

func transliterate(text string) string {
	src := []rune(text)
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(src); i++ {
		r := src[i]

		switch {
		case isKana(r):
			i += writeKana(&b, src, i) - 1
		case cyrillic[r] != "":
			b.WriteString(cyrillic[r])
		case unicode.Is(unicode.Cyrillic, r) && cyrillic[unicode.ToLower(r)] != "":
			b.WriteString(capitalize(cyrillic[unicode.ToLower(r)]))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	rs := []rune(s)
	rs[0] = unicode.ToUpper(rs[0])
	return string(rs)
}

func isKana(r rune) bool {
	return unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || r == 'ー'
}

// toHiragana folds katakana onto the hiragana block.
func toHiragana(r rune) rune {
	if r >= 'ァ' && r <= 'ヶ' {
		return r - 0x60
	}
	return r
}

// writeKana writes the romaji for the kana sequence starting at src[i] and
// returns how many runes it consumed.
func writeKana(b *strings.Builder, src []rune, i int) int {
	r := toHiragana(src[i])

	switch r {
	case 'ー':
		if s := b.String(); len(s) > 0 {
			b.WriteByte(s[len(s)-1])
		}
		return 1
	case 'っ':
		if i+1 < len(src) && isKana(src[i+1]) {
			var next strings.Builder
			writeKana(&next, src, i+1)
			if n := next.String(); n != "" && n[0] != 'a' && n[0] != 'i' && n[0] != 'u' && n[0] != 'e' && n[0] != 'o' {
				if strings.HasPrefix(n, "ch") {
					b.WriteByte('t')
				} else {
					b.WriteByte(n[0])
				}
			}
		}
		return 1
	}

	if i+1 < len(src) {
		pair := string([]rune{r, toHiragana(src[i+1])})
		if romaji, ok := youon[pair]; ok {
			b.WriteString(romaji)
			return 2
		}
	}

	if romaji, ok := kana[r]; ok {
		b.WriteString(romaji)
	} else {
		b.WriteRune(src[i])
	}
	return 1
}
