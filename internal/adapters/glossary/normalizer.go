package glossary

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
)

// Normalizer rewrites glossary terms to their canonical form.
// It never mutates its table, so one instance serves all goroutines.
type Normalizer struct {
	entries entities.Glossary
}

// NewNormalizer creates a Normalizer over an already loaded glossary.
func NewNormalizer(glossary entities.Glossary) *Normalizer {
	return &Normalizer{entries: glossary}
}

// Normalize case-folds text and substitutes whole-word occurrences of every term,
// one entry at a time in table order. Later entries see the output of earlier ones.
func (n *Normalizer) Normalize(text string) string {
	text = fold(text)
	for _, e := range n.entries {
		text = replaceWholeWord(text, e.Term, e.Normalized)
	}
	return text
}

// replaceWholeWord replaces occurrences of term not embedded in a larger word.
// Boundaries are checked on runes, so Cyrillic behaves like ASCII.
func replaceWholeWord(text, term, repl string) string {
	if term == "" || !strings.Contains(text, term) {
		return text
	}

	var sb strings.Builder
	written, from := 0, 0
	for from <= len(text) {
		i := strings.Index(text[from:], term)
		if i < 0 {
			break
		}
		start := from + i
		end := start + len(term)
		if boundaryBefore(text, start, term) && boundaryAfter(text, end, term) {
			sb.WriteString(text[written:start])
			sb.WriteString(repl)
			written, from = end, end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	if written == 0 {
		return text
	}
	sb.WriteString(text[written:])
	return sb.String()
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// A term edge that is itself punctuation ("c++") needs no boundary on that side.
func boundaryBefore(text string, start int, term string) bool {
	first, _ := utf8.DecodeRuneInString(term)
	if !isWordRune(first) || start == 0 {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(text[:start])
	return !isWordRune(prev)
}

func boundaryAfter(text string, end int, term string) bool {
	last, _ := utf8.DecodeLastRuneInString(term)
	if !isWordRune(last) || end == len(text) {
		return true
	}
	next, _ := utf8.DecodeRuneInString(text[end:])
	return !isWordRune(next)
}
