// Package morph tokenizes text and reduces tokens to dictionary forms.
// Clean Architecture: Adapter implementing ports.Lemmatizer.
package morph

import (
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Digits and punctuation separate tokens; numeric identifiers are not search-relevant.
var tokenPattern = regexp.MustCompile(`[a-zа-яё]+`)

// Tokenize case-folds text and returns its maximal runs of Latin or Cyrillic letters.
// Text is composed to NFC first so that "й" and "ё" typed as base letter plus
// combining mark still fall inside the letter class.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(cases.Fold().String(norm.NFC.String(text)), -1)
}

func isCyrillic(word string) bool {
	for _, r := range word {
		if r >= 'а' && r <= 'я' || r == 'ё' {
			return true
		}
	}
	return false
}
