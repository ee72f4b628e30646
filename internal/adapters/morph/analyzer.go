package morph

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/kljensen/snowball"
)

// Parse is one candidate analysis of a word form.
type Parse struct {
	NormalForm string
	Score      float64
}

// Analyzer returns candidate parses for a case-folded word, best first.
// An empty result means the analyzer does not know the word.
type Analyzer interface {
	Parse(word string) []Parse
}

// DictionaryAnalyzer looks word forms up in a form → lemma table.
type DictionaryAnalyzer struct {
	forms map[string][]Parse
}

// NewDictionaryAnalyzer builds an analyzer from in-memory parses. Parses of each
// form are ranked by descending score; equal scores keep insertion order.
func NewDictionaryAnalyzer(forms map[string][]Parse) *DictionaryAnalyzer {
	ranked := make(map[string][]Parse, len(forms))
	for form, parses := range forms {
		sorted := append([]Parse(nil), parses...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
		ranked[form] = sorted
	}
	return &DictionaryAnalyzer{forms: ranked}
}

// LoadDictionary reads a tab-separated file of "form<TAB>lemma[<TAB>score]" lines.
// Blank lines and lines starting with '#' are ignored; a missing score counts as 1.
func LoadDictionary(path string) (*DictionaryAnalyzer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dictionary: %w", err)
	}
	defer f.Close()

	forms := make(map[string][]Parse)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		cols := strings.Split(text, "\t")
		if len(cols) < 2 {
			return nil, fmt.Errorf("dictionary line %d: expected form and lemma", line)
		}
		score := 1.0
		if len(cols) > 2 {
			if score, err = strconv.ParseFloat(strings.TrimSpace(cols[2]), 64); err != nil {
				return nil, fmt.Errorf("dictionary line %d: bad score: %w", line, err)
			}
		}
		form := strings.ToLower(strings.TrimSpace(cols[0]))
		forms[form] = append(forms[form], Parse{NormalForm: strings.ToLower(strings.TrimSpace(cols[1])), Score: score})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	return NewDictionaryAnalyzer(forms), nil
}

// Parse implements Analyzer.
func (d *DictionaryAnalyzer) Parse(word string) []Parse {
	return d.forms[word]
}

// Len returns the number of known word forms.
func (d *DictionaryAnalyzer) Len() int {
	return len(d.forms)
}

// SnowballAnalyzer approximates a normal form with a Snowball stemmer: Russian for
// Cyrillic words, the configured language for everything else.
type SnowballAnalyzer struct {
	latin string
}

// NewSnowballAnalyzer creates a stemmer-backed analyzer. latin defaults to "english".
func NewSnowballAnalyzer(latin string) *SnowballAnalyzer {
	if latin == "" {
		latin = "english"
	}
	return &SnowballAnalyzer{latin: latin}
}

// Parse implements Analyzer.
func (s *SnowballAnalyzer) Parse(word string) []Parse {
	lang := s.latin
	if isCyrillic(word) {
		lang = "russian"
	}
	stem, err := snowball.Stem(word, lang, true)
	if err != nil || stem == "" {
		return nil
	}
	return []Parse{{NormalForm: stem}}
}

// Chain consults analyzers in order and returns the first non-empty result.
type Chain []Analyzer

// Parse implements Analyzer.
func (c Chain) Parse(word string) []Parse {
	for _, a := range c {
		if parses := a.Parse(word); len(parses) > 0 {
			return parses
		}
	}
	return nil
}
