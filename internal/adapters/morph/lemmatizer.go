package morph

// Lemmatizer maps every token to the top-ranked normal form of its analyzer.
// Analyzers are read-only after construction, so a Lemmatizer is safe for concurrent use.
type Lemmatizer struct {
	analyzer Analyzer
}

// NewLemmatizer creates a Lemmatizer.
func NewLemmatizer(analyzer Analyzer) *Lemmatizer {
	return &Lemmatizer{analyzer: analyzer}
}

// TokenizeAndLemmatize returns lemmas in token order. Unknown words are kept as-is.
func (l *Lemmatizer) TokenizeAndLemmatize(text string) []string {
	tokens := Tokenize(text)
	lemmas := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		lemma := tok
		if parses := l.analyzer.Parse(tok); len(parses) > 0 && parses[0].NormalForm != "" {
			lemma = parses[0].NormalForm
		}
		lemmas = append(lemmas, lemma)
	}
	return lemmas
}
