package morph

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// foldedLinks lists the OpenCorpora link types whose target lemma is reported under
// the source lemma's normal form: personal verb forms, participles and gerunds
// normalize to the infinitive, short and comparative adjectives to the full one.
var foldedLinks = map[string]bool{
	"ADJF-ADJS": true,
	"ADJF-COMP": true,
	"INFN-VERB": true,
	"INFN-PRTF": true,
	"INFN-GRND": true,
	"PRTF-PRTS": true,
}

// Scores written by ConvertOpenCorpora. A form that is itself a headword wins ties
// against forms that merely inflect to another lemma ("мой" the pronoun over "мыть").
const (
	headwordScore   = 2
	inflectionScore = 1
)

// DictionaryStats summarizes one conversion.
type DictionaryStats struct {
	Revision string
	Lemmas   int
	Entries  int // form/lemma lines written
}

type ocLemma struct {
	ID    string   `xml:"id,attr"`
	Head  ocForm   `xml:"l"`
	Forms []ocForm `xml:"f"`
}

type ocForm struct {
	Text string `xml:"t,attr"`
}

type ocLinkType struct {
	ID   string `xml:"id,attr"`
	Name string `xml:",chardata"`
}

type ocLink struct {
	From string `xml:"from,attr"`
	To   string `xml:"to,attr"`
	Type string `xml:"type,attr"`
}

type lemmaForms struct {
	head  string
	forms []string
}

// ConvertOpenCorpora streams an OpenCorpora dict.opcorpora.xml export from r and
// writes the form/lemma/score TSV read by LoadDictionary to w, sorted by form.
// Forms spelled with "ё" are also written with "е".
func ConvertOpenCorpora(ctx context.Context, r io.Reader, w io.Writer) (DictionaryStats, error) {
	var stats DictionaryStats
	lemmas := make(map[string]*lemmaForms)
	linkTypes := make(map[string]string)
	parent := make(map[string]string)

	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("reading dictionary XML: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch se.Name.Local {
		case "dictionary":
			for _, attr := range se.Attr {
				if attr.Name.Local == "revision" {
					stats.Revision = attr.Value
				}
			}
		case "lemma":
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			var l ocLemma
			if err := dec.DecodeElement(&l, &se); err != nil {
				return stats, fmt.Errorf("decoding lemma: %w", err)
			}
			head := strings.ToLower(strings.TrimSpace(l.Head.Text))
			if l.ID == "" || head == "" {
				continue
			}
			entry := &lemmaForms{head: head, forms: make([]string, 0, len(l.Forms))}
			for _, f := range l.Forms {
				if form := strings.ToLower(strings.TrimSpace(f.Text)); form != "" {
					entry.forms = append(entry.forms, form)
				}
			}
			lemmas[l.ID] = entry
		case "type":
			var lt ocLinkType
			if err := dec.DecodeElement(&lt, &se); err != nil {
				return stats, fmt.Errorf("decoding link type: %w", err)
			}
			linkTypes[lt.ID] = strings.TrimSpace(lt.Name)
		case "link":
			var link ocLink
			if err := dec.DecodeElement(&link, &se); err != nil {
				return stats, fmt.Errorf("decoding link: %w", err)
			}
			if foldedLinks[linkTypes[link.Type]] {
				parent[link.To] = link.From
			}
		}
	}
	stats.Lemmas = len(lemmas)

	pairs := make(map[[2]string]int)
	for id, entry := range lemmas {
		normal := normalForm(id, lemmas, parent)
		for _, form := range entry.forms {
			score := inflectionScore
			if form == normal {
				score = headwordScore
			}
			addPair(pairs, form, normal, score)
			if strings.ContainsRune(form, 'ё') {
				addPair(pairs, strings.ReplaceAll(form, "ё", "е"), normal, score)
			}
		}
	}

	keys := make([][2]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	bw := bufio.NewWriter(w)
	if stats.Revision != "" {
		fmt.Fprintf(bw, "# OpenCorpora revision %s\n", stats.Revision)
	}
	for _, k := range keys {
		bw.WriteString(k[0])
		bw.WriteByte('\t')
		bw.WriteString(k[1])
		bw.WriteByte('\t')
		bw.WriteString(strconv.Itoa(pairs[k]))
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return stats, fmt.Errorf("writing dictionary: %w", err)
	}
	stats.Entries = len(keys)
	return stats, nil
}

// normalForm follows folded links up to the root lemma. Chains in the export are
// short; the step limit only guards against a malformed cycle.
func normalForm(id string, lemmas map[string]*lemmaForms, parent map[string]string) string {
	normal := lemmas[id].head
	for steps := 0; steps < 8; steps++ {
		next, ok := parent[id]
		if !ok {
			break
		}
		root, ok := lemmas[next]
		if !ok {
			break
		}
		id, normal = next, root.head
	}
	return normal
}

func addPair(pairs map[[2]string]int, form, lemma string, score int) {
	key := [2]string{form, lemma}
	if score > pairs[key] {
		pairs[key] = score
	}
}
