package morph

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleOpenCorpora mirrors the layout of dict.opcorpora.xml: lemmata first, then
// link types and links.
const sampleOpenCorpora = `<?xml version="1.0" encoding="utf-8" standalone="yes"?>
<dictionary version="0.92" revision="417150">
<grammemes><grammeme parent=""><name>POST</name></grammeme></grammemes>
<lemmata>
<lemma id="1" rev="1"><l t="упасть"><g v="INFN"/></l><f t="упасть"/></lemma>
<lemma id="2" rev="2"><l t="упал"><g v="VERB"/></l><f t="упал"/><f t="упала"/><f t="упало"/><f t="упали"/></lemma>
<lemma id="3" rev="3"><l t="база"><g v="NOUN"/></l><f t="база"/><f t="базы"/><f t="базе"/><f t="базу"/></lemma>
<lemma id="4" rev="4"><l t="ёж"><g v="NOUN"/></l><f t="ёж"/><f t="ежа"/></lemma>
<lemma id="5" rev="5"><l t="мой"><g v="ADJF"/></l><f t="мой"/><f t="моя"/></lemma>
<lemma id="6" rev="6"><l t="мыть"><g v="INFN"/></l><f t="мыть"/></lemma>
<lemma id="7" rev="7"><l t="мою"><g v="VERB"/></l><f t="мою"/><f t="мой"/></lemma>
<lemma id="8" rev="8"><l t="базовая"><g v="ADJF"/></l><f t="базовая"/></lemma>
</lemmata>
<link_types>
<type id="3">INFN-VERB</type>
<type id="21">SBST_MASC-SBST_FEMN</type>
</link_types>
<links>
<link id="1" from="1" to="2" type="3"/>
<link id="2" from="6" to="7" type="3"/>
<link id="3" from="3" to="8" type="21"/>
</links>
</dictionary>`

func convertSample(t *testing.T) (string, DictionaryStats) {
	t.Helper()
	var out bytes.Buffer
	stats, err := ConvertOpenCorpora(context.Background(), strings.NewReader(sampleOpenCorpora), &out)
	require.NoError(t, err)
	return out.String(), stats
}

func TestConvertOpenCorpora_Lines(t *testing.T) {
	tsv, stats := convertSample(t)

	assert.Equal(t, "417150", stats.Revision)
	assert.Equal(t, 8, stats.Lemmas)
	assert.True(t, strings.HasPrefix(tsv, "# OpenCorpora revision 417150\n"))

	assert.Contains(t, tsv, "упала\tупасть\t1\n", "verb forms fold into the infinitive")
	assert.Contains(t, tsv, "упасть\tупасть\t2\n")
	assert.Contains(t, tsv, "базу\tбаза\t1\n")
	assert.Contains(t, tsv, "базовая\tбазовая\t2\n", "unlisted link types are not folded")
	assert.Contains(t, tsv, "еж\tёж\t2\n", "ё forms are also written with е")
	assert.NotContains(t, tsv, "\tупал\t")
}

func TestConvertOpenCorpora_SortedAndDeduplicated(t *testing.T) {
	tsv, stats := convertSample(t)

	var forms []string
	for _, line := range strings.Split(strings.TrimSpace(tsv), "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		forms = append(forms, line)
	}
	assert.Len(t, forms, stats.Entries)
	assert.IsIncreasing(t, forms)
}

func TestConvertOpenCorpora_LoadsAndLemmatizes(t *testing.T) {
	tsv, _ := convertSample(t)
	path := filepath.Join(t.TempDir(), "ru.tsv")
	require.NoError(t, os.WriteFile(path, []byte(tsv), 0o644))

	dict, err := LoadDictionary(path)
	require.NoError(t, err)

	parses := dict.Parse("мой")
	require.Len(t, parses, 2)
	assert.Equal(t, "мой", parses[0].NormalForm, "headword outranks an inflection of another lemma")
	assert.Equal(t, "мыть", parses[1].NormalForm)

	l := NewLemmatizer(Chain{dict, NewSnowballAnalyzer("english")})
	assert.Equal(t, []string{"упасть", "база", "ёж"}, l.TokenizeAndLemmatize("Упала БАЗА, еж"))
}

func TestSnowballAnalyzer_DoesNotRecoverLemmas(t *testing.T) {
	l := NewLemmatizer(Chain{NewSnowballAnalyzer("english")})

	got := l.TokenizeAndLemmatize("Упала база")

	assert.NotEqual(t, []string{"упасть", "база"}, got)
}

func TestConvertOpenCorpora_MalformedXML(t *testing.T) {
	var out bytes.Buffer
	_, err := ConvertOpenCorpora(context.Background(), strings.NewReader(`<dictionary><lemmata><lemma id="1"><l t="x">`), &out)
	assert.Error(t, err)
}

func TestConvertOpenCorpora_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	_, err := ConvertOpenCorpora(ctx, strings.NewReader(sampleOpenCorpora), &out)
	assert.ErrorIs(t, err, context.Canceled)
}
