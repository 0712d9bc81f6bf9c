package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCorpus(t *testing.T) {
	docs := []*Document{
		{ID: "a.md", Text: "one two three four five"},
		{ID: "b.md", Text: "   "},
		{ID: "c.md", Text: "six seven"},
	}

	corpus, err := BuildCorpus(docs, SplitOptions{MaxWords: 3, Overlap: 1})
	require.NoError(t, err)

	want := Corpus{
		{DocID: "a.md", PassageID: "a.md_p0", Text: "one two three"},
		{DocID: "a.md", PassageID: "a.md_p1", Text: "three four five"},
		{DocID: "c.md", PassageID: "c.md_p0", Text: "six seven"},
	}
	assert.Equal(t, want, corpus)
	assert.Equal(t, []string{"one two three", "three four five", "six seven"}, corpus.Texts())
}

func TestBuildCorpus_InvalidOptions(t *testing.T) {
	_, err := BuildCorpus([]*Document{{ID: "a.md", Text: "x"}}, SplitOptions{MaxWords: 2, Overlap: 2})
	assert.ErrorIs(t, err, ErrInvalidSplitConfig)
}

func TestBuildCorpus_Empty(t *testing.T) {
	corpus, err := BuildCorpus(nil, DefaultSplitOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, corpus.Len())
}

func TestCorpus_At(t *testing.T) {
	corpus := Corpus{{DocID: "a.md", PassageID: "a.md_p0", Text: "x"}}

	p, ok := corpus.At(0)
	assert.True(t, ok)
	assert.Equal(t, "a.md_p0", p.PassageID)

	_, ok = corpus.At(-1)
	assert.False(t, ok)
	_, ok = corpus.At(1)
	assert.False(t, ok)
}

func TestPassageID(t *testing.T) {
	assert.Equal(t, "guide.md_p0", PassageID("guide.md", 0))
	assert.Equal(t, "guide.md_p12", PassageID("guide.md", 12))
}
