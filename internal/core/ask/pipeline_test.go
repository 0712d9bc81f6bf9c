package ask

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-rag/internal/core/indexing"
	"github.com/jinford/doc-rag/internal/core/ingestion"
	"github.com/jinford/doc-rag/internal/core/search"
)

// keywordEmbedder は語彙中の単語の出現を数える決定的なEmbedder
type keywordEmbedder struct {
	vocab []string
}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, len(e.vocab))
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!")
		for i, term := range e.vocab {
			if w == term {
				v[i]++
			}
		}
	}
	return v, nil
}

func (e *keywordEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (e *keywordEmbedder) ModelName() string { return "keyword" }
func (e *keywordEmbedder) Dimension() int    { return len(e.vocab) }
func (e *keywordEmbedder) MaxBatchSize() int { return 0 }

func TestAnswer_FormulaOneExample(t *testing.T) {
	const text = "Formula 1 introduced hybrid power units in 2014, changing fuel-saving strategy."

	embedder := &keywordEmbedder{vocab: []string{"hybrid", "strategy", "engines", "fuel-saving", "weather"}}
	corpus, err := ingestion.BuildCorpus([]*ingestion.Document{{ID: "doc", Text: text}}, ingestion.SplitOptions{MaxWords: 600, Overlap: 30})
	require.NoError(t, err)

	idx, err := indexing.NewIndexService(embedder, nil).Build(context.Background(), corpus)
	require.NoError(t, err)

	retriever := search.NewSearchService(embedder, &indexing.Artifacts{Index: idx, Corpus: corpus})
	llm := &stubLLM{content: "Hybrid units changed fuel strategy [Source 1]."}

	answer, err := NewAskService(retriever, llm).Answer(context.Background(), "hybrid engines strategy", 1)
	require.NoError(t, err)

	require.Len(t, answer.Sources, 1)
	assert.Equal(t, "doc_p0", answer.Sources[0].PassageID)
	assert.Greater(t, answer.Sources[0].Score, 0.0)

	require.Len(t, llm.calls, 1)
	assert.Contains(t, llm.calls[0].Prompt, "[Source 1]")
	assert.Contains(t, llm.calls[0].Prompt, text)
}

func TestAnswer_EmptyCorpusSkipsLLM(t *testing.T) {
	embedder := &keywordEmbedder{vocab: []string{"a", "b"}}
	idx, err := indexing.NewIndexService(embedder, nil).Build(context.Background(), nil)
	require.NoError(t, err)

	retriever := search.NewSearchService(embedder, &indexing.Artifacts{Index: idx})
	llm := &stubLLM{}

	answer, err := NewAskService(retriever, llm).Answer(context.Background(), "anything", 6)
	require.NoError(t, err)

	assert.Equal(t, NoDocumentsAnswer, answer.Answer)
	assert.Empty(t, answer.Sources)
	assert.Empty(t, llm.calls)
}
