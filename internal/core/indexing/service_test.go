package indexing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-rag/internal/core/ingestion"
)

// stubEmbedder はテキスト内の単語数から決定的なベクトルを生成するテスト用Embedder
type stubEmbedder struct {
	dim      int
	maxBatch int
	calls    [][]string
	err      error
	short    bool
}

func (e *stubEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dim)
	for i, w := range strings.Fields(text) {
		v[(len(w)+i)%e.dim] += float32(len(w))
	}
	return v
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e *stubEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls = append(e.calls, append([]string(nil), texts...))
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	if e.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (e *stubEmbedder) ModelName() string { return "stub" }
func (e *stubEmbedder) Dimension() int    { return e.dim }
func (e *stubEmbedder) MaxBatchSize() int { return e.maxBatch }

// stubStore は保存内容を保持するテスト用Store
type stubStore struct {
	index  *FlatIndex
	corpus ingestion.Corpus
	saves  int
}

func (s *stubStore) Save(ctx context.Context, index *FlatIndex, corpus ingestion.Corpus) (uuid.UUID, error) {
	s.index = index
	s.corpus = corpus
	s.saves++
	return uuid.New(), nil
}

func (s *stubStore) Load(ctx context.Context) (*Artifacts, error) {
	if s.index == nil {
		return nil, ErrArtifactNotFound
	}
	return &Artifacts{Index: s.index, Corpus: s.corpus}, nil
}

// wordCounter は単語数をトークン数として数える
type wordCounter struct{}

func (wordCounter) CountTokens(text string) int { return len(strings.Fields(text)) }

func testCorpus(n int) ingestion.Corpus {
	corpus := make(ingestion.Corpus, n)
	for i := range corpus {
		corpus[i] = ingestion.Passage{
			DocID:     "doc.md",
			PassageID: ingestion.PassageID("doc.md", i),
			Text:      strings.Repeat("word ", i+1) + "end",
		}
	}
	return corpus
}

func TestIndexService_Build(t *testing.T) {
	embedder := &stubEmbedder{dim: 4}
	svc := NewIndexService(embedder, nil)

	corpus := testCorpus(7)
	idx, err := svc.Build(context.Background(), corpus)
	require.NoError(t, err)

	assert.Equal(t, corpus.Len(), idx.Len())
	assert.Equal(t, 4, idx.Dimension())
	for i := 0; i < idx.Len(); i++ {
		assert.InDelta(t, 1.0, Norm(idx.Vector(i)), 1e-5, "vector %d", i)
	}
}

func TestIndexService_BuildEmptyCorpus(t *testing.T) {
	embedder := &stubEmbedder{dim: 8}
	svc := NewIndexService(embedder, nil)

	idx, err := svc.Build(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
	assert.Equal(t, 8, idx.Dimension())
	assert.Empty(t, embedder.calls)
}

func TestIndexService_Batching(t *testing.T) {
	tests := []struct {
		name      string
		opts      []IndexServiceOption
		maxBatch  int
		passages  int
		wantSizes []int
	}{
		{
			name:      "件数で分割",
			opts:      []IndexServiceOption{WithBatchSize(3)},
			passages:  7,
			wantSizes: []int{3, 3, 1},
		},
		{
			name:      "Embedderの上限で制限",
			opts:      []IndexServiceOption{WithBatchSize(500)},
			maxBatch:  4,
			passages:  9,
			wantSizes: []int{4, 4, 1},
		},
		{
			name: "トークン数で分割",
			opts: []IndexServiceOption{
				WithBatchSize(100),
				WithTokenCounter(wordCounter{}),
				WithMaxBatchTokens(7),
			},
			// トークン数は 2,3,4,5,6
			passages:  5,
			wantSizes: []int{2, 1, 1, 1},
		},
		{
			name: "上限を超える単一テキスト",
			opts: []IndexServiceOption{
				WithTokenCounter(wordCounter{}),
				WithMaxBatchTokens(1),
			},
			passages:  2,
			wantSizes: []int{1, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := &stubEmbedder{dim: 4, maxBatch: tt.maxBatch}
			svc := NewIndexService(embedder, nil, tt.opts...)

			corpus := testCorpus(tt.passages)
			idx, err := svc.Build(context.Background(), corpus)
			require.NoError(t, err)
			require.Equal(t, tt.passages, idx.Len())

			var sizes []int
			var sent []string
			for _, call := range embedder.calls {
				sizes = append(sizes, len(call))
				sent = append(sent, call...)
			}
			assert.Equal(t, tt.wantSizes, sizes)
			// バッチ分割は内容と順序を変えない
			assert.Equal(t, corpus.Texts(), sent)
		})
	}
}

func TestIndexService_BatchingDoesNotChangeVectors(t *testing.T) {
	corpus := testCorpus(10)

	single, err := NewIndexService(&stubEmbedder{dim: 4}, nil).Build(context.Background(), corpus)
	require.NoError(t, err)
	batched, err := NewIndexService(&stubEmbedder{dim: 4}, nil, WithBatchSize(3)).Build(context.Background(), corpus)
	require.NoError(t, err)

	assert.Equal(t, single.Data(), batched.Data())
}

func TestIndexService_BuildAndSave(t *testing.T) {
	store := &stubStore{}
	svc := NewIndexService(&stubEmbedder{dim: 4}, store)

	corpus := testCorpus(3)
	result, err := svc.BuildAndSave(context.Background(), corpus)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, result.BuildID)
	assert.Equal(t, 3, result.Passages)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, corpus, store.corpus)
	assert.Equal(t, 3, store.index.Len())
}

func TestIndexService_RebuildIsIdempotent(t *testing.T) {
	store := &stubStore{}
	svc := NewIndexService(&stubEmbedder{dim: 4}, store)
	corpus := testCorpus(5)

	_, err := svc.BuildAndSave(context.Background(), corpus)
	require.NoError(t, err)
	first := append([]float32(nil), store.index.Data()...)

	_, err = svc.BuildAndSave(context.Background(), corpus)
	require.NoError(t, err)

	assert.Equal(t, first, store.index.Data())
	assert.Equal(t, corpus, store.corpus)
}

func TestIndexService_EmbeddingFailureSavesNothing(t *testing.T) {
	upstream := errors.New("upstream unavailable")
	store := &stubStore{}
	svc := NewIndexService(&stubEmbedder{dim: 4, err: upstream}, store)

	_, err := svc.BuildAndSave(context.Background(), testCorpus(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream)
	assert.Equal(t, 0, store.saves)
}

func TestIndexService_VectorCountMismatch(t *testing.T) {
	svc := NewIndexService(&stubEmbedder{dim: 4, short: true}, nil)

	_, err := svc.Build(context.Background(), testCorpus(3))
	assert.Error(t, err)
}

func TestIndexService_BuildAndSaveWithoutStore(t *testing.T) {
	svc := NewIndexService(&stubEmbedder{dim: 4}, nil)

	_, err := svc.BuildAndSave(context.Background(), testCorpus(1))
	assert.Error(t, err)
}
