package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jinford/doc-rag/internal/core/indexing"
	"github.com/jinford/doc-rag/internal/core/ingestion"
)

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchService はロード済みのインデックスに対する検索を提供する
type SearchService struct {
	embedder Embedder
	index    indexing.Searcher
	corpus   ingestion.Corpus
	logger   *slog.Logger
}

// SearchServiceOption は SearchService のオプション設定
type SearchServiceOption func(*SearchService)

// WithSearchLogger はロガーを設定する
func WithSearchLogger(logger *slog.Logger) SearchServiceOption {
	return func(s *SearchService) {
		s.logger = logger
	}
}

// NewSearchService は新しいSearchServiceを作成する
// artifacts はインデックス構築時と同じ Embedder で作られている必要がある
func NewSearchService(embedder Embedder, artifacts *indexing.Artifacts, opts ...SearchServiceOption) *SearchService {
	s := &SearchService{
		embedder: embedder,
		index:    artifacts.Index,
		corpus:   artifacts.Corpus,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Retrieve はクエリに近いパッセージをスコアの降順で最大 topK 件返す
func (s *SearchService) Retrieve(ctx context.Context, query string, topK int) ([]*RetrievalResult, error) {
	// バリデーション
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if topK < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidTopK, topK)
	}

	// クエリをEmbeddingに変換して正規化
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	queryVector := append([]float32(nil), embedding...)
	indexing.NormalizeL2(queryVector)

	hits, err := s.index.Search(ctx, queryVector, topK)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	// 番兵や範囲外の位置は捨ててメタデータと結合
	results := make([]*RetrievalResult, 0, len(hits))
	for _, hit := range hits {
		passage, ok := s.corpus.At(hit.Position)
		if !ok {
			continue
		}
		results = append(results, &RetrievalResult{
			Score:     float64(hit.Score),
			DocID:     passage.DocID,
			PassageID: passage.PassageID,
			Text:      passage.Text,
		})
	}

	SortByScore(results)

	s.logger.Debug("retrieved passages",
		"topK", topK,
		"hits", len(hits),
		"results", len(results),
	)

	return results, nil
}

// SortByScore は結果をスコアの降順に並べ替える（同スコアは元の順序を保つ）
func SortByScore(results []*RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
