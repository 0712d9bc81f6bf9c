package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/doc-rag/internal/core/ingestion"
)

const (
	// DefaultBatchSize は1回のEmbedding呼び出しで送るパッセージ数の既定値
	DefaultBatchSize = 500
	// DefaultMaxBatchTokens は1バッチあたりの最大トークン数の既定値
	DefaultMaxBatchTokens = 250000
)

// BuildResult はインデックス構築と保存の結果を表す
type BuildResult struct {
	BuildID  uuid.UUID
	Index    *FlatIndex
	Passages int
	Duration time.Duration
}

// IndexService はコーパスからベクトルインデックスを構築するユースケースを提供する
type IndexService struct {
	embedder       Embedder
	store          Store
	tokenCounter   TokenCounter
	batchSize      int
	maxBatchTokens int
	logger         *slog.Logger
}

type indexServiceOptions struct {
	tokenCounter   TokenCounter
	batchSize      int
	maxBatchTokens int
	logger         *slog.Logger
}

// IndexServiceOption は IndexService のオプション設定
type IndexServiceOption func(*indexServiceOptions)

// WithIndexLogger は IndexService にロガーを設定する
func WithIndexLogger(logger *slog.Logger) IndexServiceOption {
	return func(o *indexServiceOptions) {
		o.logger = logger
	}
}

// WithBatchSize はEmbeddingのバッチサイズを設定する
func WithBatchSize(size int) IndexServiceOption {
	return func(o *indexServiceOptions) {
		o.batchSize = size
	}
}

// WithMaxBatchTokens はバッチあたりの最大トークン数を設定する
// TokenCounter が設定されていない場合は無視される
func WithMaxBatchTokens(tokens int) IndexServiceOption {
	return func(o *indexServiceOptions) {
		o.maxBatchTokens = tokens
	}
}

// WithTokenCounter はバッチ分割に使うトークンカウンタを設定する
func WithTokenCounter(counter TokenCounter) IndexServiceOption {
	return func(o *indexServiceOptions) {
		o.tokenCounter = counter
	}
}

// NewIndexService は新しいIndexServiceを作成する
// store が nil の場合、BuildAndSave は使用できない
func NewIndexService(embedder Embedder, store Store, opts ...IndexServiceOption) *IndexService {
	options := indexServiceOptions{
		batchSize:      DefaultBatchSize,
		maxBatchTokens: DefaultMaxBatchTokens,
	}
	for _, opt := range opts {
		opt(&options)
	}

	logger := options.logger
	if logger == nil {
		logger = slog.Default()
	}

	batchSize := options.batchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if limit := embedder.MaxBatchSize(); limit > 0 && batchSize > limit {
		batchSize = limit
	}

	return &IndexService{
		embedder:       embedder,
		store:          store,
		tokenCounter:   options.tokenCounter,
		batchSize:      batchSize,
		maxBatchTokens: options.maxBatchTokens,
		logger:         logger,
	}
}

// Build はコーパスの全パッセージをEmbeddingし、正規化してインデックスに追加する
// インデックスの位置 i はコーパスの位置 i に対応する
func (s *IndexService) Build(ctx context.Context, corpus ingestion.Corpus) (*FlatIndex, error) {
	index := NewFlatIndex(s.embedder.Dimension())

	// 1. 空のコーパスはEmbeddingを呼ばずに空のインデックスを返す
	if corpus.Len() == 0 {
		s.logger.Warn("corpus is empty, building empty index")
		return index, nil
	}

	// 2. バッチ単位でEmbeddingを生成
	texts := corpus.Texts()
	batches := s.planBatches(texts)
	s.logger.Info("embedding passages", "passages", len(texts), "batches", len(batches))

	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch := texts[b.start:b.end]
		vectors, err := s.embedder.BatchEmbed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d/%d: %w", i+1, len(batches), err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d passages", len(vectors), len(batch))
		}

		// 3. L2正規化
		for _, v := range vectors {
			NormalizeL2(v)
		}

		// 4. インデックスに追加
		if err := index.Add(vectors); err != nil {
			return nil, fmt.Errorf("failed to add batch %d/%d: %w", i+1, len(batches), err)
		}

		s.logger.Debug("embedded batch",
			"batch", i+1,
			"total", len(batches),
			"passages", len(batch),
		)
	}

	if index.Len() != corpus.Len() {
		return nil, fmt.Errorf("%w: index has %d vectors, corpus has %d passages", ErrArtifactMismatch, index.Len(), corpus.Len())
	}

	return index, nil
}

// BuildAndSave はインデックスを構築して永続化する
// Embeddingに失敗した場合は何も保存しない
func (s *IndexService) BuildAndSave(ctx context.Context, corpus ingestion.Corpus) (*BuildResult, error) {
	if s.store == nil {
		return nil, fmt.Errorf("index store is not configured")
	}

	start := time.Now()
	s.logger.Info("building index",
		"model", s.embedder.ModelName(),
		"dimension", s.embedder.Dimension(),
		"passages", corpus.Len(),
	)

	index, err := s.Build(ctx, corpus)
	if err != nil {
		return nil, err
	}

	buildID, err := s.store.Save(ctx, index, corpus)
	if err != nil {
		return nil, fmt.Errorf("failed to save index: %w", err)
	}

	result := &BuildResult{
		BuildID:  buildID,
		Index:    index,
		Passages: corpus.Len(),
		Duration: time.Since(start),
	}

	s.logger.Info("index saved",
		"buildID", buildID,
		"passages", result.Passages,
		"duration", result.Duration,
	)

	return result, nil
}

type batchRange struct {
	start int
	end   int
}

// planBatches はテキスト列を件数とトークン数の上限で連続した範囲に分割する
// 1件で上限を超えるテキストは単独のバッチにする
func (s *IndexService) planBatches(texts []string) []batchRange {
	var batches []batchRange
	start := 0
	tokens := 0

	for i, text := range texts {
		n := 0
		if s.tokenCounter != nil && s.maxBatchTokens > 0 {
			n = s.tokenCounter.CountTokens(text)
		}

		size := i - start
		overTokens := s.tokenCounter != nil && s.maxBatchTokens > 0 && size > 0 && tokens+n > s.maxBatchTokens
		if size == s.batchSize || overTokens {
			batches = append(batches, batchRange{start: start, end: i})
			start = i
			tokens = 0
		}
		tokens += n
	}

	if start < len(texts) {
		batches = append(batches, batchRange{start: start, end: len(texts)})
	}

	return batches
}
