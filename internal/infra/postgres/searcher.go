package postgres

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/doc-rag/internal/core/indexing"
)

// <#> は負の内積を返すため符号を反転してスコアとする
const searchSQL = `
SELECT position, ((embedding <#> $1) * -1)::real AS score
FROM rag_passages
WHERE build_id = $2
ORDER BY embedding <#> $1, position
LIMIT $3
`

// Searcher は pgvector の内積演算子で全件検索する indexing.Searcher 実装
type Searcher struct {
	pool      *pgxpool.Pool
	buildID   uuid.UUID
	dimension int
	count     int
}

func newSearcher(pool *pgxpool.Pool, buildID uuid.UUID, dimension, count int) *Searcher {
	return &Searcher{
		pool:      pool,
		buildID:   buildID,
		dimension: dimension,
		count:     count,
	}
}

// Search はクエリとの内積が大きい順に k 件を返す
func (s *Searcher) Search(ctx context.Context, query []float32, k int) ([]indexing.Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1 (got %d)", k)
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", indexing.ErrDimensionMismatch, len(query), s.dimension)
	}

	hits := make([]indexing.Hit, 0, k)
	if s.count > 0 {
		rows, err := s.pool.Query(ctx, searchSQL, pgvector.NewVector(query), s.buildID, k)
		if err != nil {
			return nil, fmt.Errorf("failed to search passages: %w", err)
		}
		found, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (indexing.Hit, error) {
			var h indexing.Hit
			err := row.Scan(&h.Position, &h.Score)
			return h, err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		hits = append(hits, found...)

		// 期待件数に届かない場合はビルドが置き換えられていないか確認する
		if len(hits) < min(k, s.count) {
			if err := s.ensureBuildExists(ctx); err != nil {
				return nil, err
			}
		}
	}

	// 件数不足分は番兵で埋める
	for len(hits) < k {
		hits = append(hits, indexing.Hit{Score: float32(math.Inf(-1)), Position: indexing.SentinelPosition})
	}

	return hits, nil
}

func (s *Searcher) ensureBuildExists(ctx context.Context) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM rag_index_builds WHERE id = $1)",
		s.buildID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check index build: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: build %s was replaced, reload the index", indexing.ErrArtifactNotFound, s.buildID)
	}
	return nil
}

// Len は格納されているベクトル数を返す
func (s *Searcher) Len() int {
	return s.count
}

// Dimension はベクトルの次元数を返す
func (s *Searcher) Dimension() int {
	return s.dimension
}

var _ indexing.Searcher = (*Searcher)(nil)
