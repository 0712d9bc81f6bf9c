package indexing

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// SentinelPosition は検索結果の件数が k に満たない場合の埋め値
const SentinelPosition = -1

// Hit は検索結果の1件（スコアとインデックス上の位置）
type Hit struct {
	Score    float32
	Position int
}

// Searcher は最近傍検索を提供するインターフェース
type Searcher interface {
	// Search はクエリベクトルとの内積が大きい順に k 件を返す
	// 格納数が k に満たない場合は Position が SentinelPosition の Hit で埋める
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)

	// Len は格納されているベクトル数を返す
	Len() int

	// Dimension はベクトルの次元数を返す
	Dimension() int
}

// FlatIndex は全件走査による厳密な内積インデックス
// 追加のみ可能で、位置は追加順に 0 から振られる
type FlatIndex struct {
	dim  int
	data []float32
}

// NewFlatIndex は次元 dim の空のインデックスを作成する
func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{dim: dim}
}

// NewFlatIndexFromData は連続したベクトル列からインデックスを復元する
func NewFlatIndexFromData(dim int, data []float32) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dimension: %d", dim)
	}
	if len(data)%dim != 0 {
		return nil, fmt.Errorf("%w: data length %d is not a multiple of %d", ErrDimensionMismatch, len(data), dim)
	}
	return &FlatIndex{dim: dim, data: data}, nil
}

// Add はベクトル群を末尾に追加する
func (f *FlatIndex) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, index has %d", ErrDimensionMismatch, i, len(v), f.dim)
		}
	}
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	return nil
}

// Len は格納されているベクトル数を返す
func (f *FlatIndex) Len() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

// Dimension はベクトルの次元数を返す
func (f *FlatIndex) Dimension() int {
	return f.dim
}

// Vector は位置 i のベクトルを返す（内部配列を共有する）
func (f *FlatIndex) Vector(i int) []float32 {
	return f.data[i*f.dim : (i+1)*f.dim]
}

// Data は全ベクトルを連続した配列として返す
func (f *FlatIndex) Data() []float32 {
	return f.data
}

// Search はクエリとの内積が大きい順に k 件を返す
// 同スコアの場合は位置の小さい順
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1 (got %d)", k)
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), f.dim)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := f.Len()
	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		hits[i] = Hit{Score: Dot(query, f.Vector(i)), Position: i}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})

	if len(hits) > k {
		hits = hits[:k]
	}

	// 件数不足分は番兵で埋める
	for len(hits) < k {
		hits = append(hits, Hit{Score: float32(math.Inf(-1)), Position: SentinelPosition})
	}

	return hits, nil
}

var _ Searcher = (*FlatIndex)(nil)
