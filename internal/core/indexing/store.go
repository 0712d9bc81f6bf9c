package indexing

import (
	"context"

	"github.com/google/uuid"

	"github.com/jinford/doc-rag/internal/core/ingestion"
)

// Artifacts はロード済みのインデックスとメタデータの組
// Index の位置 i は Corpus の位置 i に対応する
type Artifacts struct {
	BuildID uuid.UUID
	Index   Searcher
	Corpus  ingestion.Corpus
}

// Store はインデックスとメタデータの永続化を提供するインターフェース
type Store interface {
	// Save はインデックスとメタデータを置き換える
	// 読み手が部分的に書き込まれた状態を観測してはならない
	Save(ctx context.Context, index *FlatIndex, corpus ingestion.Corpus) (uuid.UUID, error)

	// Load は保存済みのインデックスとメタデータを読み込む
	// いずれかが存在しない場合は ErrArtifactNotFound を返す
	Load(ctx context.Context) (*Artifacts, error)
}
