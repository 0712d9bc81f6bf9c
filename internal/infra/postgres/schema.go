package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaSQL はインデックス成果物を保持するテーブル定義
// 埋め込みモデルによって次元が変わるため vector 列には次元を指定しない
const schemaSQL = `
CREATE TABLE IF NOT EXISTS rag_index_builds (
    id            UUID PRIMARY KEY,
    dimension     INTEGER NOT NULL,
    passage_count INTEGER NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rag_passages (
    position   INTEGER PRIMARY KEY,
    build_id   UUID NOT NULL,
    doc_id     TEXT NOT NULL,
    passage_id TEXT NOT NULL,
    text       TEXT NOT NULL,
    embedding  vector NOT NULL
);
`

// EnsureSchema はテーブルが存在しない場合に作成する
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
