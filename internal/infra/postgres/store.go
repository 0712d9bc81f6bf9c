package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/doc-rag/internal/core/indexing"
	"github.com/jinford/doc-rag/internal/core/ingestion"
	"github.com/jinford/doc-rag/internal/platform/database"
)

// undefinedTable は PostgreSQL の undefined_table エラーコード
const undefinedTable = "42P01"

// saveLockKey は同時に走るインデックス保存を直列化するロックのキー
var saveLockKey = []string{"doc-rag", "index-artifacts"}

// Store はインデックスとメタデータを pgvector テーブルに保存する
// 保存は単一トランザクションで全件を置き換えるため、読み手は旧ビルドか新ビルドのどちらかのみを観測する
type Store struct {
	pool   *pgxpool.Pool
	txp    *database.TransactionProvider
	logger *slog.Logger
}

// Option は Store のオプション設定
type Option func(*Store)

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore は新しい Store を作成する
func NewStore(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:   pool,
		txp:    database.NewTransactionProvider(pool),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Save は既存のビルドを削除し、新しいビルドを書き込む
func (s *Store) Save(ctx context.Context, index *indexing.FlatIndex, corpus ingestion.Corpus) (uuid.UUID, error) {
	if index.Len() != corpus.Len() {
		return uuid.Nil, fmt.Errorf("%w: index has %d vectors, corpus has %d passages", indexing.ErrArtifactMismatch, index.Len(), corpus.Len())
	}

	if err := EnsureSchema(ctx, s.pool); err != nil {
		return uuid.Nil, err
	}

	buildID := uuid.New()

	_, err := database.Transact(ctx, s.txp, func(adapter *database.Adapter) (struct{}, error) {
		// 1. ロック取得
		if err := adapter.Locks.Acquire(ctx, database.GenerateLockID(saveLockKey...)); err != nil {
			return struct{}{}, err
		}

		// 2. 旧ビルドの削除
		if _, err := adapter.Tx.Exec(ctx, "DELETE FROM rag_passages"); err != nil {
			return struct{}{}, fmt.Errorf("failed to delete passages: %w", err)
		}
		if _, err := adapter.Tx.Exec(ctx, "DELETE FROM rag_index_builds"); err != nil {
			return struct{}{}, fmt.Errorf("failed to delete builds: %w", err)
		}

		// 3. パッセージの一括書き込み
		rows := make([][]any, corpus.Len())
		for i, p := range corpus {
			rows[i] = []any{i, buildID, p.DocID, p.PassageID, p.Text, pgvector.NewVector(index.Vector(i))}
		}
		copied, err := adapter.Tx.CopyFrom(ctx,
			pgx.Identifier{"rag_passages"},
			[]string{"position", "build_id", "doc_id", "passage_id", "text", "embedding"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to copy passages: %w", err)
		}
		if int(copied) != corpus.Len() {
			return struct{}{}, fmt.Errorf("%w: copied %d of %d passages", indexing.ErrArtifactMismatch, copied, corpus.Len())
		}

		// 4. ビルド情報の書き込み
		if _, err := adapter.Tx.Exec(ctx,
			"INSERT INTO rag_index_builds (id, dimension, passage_count) VALUES ($1, $2, $3)",
			buildID, index.Dimension(), corpus.Len(),
		); err != nil {
			return struct{}{}, fmt.Errorf("failed to insert build: %w", err)
		}

		return struct{}{}, nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.logger.Info("index artifacts written",
		"buildID", buildID,
		"passages", corpus.Len(),
		"dimension", index.Dimension(),
	)

	return buildID, nil
}

// Load は最新のビルドを読み込み、位置対応を検証する
// 読み取りは単一のスナップショット内で行うため、並行する Save の途中状態は観測しない
func (s *Store) Load(ctx context.Context) (*indexing.Artifacts, error) {
	artifacts, err := database.Snapshot(ctx, s.txp, func(adapter *database.Adapter) (*indexing.Artifacts, error) {
		return s.loadBuild(ctx, adapter.Tx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("index artifacts loaded",
		"buildID", artifacts.BuildID,
		"passages", artifacts.Corpus.Len(),
		"dimension", artifacts.Index.Dimension(),
	)

	return artifacts, nil
}

func (s *Store) loadBuild(ctx context.Context, tx pgx.Tx) (*indexing.Artifacts, error) {
	// 1. ビルド情報
	var (
		buildID   uuid.UUID
		dimension int
		count     int
	)
	err := tx.QueryRow(ctx,
		"SELECT id, dimension, passage_count FROM rag_index_builds ORDER BY created_at DESC LIMIT 1",
	).Scan(&buildID, &dimension, &count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
			return nil, fmt.Errorf("%w: no index build in database", indexing.ErrArtifactNotFound)
		}
		return nil, fmt.Errorf("failed to get index build: %w", err)
	}

	// 2. 位置の連続性を検証
	var (
		stored int
		minPos *int
		maxPos *int
	)
	err = tx.QueryRow(ctx,
		"SELECT count(*), min(position), max(position) FROM rag_passages WHERE build_id = $1",
		buildID,
	).Scan(&stored, &minPos, &maxPos)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect passages: %w", err)
	}
	if stored != count {
		return nil, fmt.Errorf("%w: build has %d passages, table has %d", indexing.ErrArtifactMismatch, count, stored)
	}
	if count > 0 && (minPos == nil || maxPos == nil || *minPos != 0 || *maxPos != count-1) {
		return nil, fmt.Errorf("%w: passage positions are not contiguous", indexing.ErrArtifactMismatch)
	}

	// 3. コーパス読み込み
	rows, err := tx.Query(ctx,
		"SELECT doc_id, passage_id, text FROM rag_passages WHERE build_id = $1 ORDER BY position",
		buildID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load passages: %w", err)
	}
	corpus, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ingestion.Passage, error) {
		var p ingestion.Passage
		err := row.Scan(&p.DocID, &p.PassageID, &p.Text)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan passages: %w", err)
	}

	return &indexing.Artifacts{
		BuildID: buildID,
		Index:   newSearcher(s.pool, buildID, dimension, count),
		Corpus:  ingestion.Corpus(corpus),
	}, nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}

// インターフェース実装の確認
var _ indexing.Store = (*Store)(nil)
