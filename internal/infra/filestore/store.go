package filestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/doc-rag/internal/core/indexing"
	"github.com/jinford/doc-rag/internal/core/ingestion"
)

// Store はインデックスとメタデータをローカルファイルとして保存する
// インデックスファイルのヘッダにメタデータのハッシュと件数を持ち、ロード時に突き合わせる
type Store struct {
	indexPath    string
	metadataPath string
	logger       *slog.Logger
	sleep        func(ctx context.Context, d time.Duration) error
}

const (
	// loadAttempts は不整合を検出したときに読み直す上限回数
	loadAttempts = 3

	// loadRetryDelay は読み直しまでの待ち時間
	loadRetryDelay = 50 * time.Millisecond
)

// Option は Store のオプション設定
type Option func(*Store)

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore は新しい Store を作成する
func NewStore(indexPath, metadataPath string, opts ...Option) *Store {
	s := &Store{
		indexPath:    indexPath,
		metadataPath: metadataPath,
		logger:       slog.Default(),
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Save はメタデータ、インデックスの順に一時ファイル経由で置き換える
// インデックスが最後に置き換わるため、途中で失敗してもロード時に不整合として検出される
func (s *Store) Save(ctx context.Context, index *indexing.FlatIndex, corpus ingestion.Corpus) (uuid.UUID, error) {
	if index.Len() != corpus.Len() {
		return uuid.Nil, fmt.Errorf("%w: index has %d vectors, corpus has %d passages", indexing.ErrArtifactMismatch, index.Len(), corpus.Len())
	}

	// 1. メタデータをシリアライズ
	metadata, err := marshalMetadata(corpus)
	if err != nil {
		return uuid.Nil, err
	}
	sum := sha256.Sum256(metadata)
	buildID := uuid.New()

	// 2. インデックスをシリアライズ
	var buf bytes.Buffer
	if err := encodeIndex(&buf, index, sum, buildID); err != nil {
		return uuid.Nil, err
	}

	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}

	// 3. メタデータ、インデックスの順に置き換え
	if err := writeFileAtomic(s.metadataPath, metadata); err != nil {
		return uuid.Nil, fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := writeFileAtomic(s.indexPath, buf.Bytes()); err != nil {
		return uuid.Nil, fmt.Errorf("failed to write index: %w", err)
	}

	s.logger.Info("index artifacts written",
		"buildID", buildID,
		"index", s.indexPath,
		"metadata", s.metadataPath,
		"passages", corpus.Len(),
		"dimension", index.Dimension(),
	)

	return buildID, nil
}

// Load はインデックスとメタデータを読み込み、位置対応を検証する
// Save の2回のリネームの間に読むと不整合になるため、その場合は少し待って読み直す
func (s *Store) Load(ctx context.Context) (*indexing.Artifacts, error) {
	for attempt := 1; ; attempt++ {
		artifacts, err := s.load(ctx)
		if err == nil || !errors.Is(err, indexing.ErrArtifactMismatch) || attempt == loadAttempts {
			return artifacts, err
		}

		s.logger.Warn("index artifacts not aligned, retrying",
			"attempt", attempt,
			"error", err,
		)
		if sleepErr := s.sleep(ctx, loadRetryDelay); sleepErr != nil {
			return nil, sleepErr
		}
	}
}

func (s *Store) load(ctx context.Context) (*indexing.Artifacts, error) {
	// 1. 存在確認
	for _, path := range []string{s.indexPath, s.metadataPath} {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", indexing.ErrArtifactNotFound, path)
			}
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	// 2. インデックス読み込み
	f, err := os.Open(s.indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat index: %w", err)
	}

	header, index, err := decodeIndex(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", s.indexPath, err)
	}

	// 3. メタデータ読み込み
	metadata, err := os.ReadFile(s.metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var corpus ingestion.Corpus
	if err := json.Unmarshal(metadata, &corpus); err != nil {
		return nil, fmt.Errorf("failed to parse metadata %s: %w", s.metadataPath, err)
	}

	// 4. 位置対応の検証
	if uint64(corpus.Len()) != header.Count {
		return nil, fmt.Errorf("%w: index has %d vectors, metadata has %d passages", indexing.ErrArtifactMismatch, header.Count, corpus.Len())
	}
	if sha256.Sum256(metadata) != header.MetadataSHA256 {
		return nil, fmt.Errorf("%w: metadata checksum does not match index", indexing.ErrArtifactMismatch)
	}

	buildID := uuid.UUID(header.BuildID)
	s.logger.Info("index artifacts loaded",
		"buildID", buildID,
		"passages", corpus.Len(),
		"dimension", index.Dimension(),
	)

	return &indexing.Artifacts{
		BuildID: buildID,
		Index:   index,
		Corpus:  corpus,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// marshalMetadata はコーパスをインデント2のJSON配列に変換する
func marshalMetadata(corpus ingestion.Corpus) ([]byte, error) {
	if corpus == nil {
		corpus = ingestion.Corpus{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(corpus); err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return buf.Bytes(), nil
}

// writeFileAtomic は同じディレクトリの一時ファイルに書き込んでからリネームする
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// インターフェース実装の確認
var _ indexing.Store = (*Store)(nil)
