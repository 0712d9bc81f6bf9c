package filestore

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-rag/internal/core/indexing"
	"github.com/jinford/doc-rag/internal/core/ingestion"
)

func testArtifacts(t *testing.T) (*indexing.FlatIndex, ingestion.Corpus) {
	t.Helper()

	idx := indexing.NewFlatIndex(3)
	require.NoError(t, idx.Add([][]float32{
		{1, 0, 0},
		{0, 0.6, 0.8},
	}))

	corpus := ingestion.Corpus{
		{DocID: "a.md", PassageID: "a.md_p0", Text: "alpha <b> & café"},
		{DocID: "b.md", PassageID: "b.md_p0", Text: "beta"},
	}
	return idx, corpus
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(filepath.Join(dir, "outputs", "index.bin"), filepath.Join(dir, "outputs", "metadata.json"))
}

func TestStore_SaveAndLoad(t *testing.T) {
	store := newTestStore(t)
	idx, corpus := testArtifacts(t)

	buildID, err := store.Save(context.Background(), idx, corpus)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, buildID)

	artifacts, err := store.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, buildID, artifacts.BuildID)
	assert.Equal(t, corpus, artifacts.Corpus)
	assert.Equal(t, 2, artifacts.Index.Len())
	assert.Equal(t, 3, artifacts.Index.Dimension())

	hits, err := artifacts.Index.Search(context.Background(), []float32{0, 0.6, 0.8}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, hits[0].Position)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestStore_MetadataFormat(t *testing.T) {
	store := newTestStore(t)
	idx, corpus := testArtifacts(t)

	_, err := store.Save(context.Background(), idx, corpus)
	require.NoError(t, err)

	data, err := os.ReadFile(store.metadataPath)
	require.NoError(t, err)

	assert.Contains(t, string(data), "[\n  {\n    \"doc_id\": \"a.md\",\n    \"passage_id\": \"a.md_p0\",\n    \"text\": \"alpha <b> & café\"\n  },")
}

func TestStore_SaveEmptyCorpus(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save(context.Background(), indexing.NewFlatIndex(4), nil)
	require.NoError(t, err)

	artifacts, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, artifacts.Corpus.Len())
	assert.Equal(t, 0, artifacts.Index.Len())
	assert.Equal(t, 4, artifacts.Index.Dimension())
}

func TestStore_Overwrite(t *testing.T) {
	store := newTestStore(t)
	idx, corpus := testArtifacts(t)

	_, err := store.Save(context.Background(), idx, corpus)
	require.NoError(t, err)

	smaller := indexing.NewFlatIndex(3)
	require.NoError(t, smaller.Add([][]float32{{0, 1, 0}}))
	second, err := store.Save(context.Background(), smaller, corpus[:1])
	require.NoError(t, err)

	artifacts, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second, artifacts.BuildID)
	assert.Equal(t, 1, artifacts.Index.Len())

	// 一時ファイルが残っていない
	entries, err := os.ReadDir(filepath.Dir(store.indexPath))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStore_LoadMissing(t *testing.T) {
	t.Run("両方なし", func(t *testing.T) {
		_, err := newTestStore(t).Load(context.Background())
		assert.ErrorIs(t, err, indexing.ErrArtifactNotFound)
	})

	t.Run("メタデータなし", func(t *testing.T) {
		store := newTestStore(t)
		idx, corpus := testArtifacts(t)
		_, err := store.Save(context.Background(), idx, corpus)
		require.NoError(t, err)
		require.NoError(t, os.Remove(store.metadataPath))

		_, err = store.Load(context.Background())
		assert.ErrorIs(t, err, indexing.ErrArtifactNotFound)
	})
}

func TestStore_DetectsMisalignment(t *testing.T) {
	t.Run("件数の不一致", func(t *testing.T) {
		store := newTestStore(t)
		idx, corpus := testArtifacts(t)
		_, err := store.Save(context.Background(), idx, corpus)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(store.metadataPath, []byte(`[{"doc_id":"a.md","passage_id":"a.md_p0","text":"alpha"}]`), 0o644))

		_, err = store.Load(context.Background())
		assert.ErrorIs(t, err, indexing.ErrArtifactMismatch)
	})

	t.Run("内容の不一致", func(t *testing.T) {
		store := newTestStore(t)
		idx, corpus := testArtifacts(t)
		_, err := store.Save(context.Background(), idx, corpus)
		require.NoError(t, err)

		// 件数は同じだが別のビルドのメタデータ
		other := ingestion.Corpus{corpus[1], corpus[0]}
		data, err := marshalMetadata(other)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(store.metadataPath, data, 0o644))

		_, err = store.Load(context.Background())
		assert.ErrorIs(t, err, indexing.ErrArtifactMismatch)
	})

	t.Run("保存時の件数不一致", func(t *testing.T) {
		store := newTestStore(t)
		idx, corpus := testArtifacts(t)

		_, err := store.Save(context.Background(), idx, corpus[:1])
		assert.ErrorIs(t, err, indexing.ErrArtifactMismatch)
	})
}

func TestStore_LoadRetriesBetweenRenames(t *testing.T) {
	store := newTestStore(t)
	idx, corpus := testArtifacts(t)
	buildID, err := store.Save(context.Background(), idx, corpus)
	require.NoError(t, err)

	// 次のビルドのメタデータだけが置き換わった状態
	committed, err := os.ReadFile(store.metadataPath)
	require.NoError(t, err)
	next, err := marshalMetadata(ingestion.Corpus{corpus[1], corpus[0]})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.metadataPath, next, 0o644))

	// 待機中に対になるファイルがそろう
	waits := 0
	store.sleep = func(ctx context.Context, d time.Duration) error {
		waits++
		return os.WriteFile(store.metadataPath, committed, 0o644)
	}

	artifacts, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, waits)
	assert.Equal(t, buildID, artifacts.BuildID)
	assert.Equal(t, corpus, artifacts.Corpus)
}

func TestStore_LoadGivesUpAfterRetries(t *testing.T) {
	store := newTestStore(t)
	idx, corpus := testArtifacts(t)
	_, err := store.Save(context.Background(), idx, corpus)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.metadataPath, []byte("[]"), 0o644))

	waits := 0
	store.sleep = func(ctx context.Context, d time.Duration) error {
		waits++
		return nil
	}

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, indexing.ErrArtifactMismatch)
	assert.Equal(t, loadAttempts-1, waits)
}

func TestStore_InvalidIndexFile(t *testing.T) {
	store := newTestStore(t)
	idx, corpus := testArtifacts(t)
	_, err := store.Save(context.Background(), idx, corpus)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(store.indexPath, []byte("not an index"), 0o644))

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestStore_CorruptedIndexHeader(t *testing.T) {
	tests := []struct {
		name      string
		dimension uint32
		count     uint64
		vectors   []float32
	}{
		{name: "巨大な件数", dimension: 1, count: 1 << 62},
		{name: "乗算がオーバーフローする件数", dimension: 4, count: 1 << 62, vectors: []float32{1, 2, 3, 4}},
		{name: "ペイロード不足", dimension: 3, count: 2, vectors: []float32{1, 0, 0}},
		{name: "ペイロード過剰", dimension: 3, count: 1, vectors: []float32{1, 0, 0, 0, 1, 0}},
		{name: "次元の端数", dimension: 3, count: 1, vectors: []float32{1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			idx, corpus := testArtifacts(t)
			_, err := store.Save(context.Background(), idx, corpus)
			require.NoError(t, err)

			var buf bytes.Buffer
			header := indexHeader{Magic: magic, Version: formatVersion, Dimension: tt.dimension, Count: tt.count}
			require.NoError(t, binary.Write(&buf, binary.LittleEndian, &header))
			if len(tt.vectors) > 0 {
				require.NoError(t, binary.Write(&buf, binary.LittleEndian, tt.vectors))
			}
			require.NoError(t, os.WriteFile(store.indexPath, buf.Bytes(), 0o644))

			require.NotPanics(t, func() {
				_, err = store.Load(context.Background())
			})
			assert.ErrorIs(t, err, ErrInvalidFormat)
		})
	}
}
