package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jinford/doc-rag/internal/core/indexing"
)

const (
	// DefaultPrefix はキャッシュキーの接頭辞
	DefaultPrefix = "docrag:emb:"
	// DefaultTTL はキャッシュの既定保持期間
	DefaultTTL = 7 * 24 * time.Hour
)

// Embedder は Redis に Embedding をキャッシュする indexing.Embedder のラッパー
// キーはモデル名・次元数・テキストのハッシュから作る
// キャッシュの読み書きに失敗しても Embedding 自体は失敗させない
type Embedder struct {
	inner  indexing.Embedder
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// Option は Embedder のオプション設定
type Option func(*Embedder)

// WithPrefix はキー接頭辞を設定する
func WithPrefix(prefix string) Option {
	return func(e *Embedder) {
		e.prefix = prefix
	}
}

// WithTTL はキャッシュの保持期間を設定する
func WithTTL(ttl time.Duration) Option {
	return func(e *Embedder) {
		e.ttl = ttl
	}
}

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(e *Embedder) {
		e.logger = logger
	}
}

// NewEmbedder は inner をラップした Embedder を作成する
func NewEmbedder(inner indexing.Embedder, rdb redis.Cmdable, opts ...Option) *Embedder {
	e := &Embedder{
		inner:  inner,
		rdb:    rdb,
		prefix: DefaultPrefix,
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ttl <= 0 {
		e.ttl = DefaultTTL
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Embed は単一テキストの Embedding をキャッシュ経由で返す
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// BatchEmbed はキャッシュに無いテキストのみ inner に問い合わせる
// 戻り値は入力と同じ順序
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = e.key(t)
	}

	// 1. キャッシュ参照
	result := make([][]float32, len(texts))
	values, err := e.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		e.logger.Warn("embedding cache lookup failed", "error", err)
		values = nil
	}

	var missing []int
	for i := range texts {
		if i < len(values) {
			if v, ok := e.decode(values[i]); ok {
				result[i] = v
				continue
			}
		}
		missing = append(missing, i)
	}

	e.logger.Debug("embedding cache lookup",
		"requested", len(texts),
		"hits", len(texts)-len(missing),
	)

	if len(missing) == 0 {
		return result, nil
	}

	// 2. キャッシュに無い分を生成
	missingTexts := make([]string, len(missing))
	for j, i := range missing {
		missingTexts[j] = texts[i]
	}
	vectors, err := e.inner.BatchEmbed(ctx, missingTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missing))
	}

	// 3. 書き戻し
	pipe := e.rdb.Pipeline()
	for j, i := range missing {
		result[i] = vectors[j]
		pipe.Set(ctx, keys[i], encodeVector(vectors[j]), e.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		e.logger.Warn("embedding cache write failed", "error", err)
	}

	return result, nil
}

// ModelName はラップしている Embedder のモデル名を返す
func (e *Embedder) ModelName() string {
	return e.inner.ModelName()
}

// Dimension はラップしている Embedder の次元数を返す
func (e *Embedder) Dimension() int {
	return e.inner.Dimension()
}

// MaxBatchSize はラップしている Embedder のバッチ上限を返す
func (e *Embedder) MaxBatchSize() int {
	return e.inner.MaxBatchSize()
}

func (e *Embedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return e.prefix + e.inner.ModelName() + ":" + strconv.Itoa(e.inner.Dimension()) + ":" + hex.EncodeToString(sum[:])
}

// decode は MGET の値をベクトルに変換する。欠損や次元不一致は miss として扱う
func (e *Embedder) decode(value any) ([]float32, bool) {
	s, ok := value.(string)
	if !ok {
		return nil, false
	}
	v, err := decodeVector([]byte(s))
	if err != nil || len(v) != e.inner.Dimension() {
		return nil, false
	}
	return v, true
}

var errInvalidVector = errors.New("invalid cached vector")

// encodeVector は float32 列をリトルエンディアンのバイト列に変換する
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errInvalidVector
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

var _ indexing.Embedder = (*Embedder)(nil)
