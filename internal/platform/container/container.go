package container

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	coreask "github.com/jinford/doc-rag/internal/core/ask"
	"github.com/jinford/doc-rag/internal/core/evaluation"
	coreindexing "github.com/jinford/doc-rag/internal/core/indexing"
	coreingestion "github.com/jinford/doc-rag/internal/core/ingestion"
	coresearch "github.com/jinford/doc-rag/internal/core/search"
	"github.com/jinford/doc-rag/internal/infra/cache"
	"github.com/jinford/doc-rag/internal/infra/filestore"
	"github.com/jinford/doc-rag/internal/infra/git"
	"github.com/jinford/doc-rag/internal/infra/openai"
	"github.com/jinford/doc-rag/internal/infra/postgres"
	"github.com/jinford/doc-rag/internal/infra/tokenizer"
	"github.com/jinford/doc-rag/internal/platform/config"
	"github.com/jinford/doc-rag/internal/platform/database"
)

// ServiceContainer はアプリケーションの依存関係を保持する
// 検索系のサービスは保存済みインデックスを必要とするため、初回利用時にロードする
type ServiceContainer struct {
	Config       *config.Config
	IndexService *coreindexing.IndexService
	Store        coreindexing.Store
	Embedder     coreindexing.Embedder
	GitClient    *git.Client

	logger       *slog.Logger
	pool         *pgxpool.Pool
	redis        *redis.Client
	tokenCounter coreindexing.TokenCounter
	llmClient    coreask.LLMClient

	mu            sync.Mutex
	artifacts     *coreindexing.Artifacts
	searchService *coresearch.SearchService
	askService    *coreask.AskService
}

type containerOptions struct {
	logger       *slog.Logger
	embedder     coreindexing.Embedder
	llmClient    coreask.LLMClient
	store        coreindexing.Store
	tokenCounter coreindexing.TokenCounter
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder coreindexing.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerLLMClient は LLM クライアントを差し替える
func WithContainerLLMClient(client coreask.LLMClient) ContainerOption {
	return func(opts *containerOptions) {
		opts.llmClient = client
	}
}

// WithContainerStore はインデックスの保存先を差し替える
func WithContainerStore(store coreindexing.Store) ContainerOption {
	return func(opts *containerOptions) {
		opts.store = store
	}
}

// WithContainerTokenCounter はトークンカウンタを差し替える
func WithContainerTokenCounter(counter coreindexing.TokenCounter) ContainerOption {
	return func(opts *containerOptions) {
		opts.tokenCounter = counter
	}
}

// NewContainer は設定からコンテナを生成する
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	log := options.logger

	c := &ServiceContainer{
		Config:    cfg,
		GitClient: git.NewClient(cfg.Git.SSHKeyPath, cfg.Git.SSHPassword),
		logger:    log,
		llmClient: options.llmClient,
	}

	// Embedder (OpenAI)
	c.Embedder = options.embedder
	if c.Embedder == nil {
		c.Embedder = openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
			openai.WithEmbeddingBaseURL(cfg.OpenAI.BaseURL),
		)
	}

	// Embeddingキャッシュ
	if cfg.Cache.RedisURL != "" {
		if err := c.enableEmbeddingCache(ctx); err != nil {
			return nil, err
		}
	}

	// トークンカウンタ（取得できない場合は推定値で動作する）
	c.tokenCounter = options.tokenCounter
	if c.tokenCounter == nil {
		counter, err := tokenizer.NewCounter()
		if err != nil {
			log.Warn("tokenizer unavailable, falling back to estimation", "error", err)
		}
		c.tokenCounter = counter
	}

	// インデックスの保存先
	c.Store = options.store
	if c.Store == nil {
		store, err := c.newStore(ctx)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Store = store
	}

	c.IndexService = coreindexing.NewIndexService(
		c.Embedder,
		c.Store,
		coreindexing.WithIndexLogger(log),
		coreindexing.WithBatchSize(cfg.RAG.EmbedBatchSize),
		coreindexing.WithMaxBatchTokens(cfg.RAG.EmbedMaxTokens),
		coreindexing.WithTokenCounter(c.tokenCounter),
	)

	return c, nil
}

func (c *ServiceContainer) enableEmbeddingCache(ctx context.Context) error {
	opts, err := redis.ParseURL(c.Config.Cache.RedisURL)
	if err != nil {
		return fmt.Errorf("REDIS_URL の解析に失敗しました: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("Redis への接続に失敗しました: %w", err)
	}
	c.redis = client
	c.Embedder = cache.NewEmbedder(
		c.Embedder,
		client,
		cache.WithTTL(c.Config.Cache.TTL),
		cache.WithLogger(c.logger),
	)
	c.logger.Info("embedding cache enabled", "addr", opts.Addr, "ttl", c.Config.Cache.TTL)
	return nil
}

func (c *ServiceContainer) newStore(ctx context.Context) (coreindexing.Store, error) {
	switch c.Config.RAG.IndexBackend {
	case config.BackendPostgres:
		pool, err := database.NewPool(ctx, c.Config.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
		}
		c.pool = pool
		return postgres.NewStore(pool, postgres.WithLogger(c.logger)), nil
	default:
		return filestore.NewStore(
			c.Config.RAG.IndexPath,
			c.Config.RAG.MetadataPath,
			filestore.WithLogger(c.logger),
		), nil
	}
}

// SplitOptions は設定からパッセージ分割の設定を返す
func (c *ServiceContainer) SplitOptions() coreingestion.SplitOptions {
	return coreingestion.SplitOptions{
		MaxWords: c.Config.RAG.MaxWords,
		Overlap:  c.Config.RAG.Overlap,
	}
}

// SourceProvider はドキュメントの取得元を返す
// repoURL が空の場合はデータディレクトリを直接読む
func (c *ServiceContainer) SourceProvider(repoURL, ref, subdir string) coreingestion.SourceProvider {
	sourceOpts := []coreingestion.DirectorySourceOption{
		coreingestion.WithMarkupLanguage(c.Config.RAG.MarkupLanguage),
		coreingestion.WithSourceLogger(c.logger),
	}
	if repoURL == "" {
		return coreingestion.NewDirectorySource(c.Config.RAG.DataDir, sourceOpts...)
	}
	return git.NewProvider(
		c.GitClient,
		c.Config.Git.CloneDir,
		repoURL,
		git.WithRef(ref),
		git.WithSubdir(subdir),
		git.WithSourceOptions(sourceOpts...),
		git.WithProviderLogger(c.logger),
	)
}

// SearchService は保存済みインデックスを読み込んだ SearchService を返す
func (c *ServiceContainer) SearchService(ctx context.Context) (*coresearch.SearchService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searchServiceLocked(ctx)
}

func (c *ServiceContainer) searchServiceLocked(ctx context.Context) (*coresearch.SearchService, error) {
	if c.searchService != nil {
		return c.searchService, nil
	}

	artifacts, err := c.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("インデックスの読み込みに失敗しました: %w", err)
	}
	if artifacts.Index.Len() > 0 && artifacts.Index.Dimension() != c.Embedder.Dimension() {
		return nil, fmt.Errorf("%w: index has %d dimensions, embedder produces %d (rebuild the index)",
			coreindexing.ErrDimensionMismatch, artifacts.Index.Dimension(), c.Embedder.Dimension())
	}

	c.artifacts = artifacts
	c.searchService = coresearch.NewSearchService(c.Embedder, artifacts, coresearch.WithSearchLogger(c.logger))
	return c.searchService, nil
}

// AskService は回答生成サービスを返す
func (c *ServiceContainer) AskService(ctx context.Context) (*coreask.AskService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.askService != nil {
		return c.askService, nil
	}

	searchService, err := c.searchServiceLocked(ctx)
	if err != nil {
		return nil, err
	}

	if c.llmClient == nil {
		client, err := openai.NewClient(
			c.Config.OpenAI.APIKey,
			openai.WithModel(c.Config.OpenAI.LLMModel),
			openai.WithBaseURL(c.Config.OpenAI.BaseURL),
			openai.WithTimeout(c.Config.LLM.Timeout),
		)
		if err != nil {
			return nil, fmt.Errorf("LLMクライアントの初期化に失敗しました: %w", err)
		}
		c.llmClient = client
	}

	c.askService = coreask.NewAskService(
		searchService,
		c.llmClient,
		coreask.WithAskLogger(c.logger),
		coreask.WithTemperature(c.Config.LLM.Temperature),
		coreask.WithMaxTokens(c.Config.LLM.MaxTokens),
		coreask.WithPromptTokenCounter(c.tokenCounter),
	)
	return c.askService, nil
}

// Evaluator は評価サービスを返す
func (c *ServiceContainer) Evaluator(ctx context.Context, opts ...evaluation.EvaluatorOption) (*evaluation.Evaluator, error) {
	askService, err := c.AskService(ctx)
	if err != nil {
		return nil, err
	}

	base := []evaluation.EvaluatorOption{
		evaluation.WithEvaluatorLogger(c.logger),
		evaluation.WithConcurrency(c.Config.Eval.Concurrency),
	}
	return evaluation.NewEvaluator(askService, append(base, opts...)...), nil
}

// Artifacts はロード済みのインデックス成果物を返す（未ロードの場合は nil）
func (c *ServiceContainer) Artifacts() *coreindexing.Artifacts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifacts
}

// Logger はコンテナのロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	return c.logger
}

// Close は保持しているリソースを解放する
func (c *ServiceContainer) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.Warn("failed to close redis client", "error", err)
		}
	}
}
