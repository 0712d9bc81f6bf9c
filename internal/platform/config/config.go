package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig は設定値が不正な場合に返される
var ErrInvalidConfig = errors.New("invalid config")

// 索引の保存先
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings + LLM）
	OpenAI OpenAIConfig

	// 回答生成用LLM設定
	LLM LLMConfig

	// コーパスとインデックス設定
	RAG RAGConfig

	// 評価設定
	Eval EvalConfig

	// Embeddingキャッシュ設定
	Cache CacheConfig

	// Git設定
	Git GitConfig

	// ログ設定
	Log LogConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN は pgx 用の接続文字列を返す
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	BaseURL            string // OpenAI互換サーバー（Ollama等）を使う場合に指定
	EmbeddingModel     string
	EmbeddingDimension int
	LLMModel           string
}

// LLMConfig は回答生成の設定
type LLMConfig struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// RAGConfig はコーパス・インデックスの設定
type RAGConfig struct {
	DataDir        string
	MarkupLanguage string
	MaxWords       int
	Overlap        int
	IndexPath      string
	MetadataPath   string
	IndexBackend   string
	EmbedBatchSize int
	EmbedMaxTokens int
	AnswerTopK     int
}

// EvalConfig は評価の設定
type EvalConfig struct {
	TopK          int
	Concurrency   int
	QuestionsFile string
	ResultsFile   string
	MetricsFile   string
}

// CacheConfig はEmbeddingキャッシュ設定
// RedisURL が空の場合はキャッシュを使わない
type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

// GitConfig はGit操作設定
type GitConfig struct {
	CloneDir    string
	SSHKeyPath  string
	SSHPassword string // SSH秘密鍵のパスワード（パスフレーズ）
}

// LogConfig はログ出力設定
type LogConfig struct {
	Level  string
	Format string
}

// Load は環境変数または.envファイルから設定を読み込みます
// 数値として解釈できない値はデフォルトに置き換えずエラーにします
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	env := &envReader{}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     env.str("DB_HOST", "localhost"),
			Port:     env.int("DB_PORT", 5432),
			User:     env.str("DB_USER", "docrag"),
			Password: env.str("DB_PASSWORD", ""),
			DBName:   env.str("DB_NAME", "docrag"),
			SSLMode:  env.str("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             env.str("OPENAI_API_KEY", ""),
			BaseURL:            env.str("OPENAI_BASE_URL", ""),
			EmbeddingModel:     env.str("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: env.int("OPENAI_EMBEDDING_DIMENSION", 1536),
			LLMModel:           env.str("OPENAI_LLM_MODEL", "gpt-4o-mini"),
		},
		LLM: LLMConfig{
			Temperature: env.float("LLM_TEMPERATURE", 0.1),
			MaxTokens:   env.int("LLM_MAX_TOKENS", 500),
			Timeout:     time.Duration(env.int("LLM_TIMEOUT_SECONDS", 60)) * time.Second,
		},
		RAG: RAGConfig{
			DataDir:        env.str("RAG_DATA_DIR", "data"),
			MarkupLanguage: env.str("RAG_MARKUP_LANGUAGE", "Markdown"),
			MaxWords:       env.int("RAG_MAX_WORDS", 600),
			Overlap:        env.int("RAG_OVERLAP", 30),
			IndexPath:      env.str("RAG_INDEX_PATH", "outputs/index.bin"),
			MetadataPath:   env.str("RAG_METADATA_PATH", "outputs/metadata.json"),
			IndexBackend:   strings.ToLower(env.str("RAG_INDEX_BACKEND", BackendFile)),
			EmbedBatchSize: env.int("RAG_EMBED_BATCH_SIZE", 500),
			EmbedMaxTokens: env.int("RAG_EMBED_MAX_BATCH_TOKENS", 250000),
			AnswerTopK:     env.int("RAG_ANSWER_TOP_K", 6),
		},
		Eval: EvalConfig{
			TopK:          env.int("RAG_EVAL_TOP_K", 5),
			Concurrency:   env.int("RAG_EVAL_CONCURRENCY", 1),
			QuestionsFile: env.str("RAG_QUESTIONS_FILE", "tests/questions/test_questions.txt"),
			ResultsFile:   env.str("RAG_RESULTS_FILE", "outputs/rag_eval_results.json"),
			MetricsFile:   env.str("EVAL_METRICS_FILE", ""),
		},
		Cache: CacheConfig{
			RedisURL: env.str("REDIS_URL", ""),
			TTL:      time.Duration(env.int("EMBED_CACHE_TTL_HOURS", 168)) * time.Hour,
		},
		Git: GitConfig{
			CloneDir:    env.str("GIT_CLONE_DIR", "repos"),
			SSHKeyPath:  env.str("GIT_SSH_KEY_PATH", ""),
			SSHPassword: env.str("GIT_SSH_PASSWORD", ""),
		},
		Log: LogConfig{
			Level:  env.str("LOG_LEVEL", "info"),
			Format: env.str("LOG_FORMAT", "text"),
		},
	}

	if err := env.err(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は設定値の整合性を検証します
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.OpenAI.EmbeddingDimension > 0, "OPENAI_EMBEDDING_DIMENSION must be > 0 (got %d)", c.OpenAI.EmbeddingDimension)
	check(c.LLM.Temperature >= 0 && c.LLM.Temperature <= 2, "LLM_TEMPERATURE must be within [0, 2] (got %g)", c.LLM.Temperature)
	check(c.LLM.MaxTokens > 0, "LLM_MAX_TOKENS must be > 0 (got %d)", c.LLM.MaxTokens)
	check(c.LLM.Timeout > 0, "LLM_TIMEOUT_SECONDS must be > 0 (got %s)", c.LLM.Timeout)
	check(c.RAG.MaxWords >= 1, "RAG_MAX_WORDS must be >= 1 (got %d)", c.RAG.MaxWords)
	check(c.RAG.Overlap >= 0 && c.RAG.Overlap < c.RAG.MaxWords, "RAG_OVERLAP must be within [0, RAG_MAX_WORDS) (got %d)", c.RAG.Overlap)
	check(c.RAG.IndexBackend == BackendFile || c.RAG.IndexBackend == BackendPostgres, "RAG_INDEX_BACKEND must be %q or %q (got %q)", BackendFile, BackendPostgres, c.RAG.IndexBackend)
	check(c.RAG.EmbedBatchSize > 0, "RAG_EMBED_BATCH_SIZE must be > 0 (got %d)", c.RAG.EmbedBatchSize)
	check(c.RAG.EmbedMaxTokens > 0, "RAG_EMBED_MAX_BATCH_TOKENS must be > 0 (got %d)", c.RAG.EmbedMaxTokens)
	check(c.RAG.AnswerTopK >= 1, "RAG_ANSWER_TOP_K must be >= 1 (got %d)", c.RAG.AnswerTopK)
	check(c.Eval.TopK >= 1, "RAG_EVAL_TOP_K must be >= 1 (got %d)", c.Eval.TopK)
	check(c.Eval.Concurrency >= 1, "RAG_EVAL_CONCURRENCY must be >= 1 (got %d)", c.Eval.Concurrency)
	check(c.Cache.TTL > 0, "EMBED_CACHE_TTL_HOURS must be > 0 (got %s)", c.Cache.TTL)
	check(c.Database.Port > 0 && c.Database.Port <= 65535, "DB_PORT must be within [1, 65535] (got %d)", c.Database.Port)

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		check(false, "LOG_FORMAT must be \"json\" or \"text\" (got %q)", c.Log.Format)
	}

	return errors.Join(errs...)
}

// envReader は環境変数を型付きで読み込み、解釈できなかった値を記録します
type envReader struct {
	errs []error
}

// str は環境変数を取得し、存在しない場合はデフォルト値を返します
func (r *envReader) str(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// int は環境変数を整数として取得します
func (r *envReader) int(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%w: %s is not an integer: %q", ErrInvalidConfig, key, valueStr))
		return defaultValue
	}
	return value
}

// float は環境変数を浮動小数点数として取得します
func (r *envReader) float(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%w: %s is not a number: %q", ErrInvalidConfig, key, valueStr))
		return defaultValue
	}
	return value
}

func (r *envReader) err() error {
	return errors.Join(r.errs...)
}
