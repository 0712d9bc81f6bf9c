package ask

import (
	"context"

	"github.com/jinford/doc-rag/internal/core/search"
)

const (
	// NoContextAnswer はコンテキストに答えがない場合にモデルが返すべき定型文
	// プロンプトと評価の両方でこの文字列を使う
	NoContextAnswer = "I don't know from the provided documents."

	// NoDocumentsAnswer は検索結果が0件の場合に返す回答
	NoDocumentsAnswer = "No relevant documents found."

	// DefaultTopK は回答生成時に取得するパッセージ数の既定値
	DefaultTopK = 6

	// DefaultTemperature は回答生成時の温度の既定値
	DefaultTemperature = 0.1

	// DefaultMaxTokens は回答生成時の最大トークン数の既定値
	DefaultMaxTokens = 500
)

// Answer は質問応答の結果を表す
type Answer struct {
	Answer  string                    `json:"answer"`
	Sources []*search.RetrievalResult `json:"sources"`
}

// CompletionRequest はLLMへのリクエストを表す
type CompletionRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// CompletionResponse はLLMからのレスポンスを表す
type CompletionResponse struct {
	Content    string
	TokensUsed int
	Model      string
}

// LLMClient はLLM通信インターフェース
type LLMClient interface {
	GenerateCompletion(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Retriever はパッセージ検索インターフェース
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]*search.RetrievalResult, error)
}

// TokenCounter はプロンプトのトークン数を数える
type TokenCounter interface {
	CountTokens(text string) int
}
