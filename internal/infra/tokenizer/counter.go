package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding は OpenAI の Embedding/Chat モデルが使うエンコーディング
const DefaultEncoding = "cl100k_base"

// Counter は tiktoken でトークン数をカウントする
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// NewCounter は cl100k_base エンコーディングの Counter を作成する
// エンコーディング定義の取得にネットワークアクセスが必要な場合がある
func NewCounter() (*Counter, error) {
	return NewCounterWithEncoding(DefaultEncoding)
}

// NewCounterWithEncoding はエンコーディングを指定して Counter を作成する
func NewCounterWithEncoding(name string) (*Counter, error) {
	encoding, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding %s: %w", name, err)
	}

	return &Counter{encoding: encoding}, nil
}

// CountTokens はテキストのトークン数をカウントする
func (c *Counter) CountTokens(text string) int {
	if c == nil || c.encoding == nil {
		// エンコーディングが初期化されていない場合は推定値を返す
		return EstimateTokens(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// EstimateTokens はテキストの推定トークン数を返す（約4文字で1トークン）
func EstimateTokens(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}
