package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jinford/doc-rag/internal/core/search"
)

// AskService は検索結果に基づく回答生成のビジネスロジックを提供する
type AskService struct {
	retriever    Retriever
	llm          LLMClient
	tokenCounter TokenCounter
	temperature  float64
	maxTokens    int
	logger       *slog.Logger
}

type AskServiceOption func(*AskService)

// WithAskLogger は AskService にロガーを設定する
func WithAskLogger(logger *slog.Logger) AskServiceOption {
	return func(s *AskService) {
		s.logger = logger
	}
}

// WithTemperature は生成時の温度を設定する
func WithTemperature(temperature float64) AskServiceOption {
	return func(s *AskService) {
		s.temperature = temperature
	}
}

// WithMaxTokens は生成時の最大トークン数を設定する
func WithMaxTokens(maxTokens int) AskServiceOption {
	return func(s *AskService) {
		s.maxTokens = maxTokens
	}
}

// WithPromptTokenCounter はプロンプトのトークン数をログに出すためのカウンタを設定する
func WithPromptTokenCounter(counter TokenCounter) AskServiceOption {
	return func(s *AskService) {
		s.tokenCounter = counter
	}
}

// NewAskService は新しいAskServiceを作成する
func NewAskService(
	retriever Retriever,
	llm LLMClient,
	opts ...AskServiceOption,
) *AskService {
	svc := &AskService{
		retriever:   retriever,
		llm:         llm,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// Answer は質問に対して検索結果のみを根拠とした回答を生成する
// topK が1未満の場合は search.ErrInvalidTopK を返す
func (s *AskService) Answer(ctx context.Context, question string, topK int) (*Answer, error) {
	// 1. 取得件数の検証
	if topK < 1 {
		return nil, fmt.Errorf("%w (got %d)", search.ErrInvalidTopK, topK)
	}

	// 2. パッセージ検索
	passages, err := s.retriever.Retrieve(ctx, question, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	// 3. 検索結果が0件ならLLMを呼ばずに返す
	if len(passages) == 0 {
		s.logger.Info("no passages retrieved", "question", question)
		return &Answer{
			Answer:  NoDocumentsAnswer,
			Sources: []*search.RetrievalResult{},
		}, nil
	}

	// 4. スコア降順に並べ替えてプロンプト構築
	search.SortByScore(passages)
	prompt := BuildGroundedPrompt(question, passages)

	attrs := []any{"passages", len(passages), "promptChars", len(prompt)}
	if s.tokenCounter != nil {
		attrs = append(attrs, "promptTokens", s.tokenCounter.CountTokens(prompt))
	}
	s.logger.Info("generating answer with LLM", attrs...)

	// 5. LLMで回答生成
	resp, err := s.llm.GenerateCompletion(ctx, CompletionRequest{
		Prompt:      prompt,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	s.logger.Info("answer generated",
		"model", resp.Model,
		"tokensUsed", resp.TokensUsed,
		"answerLength", len(resp.Content),
		"sources", len(passages),
	)

	return &Answer{
		Answer:  resp.Content,
		Sources: passages,
	}, nil
}

// IsValidationError は入力不備によるエラーかどうかを返す
func IsValidationError(err error) bool {
	return errors.Is(err, search.ErrEmptyQuery) || errors.Is(err, search.ErrInvalidTopK)
}
