package evaluation

import (
	"context"

	"github.com/jinford/doc-rag/internal/core/ask"
	"github.com/jinford/doc-rag/internal/core/search"
)

// Outcome は1問分の評価結果の分類
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeNoContext    Outcome = "no_context"
	OutcomeNoSources    Outcome = "no_sources"
	OutcomeNoCitation   Outcome = "no_citation"
	OutcomeServiceError Outcome = "service_error"
)

// Outcomes は全ての分類を定義順で返す
func Outcomes() []Outcome {
	return []Outcome{
		OutcomeSuccess,
		OutcomeNoContext,
		OutcomeNoSources,
		OutcomeNoCitation,
		OutcomeServiceError,
	}
}

// Failed は失敗扱いの分類かどうかを返す
func (o Outcome) Failed() bool {
	return o != OutcomeSuccess
}

const (
	ReasonNoContext  = "LLM lacked context for answer."
	ReasonNoSources  = "Retriever returned no sources."
	ReasonNoCitation = "No citation found in answer."
)

// Record は1問分の評価記録（レポートの1要素）
type Record struct {
	Question      string                    `json:"question"`
	Answer        string                    `json:"answer"`
	Sources       []*search.RetrievalResult `json:"sources"`
	TimeTakenSec  float64                   `json:"time_taken_in_sec"`
	Failed        bool                      `json:"failed"`
	FailureReason string                    `json:"failure_reason"`
	Outcome       Outcome                   `json:"outcome"`
}

// Summary は評価結果の集計
type Summary struct {
	Total     int
	Successes int
	Failures  []Record
}

// Answerer は質問に回答するインターフェース
type Answerer interface {
	Answer(ctx context.Context, question string, topK int) (*ask.Answer, error)
}
