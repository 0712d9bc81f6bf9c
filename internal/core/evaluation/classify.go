package evaluation

import (
	"fmt"
	"strings"

	"github.com/jinford/doc-rag/internal/core/ask"
	"github.com/jinford/doc-rag/internal/core/search"
)

// citationMarker は回答中の引用を示す接頭辞
const citationMarker = "[Source"

// LacksContext は回答に定型の「わからない」文が含まれるかを返す
func LacksContext(answer string) bool {
	return strings.Contains(answer, ask.NoContextAnswer)
}

// HasNoSources は検索結果が0件かどうかを返す
func HasNoSources(sources []*search.RetrievalResult) bool {
	return len(sources) == 0
}

// LacksCitation は回答に引用が含まれないかを返す
func LacksCitation(answer string) bool {
	return !strings.Contains(answer, citationMarker)
}

// Classify は回答を分類し、失敗理由を返す（成功時は空文字）
// 判定は NoContext, NoSources, NoCitation の順で最初に当てはまったものを採用する
func Classify(answer string, sources []*search.RetrievalResult, err error) (Outcome, string) {
	switch {
	case err != nil:
		return OutcomeServiceError, fmt.Sprintf("Answer builder failed: %v", err)
	case LacksContext(answer):
		return OutcomeNoContext, ReasonNoContext
	case HasNoSources(sources):
		return OutcomeNoSources, ReasonNoSources
	case LacksCitation(answer):
		return OutcomeNoCitation, ReasonNoCitation
	default:
		return OutcomeSuccess, ""
	}
}
