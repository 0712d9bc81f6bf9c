package ask

import (
	"fmt"
	"strings"

	"github.com/jinford/doc-rag/internal/core/search"
)

// BuildGroundedPrompt はパッセージのみを根拠に回答させるプロンプトを構築する
// パッセージは渡された順に [Source 1], [Source 2], ... とラベル付けされる
func BuildGroundedPrompt(question string, passages []*search.RetrievalResult) string {
	var sb strings.Builder

	sb.WriteString("You are an expert assistant. Use ONLY the provided context passages to answer.\n\n")

	// 質問
	sb.WriteString("QUESTION:\n")
	sb.WriteString(question)
	sb.WriteString("\n\n")

	// コンテキスト
	sb.WriteString("CONTEXT:\n")
	blocks := make([]string, 0, len(passages))
	for i, p := range passages {
		blocks = append(blocks, fmt.Sprintf("%s (doc=%s | passage=%s)\n%s\n", SourceLabel(i+1), p.DocID, p.PassageID, p.Text))
	}
	sb.WriteString(strings.Join(blocks, "\n"))
	sb.WriteString("\n")

	// 回答ルール
	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString(fmt.Sprintf("- If the answer is not present in the passages, say EXACTLY: %q\n", NoContextAnswer))
	sb.WriteString("- Cite passages using [Source X].\n")
	sb.WriteString("- Do NOT add external knowledge.\n")

	return sb.String()
}

// SourceLabel は i 番目（1始まり）のパッセージの引用ラベルを返す
func SourceLabel(i int) string {
	return fmt.Sprintf("[Source %d]", i)
}
