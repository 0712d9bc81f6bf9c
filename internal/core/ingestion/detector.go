package ingestion

import (
	"path/filepath"
	"slices"

	"github.com/go-enry/go-enry/v2"
)

// DefaultMarkupLanguage は取り込み対象とする既定のマークアップ言語
const DefaultMarkupLanguage = "Markdown"

// MarkupDetector はファイルが取り込み対象のマークアップ言語かを判定する
type MarkupDetector struct {
	language string
}

// NewMarkupDetector は MarkupDetector を生成する
// language には linguist の言語名（例: Markdown, reStructuredText, AsciiDoc）を指定する
func NewMarkupDetector(language string) *MarkupDetector {
	if language == "" {
		language = DefaultMarkupLanguage
	}
	return &MarkupDetector{language: language}
}

// Language は判定対象の言語名を返す
func (d *MarkupDetector) Language() string {
	return d.language
}

// IsMarkup は拡張子から判定した言語候補に対象言語が含まれるかを返す
// .md のように複数言語に対応する拡張子でも、候補に含まれれば対象とする
func (d *MarkupDetector) IsMarkup(path string) bool {
	candidates := enry.GetLanguagesByExtension(filepath.Base(path), nil, nil)
	return slices.Contains(candidates, d.language)
}
