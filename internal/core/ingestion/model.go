package ingestion

// Document はコーパスの元となる1ファイル分のドキュメントを表す
type Document struct {
	ID   string // ドキュメントID（ファイル名）
	Text string // ドキュメント本文
	Path string // ファイルパス
}

// Passage は検索と引用の単位となるドキュメント断片を表す
type Passage struct {
	DocID     string `json:"doc_id"`
	PassageID string `json:"passage_id"`
	Text      string `json:"text"`
}

// Corpus はパッセージの順序付き列
// 位置 i はベクトルインデックスの位置 i と常に対応する
type Corpus []Passage

// Len はパッセージ数を返す
func (c Corpus) Len() int {
	return len(c)
}

// Texts はパッセージ本文をコーパス順で返す
func (c Corpus) Texts() []string {
	texts := make([]string, len(c))
	for i, p := range c {
		texts[i] = p.Text
	}
	return texts
}

// At は位置 pos のパッセージを返す。範囲外の場合は false を返す
func (c Corpus) At(pos int) (Passage, bool) {
	if pos < 0 || pos >= len(c) {
		return Passage{}, false
	}
	return c[pos], true
}
