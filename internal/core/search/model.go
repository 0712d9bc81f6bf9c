package search

// RetrievalResult は検索結果の1件を表す
type RetrievalResult struct {
	Score     float64 `json:"score"`
	DocID     string  `json:"doc_id"`
	PassageID string  `json:"passage_id"`
	Text      string  `json:"text"`
}
