package ingestion

import "fmt"

// PassageID はドキュメント内の i 番目のパッセージIDを返す
func PassageID(docID string, index int) string {
	return fmt.Sprintf("%s_p%d", docID, index)
}

// BuildCorpus はドキュメント群を分割してコーパスを構築する
// 順序はドキュメント順、次にドキュメント内のチャンク順
func BuildCorpus(docs []*Document, opts SplitOptions) (Corpus, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	corpus := make(Corpus, 0, len(docs))
	for _, doc := range docs {
		passages, err := Split(doc.Text, opts.MaxWords, opts.Overlap)
		if err != nil {
			return nil, fmt.Errorf("failed to split document %s: %w", doc.ID, err)
		}

		for i, text := range passages {
			corpus = append(corpus, Passage{
				DocID:     doc.ID,
				PassageID: PassageID(doc.ID, i),
				Text:      text,
			})
		}
	}

	return corpus, nil
}
