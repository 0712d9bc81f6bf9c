package ingestion

import "errors"

var (
	// ErrInvalidSplitConfig は分割パラメータが不正な場合に返される
	ErrInvalidSplitConfig = errors.New("invalid split config")

	// ErrCorpusNotFound はコーパスディレクトリが存在しない場合に返される
	ErrCorpusNotFound = errors.New("corpus directory not found")
)
