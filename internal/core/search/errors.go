package search

import "errors"

var (
	// ErrEmptyQuery はクエリが空または空白のみの場合に返される
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrInvalidTopK は topK が1未満の場合に返される
	ErrInvalidTopK = errors.New("topK must be >= 1")
)
