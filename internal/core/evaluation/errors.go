package evaluation

import "errors"

// ErrQuestionsNotFound は質問ファイルが存在しない場合に返される
var ErrQuestionsNotFound = errors.New("questions file not found")
