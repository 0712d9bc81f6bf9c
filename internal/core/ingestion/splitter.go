package ingestion

import (
	"fmt"
	"strings"
)

const (
	// DefaultMaxWords はパッセージあたりの既定最大単語数
	DefaultMaxWords = 600
	// DefaultOverlap は隣接パッセージ間の既定オーバーラップ単語数
	DefaultOverlap = 30
)

// SplitOptions はパッセージ分割の設定
type SplitOptions struct {
	MaxWords int
	Overlap  int
}

// DefaultSplitOptions はデフォルトの分割設定を返す
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{
		MaxWords: DefaultMaxWords,
		Overlap:  DefaultOverlap,
	}
}

// Validate は分割設定を検証する
// overlap >= maxWords の場合ウィンドウが前進しないため拒否する
func (o SplitOptions) Validate() error {
	if o.MaxWords < 1 {
		return fmt.Errorf("%w: maxWords must be >= 1 (got %d)", ErrInvalidSplitConfig, o.MaxWords)
	}
	if o.Overlap < 0 {
		return fmt.Errorf("%w: overlap must be >= 0 (got %d)", ErrInvalidSplitConfig, o.Overlap)
	}
	if o.Overlap >= o.MaxWords {
		return fmt.Errorf("%w: overlap (%d) must be smaller than maxWords (%d)", ErrInvalidSplitConfig, o.Overlap, o.MaxWords)
	}
	return nil
}

// Split はテキストを単語境界のスライディングウィンドウでパッセージに分割する
// 単語は空白で区切り、各パッセージは単一スペースで再結合する
func Split(text string, maxWords, overlap int) ([]string, error) {
	opts := SplitOptions{MaxWords: maxWords, Overlap: overlap}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	words := strings.Fields(text)
	n := len(words)
	if n == 0 {
		return nil, nil
	}

	step := maxWords - overlap
	passages := make([]string, 0, passageCount(n, maxWords, overlap))

	for start := 0; start < n; start += step {
		end := min(start+maxWords, n)
		passages = append(passages, strings.Join(words[start:end], " "))
		if end == n {
			break
		}
	}

	return passages, nil
}

// passageCount は n 単語を分割したときのパッセージ数を返す
func passageCount(n, maxWords, overlap int) int {
	if n <= maxWords {
		return 1
	}
	step := maxWords - overlap
	return (n - overlap + step - 1) / step
}
