package ingestion

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeWords は w0 w1 ... の形式で n 単語のテキストを生成する
func makeWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func TestSplit_SinglePassageWhenShort(t *testing.T) {
	tests := []struct {
		name     string
		words    int
		maxWords int
		overlap  int
	}{
		{name: "1単語", words: 1, maxWords: 600, overlap: 30},
		{name: "上限未満", words: 599, maxWords: 600, overlap: 30},
		{name: "ちょうど上限", words: 600, maxWords: 600, overlap: 30},
		{name: "小さいウィンドウ", words: 3, maxWords: 3, overlap: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := makeWords(tt.words)
			passages, err := Split(text, tt.maxWords, tt.overlap)
			require.NoError(t, err)
			require.Len(t, passages, 1)
			assert.Equal(t, text, passages[0])
		})
	}
}

func TestSplit_PassageCount(t *testing.T) {
	tests := []struct {
		words    int
		maxWords int
		overlap  int
		want     int
	}{
		{words: 1000, maxWords: 600, overlap: 30, want: 2},
		{words: 1170, maxWords: 600, overlap: 30, want: 2},
		{words: 1171, maxWords: 600, overlap: 30, want: 3},
		{words: 10, maxWords: 4, overlap: 1, want: 3},
		{words: 11, maxWords: 4, overlap: 0, want: 3},
		{words: 12, maxWords: 4, overlap: 0, want: 3},
		{words: 7, maxWords: 2, overlap: 1, want: 6},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("W=%d_max=%d_overlap=%d", tt.words, tt.maxWords, tt.overlap), func(t *testing.T) {
			passages, err := Split(makeWords(tt.words), tt.maxWords, tt.overlap)
			require.NoError(t, err)
			assert.Len(t, passages, tt.want)
			assert.Equal(t, tt.want, passageCount(tt.words, tt.maxWords, tt.overlap))
		})
	}
}

func TestSplit_ConsecutiveWindowsOverlap(t *testing.T) {
	const (
		maxWords = 50
		overlap  = 7
	)
	passages, err := Split(makeWords(333), maxWords, overlap)
	require.NoError(t, err)
	require.Greater(t, len(passages), 2)

	for i := 0; i+1 < len(passages); i++ {
		prev := strings.Fields(passages[i])
		next := strings.Fields(passages[i+1])

		// 最後以外のウィンドウは常に maxWords 単語
		assert.Len(t, prev, maxWords)
		assert.Equal(t, prev[len(prev)-overlap:], next[:overlap], "pair %d", i)
	}

	// 最後のパッセージはテキスト末尾で終わる
	last := strings.Fields(passages[len(passages)-1])
	assert.Equal(t, "w332", last[len(last)-1])
}

func TestSplit_CoversAllWordsInOrder(t *testing.T) {
	const (
		maxWords = 5
		overlap  = 2
	)
	passages, err := Split(makeWords(17), maxWords, overlap)
	require.NoError(t, err)

	// オーバーラップ部分を除いて連結すると元のテキストに戻る
	var rebuilt []string
	for i, p := range passages {
		words := strings.Fields(p)
		if i > 0 {
			words = words[overlap:]
		}
		rebuilt = append(rebuilt, words...)
	}
	assert.Equal(t, strings.Fields(makeWords(17)), rebuilt)
}

func TestSplit_NormalizesWhitespace(t *testing.T) {
	passages, err := Split("  alpha\tbeta\n\ngamma   delta ", 600, 30)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "alpha beta gamma delta", passages[0])
}

func TestSplit_EmptyText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t\n"} {
		passages, err := Split(text, 600, 30)
		require.NoError(t, err)
		assert.Empty(t, passages)
	}
}

func TestSplit_InvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		maxWords int
		overlap  int
	}{
		{name: "overlapがmaxWordsと等しい", maxWords: 10, overlap: 10},
		{name: "overlapがmaxWordsより大きい", maxWords: 10, overlap: 11},
		{name: "maxWordsが0", maxWords: 0, overlap: 0},
		{name: "overlapが負", maxWords: 10, overlap: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passages, err := Split(makeWords(100), tt.maxWords, tt.overlap)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSplitConfig)
			assert.Nil(t, passages)
		})
	}
}

func TestDefaultSplitOptions(t *testing.T) {
	opts := DefaultSplitOptions()
	assert.Equal(t, 600, opts.MaxWords)
	assert.Equal(t, 30, opts.Overlap)
	assert.NoError(t, opts.Validate())
}
