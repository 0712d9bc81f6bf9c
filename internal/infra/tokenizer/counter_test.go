package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}

func TestCounter_NilFallsBackToEstimate(t *testing.T) {
	var c *Counter
	assert.Equal(t, 3, c.CountTokens("hello world!"))
}

func TestCounter_Encoding(t *testing.T) {
	if testing.Short() {
		t.Skip("tiktoken encoding download is skipped in short mode")
	}

	c, err := NewCounter()
	if err != nil {
		t.Skipf("tiktoken encoding is not available: %v", err)
	}

	assert.Equal(t, 2, c.CountTokens("hello world"))
	assert.Equal(t, 0, c.CountTokens(""))
}
