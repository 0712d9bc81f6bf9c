package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateLockID(t *testing.T) {
	a := GenerateLockID("doc-rag", "index")
	assert.Equal(t, a, GenerateLockID("doc-rag", "index"))
	assert.NotEqual(t, a, GenerateLockID("doc-rag", "eval"))
	// 区切りを含めるため連結結果が同じでも別IDになる
	assert.NotEqual(t, GenerateLockID("ab", "c"), GenerateLockID("a", "bc"))
}
