package ingestion

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName はコーパスディレクトリ直下の除外パターンファイル名
const IgnoreFileName = ".ragignore"

// IgnoreFilter は .ragignore のパターンマッチングを提供する
type IgnoreFilter struct {
	patterns *gitignore.GitIgnore
}

// NewIgnoreFilter は dir 配下の .ragignore を読み込んで IgnoreFilter を作成する
// ファイルが存在しない場合は何も除外しない
func NewIgnoreFilter(dir string) (*IgnoreFilter, error) {
	path := filepath.Join(dir, IgnoreFileName)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &IgnoreFilter{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", IgnoreFileName, err)
	}

	var lines []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		// 空行とコメント行をスキップ
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return &IgnoreFilter{}, nil
	}

	return &IgnoreFilter{patterns: gitignore.CompileIgnoreLines(lines...)}, nil
}

// ShouldIgnore はファイル名が除外対象かどうかを判定する
func (f *IgnoreFilter) ShouldIgnore(name string) bool {
	if f == nil || f.patterns == nil {
		return false
	}
	return f.patterns.MatchesPath(name)
}
