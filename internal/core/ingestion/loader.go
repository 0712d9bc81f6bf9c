package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// DirectorySource はディレクトリ直下のマークアップファイルをドキュメントとして読み込む
type DirectorySource struct {
	dir      string
	detector *MarkupDetector
	logger   *slog.Logger
}

// DirectorySourceOption は DirectorySource のオプション設定
type DirectorySourceOption func(*DirectorySource)

// WithMarkupLanguage は取り込み対象の言語を差し替える
func WithMarkupLanguage(language string) DirectorySourceOption {
	return func(s *DirectorySource) {
		s.detector = NewMarkupDetector(language)
	}
}

// WithSourceLogger はロガーを設定する
func WithSourceLogger(logger *slog.Logger) DirectorySourceOption {
	return func(s *DirectorySource) {
		s.logger = logger
	}
}

// NewDirectorySource は新しい DirectorySource を作成する
func NewDirectorySource(dir string, opts ...DirectorySourceOption) *DirectorySource {
	s := &DirectorySource{
		dir:      dir,
		detector: NewMarkupDetector(DefaultMarkupLanguage),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Describe は取得元ディレクトリを返す
func (s *DirectorySource) Describe() string {
	return s.dir
}

// FetchDocuments はディレクトリを読み込み、対象ファイルをファイル名の辞書順で返す
func (s *DirectorySource) FetchDocuments(ctx context.Context) ([]*Document, error) {
	info, err := os.Stat(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCorpusNotFound, s.dir)
		}
		return nil, fmt.Errorf("failed to stat corpus directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrCorpusNotFound, s.dir)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus directory: %w", err)
	}

	// ファイル名の辞書順
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	ignore, err := NewIgnoreFilter(s.dir)
	if err != nil {
		return nil, err
	}

	docs := make([]*Document, 0, len(entries))
	skipped := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := entry.Name()
		if entry.IsDir() || !s.detector.IsMarkup(name) {
			continue
		}
		if ignore.ShouldIgnore(name) {
			skipped++
			continue
		}

		path := filepath.Join(s.dir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read document %s: %w", path, err)
		}

		docs = append(docs, &Document{
			ID:   name,
			Text: string(content),
			Path: path,
		})
	}

	s.logger.Info("documents loaded",
		"dir", s.dir,
		"language", s.detector.Language(),
		"documents", len(docs),
		"ignored", skipped,
	)

	return docs, nil
}

var _ SourceProvider = (*DirectorySource)(nil)
