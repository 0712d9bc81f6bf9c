package git

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jinford/doc-rag/internal/core/ingestion"
)

// Provider は Git リポジトリ上のドキュメントディレクトリを取得元とする ingestion.SourceProvider 実装
// クローン後の読み込みは ingestion.DirectorySource に委譲する
type Provider struct {
	client          *Client
	gitCloneBaseDir string
	url             string
	ref             string
	subdir          string
	sourceOpts      []ingestion.DirectorySourceOption
	logger          *slog.Logger
}

// ProviderOption は Provider のオプション設定
type ProviderOption func(*Provider)

// WithRef はチェックアウトする ref（ブランチ、タグ、コミット）を指定する
func WithRef(ref string) ProviderOption {
	return func(p *Provider) {
		p.ref = ref
	}
}

// WithSubdir はリポジトリ内のドキュメントディレクトリを指定する
func WithSubdir(subdir string) ProviderOption {
	return func(p *Provider) {
		p.subdir = subdir
	}
}

// WithSourceOptions はクローン後に使う DirectorySource のオプションを指定する
func WithSourceOptions(opts ...ingestion.DirectorySourceOption) ProviderOption {
	return func(p *Provider) {
		p.sourceOpts = append(p.sourceOpts, opts...)
	}
}

// WithProviderLogger はロガーを設定する
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider は新しい Git Provider を作成する
func NewProvider(client *Client, gitCloneBaseDir, url string, opts ...ProviderOption) *Provider {
	p := &Provider{
		client:          client,
		gitCloneBaseDir: gitCloneBaseDir,
		url:             url,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Describe は取得元を表す文字列を返す
func (p *Provider) Describe() string {
	var sb strings.Builder
	sb.WriteString(p.url)
	if p.ref != "" {
		sb.WriteString("@" + p.ref)
	}
	if p.subdir != "" {
		sb.WriteString(":" + p.subdir)
	}
	return sb.String()
}

// RepoPath はクローン先のローカルパスを返す
func (p *Provider) RepoPath() (string, error) {
	dirName, err := p.client.URLToDirectoryName(p.url)
	if err != nil {
		return "", fmt.Errorf("failed to generate directory name from URL: %w", err)
	}
	return filepath.Join(p.gitCloneBaseDir, dirName), nil
}

// DocumentDir はクローン内のドキュメントディレクトリを返す
// subdir がリポジトリ外を指す場合はエラーにする
func (p *Provider) DocumentDir() (string, error) {
	repoPath, err := p.RepoPath()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(repoPath, p.subdir)
	rel, err := filepath.Rel(repoPath, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("subdir escapes repository: %s", p.subdir)
	}
	return dir, nil
}

// FetchDocuments はリポジトリをクローンまたは更新し、ドキュメントを読み込む
func (p *Provider) FetchDocuments(ctx context.Context) ([]*ingestion.Document, error) {
	repoPath, err := p.RepoPath()
	if err != nil {
		return nil, err
	}
	docDir, err := p.DocumentDir()
	if err != nil {
		return nil, err
	}

	// Git リポジトリのクローン/pull
	if err := p.client.CloneOrPull(ctx, p.url, repoPath, p.ref); err != nil {
		return nil, fmt.Errorf("failed to clone/pull repository: %w", err)
	}

	commit, err := p.client.HeadCommit(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit hash: %w", err)
	}

	p.logger.Info("repository ready",
		"url", p.url,
		"ref", p.ref,
		"commit", commit,
		"path", repoPath,
	)

	opts := append([]ingestion.DirectorySourceOption{ingestion.WithSourceLogger(p.logger)}, p.sourceOpts...)
	return ingestion.NewDirectorySource(docDir, opts...).FetchDocuments(ctx)
}

var _ ingestion.SourceProvider = (*Provider)(nil)
