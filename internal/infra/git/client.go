package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	giturls "github.com/whilp/git-urls"
)

// Client は Git リポジトリ操作を提供する
type Client struct {
	sshKeyPath  string
	sshPassword string
	progress    io.Writer
}

// NewClient は新しい Client を作成する
func NewClient(sshKeyPath, sshPassword string) *Client {
	return &Client{
		sshKeyPath:  sshKeyPath,
		sshPassword: sshPassword,
		progress:    io.Discard,
	}
}

// SetProgress はクローン・フェッチの進捗出力先を設定する
func (c *Client) SetProgress(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	c.progress = w
}

// URLToDirectoryName はGit URLをディレクトリ名に変換する
// 例: git@github.com:user/repo.git -> github.com/user/repo
func (c *Client) URLToDirectoryName(gitURL string) (string, error) {
	u, err := giturls.Parse(gitURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse git URL: %w", err)
	}

	hostname := u.Hostname()
	if hostname == "" {
		hostname = u.Host
	}

	path := strings.TrimPrefix(u.Path, "/")
	path = strings.TrimSuffix(path, ".git")
	if path == "" {
		return "", fmt.Errorf("git URL has no repository path: %s", gitURL)
	}

	return filepath.Join(hostname, path), nil
}

// Clone は Git リポジトリをクローンする
func (c *Client) Clone(ctx context.Context, url, destDir string) error {
	auth, err := c.getSSHAuth()
	if err != nil {
		return fmt.Errorf("failed to setup SSH auth: %w", err)
	}

	opts := &git.CloneOptions{
		URL:      url,
		Progress: c.progress,
	}
	// nil の *ssh.PublicKeys をインターフェースに入れないようにする
	if auth != nil {
		opts.Auth = auth
	}

	if _, err := git.PlainCloneContext(ctx, destDir, false, opts); err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}

	return nil
}

// Pull は origin をフェッチして指定された ref をチェックアウトする
func (c *Client) Pull(ctx context.Context, repoPath, ref string) error {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}

	auth, err := c.getSSHAuth()
	if err != nil {
		return fmt.Errorf("failed to setup SSH auth: %w", err)
	}

	remote, err := repo.Remote("origin")
	if err != nil {
		return fmt.Errorf("failed to get remote: %w", err)
	}

	fetchOpts := &git.FetchOptions{
		Progress: c.progress,
		Tags:     git.AllTags,
	}
	if auth != nil {
		fetchOpts.Auth = auth
	}

	err = remote.FetchContext(ctx, fetchOpts)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to fetch: %w", err)
	}

	return c.checkout(repo, ref)
}

// CloneOrPull はリポジトリが存在しない場合はクローン、存在する場合は pull する
// ref が空の場合はリモートのデフォルトブランチを使う
func (c *Client) CloneOrPull(ctx context.Context, url, destDir, ref string) error {
	gitDir := filepath.Join(destDir, ".git")
	if _, err := os.Stat(gitDir); os.IsNotExist(err) {
		if err := c.Clone(ctx, url, destDir); err != nil {
			return err
		}

		repo, err := git.PlainOpen(destDir)
		if err != nil {
			return fmt.Errorf("failed to open repository: %w", err)
		}
		return c.checkout(repo, ref)
	}

	return c.Pull(ctx, destDir, ref)
}

// HeadCommit はチェックアウト中のコミットハッシュを返す
func (c *Client) HeadCommit(repoPath string) (string, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return "", fmt.Errorf("failed to open repository: %w", err)
	}

	hash, err := c.resolveRef(repo, "HEAD")
	if err != nil {
		return "", err
	}

	return hash.String(), nil
}

// checkout は ref をワークツリーに強制チェックアウトする
// リモートブランチを優先し、次にローカルブランチ、タグ、コミットハッシュの順で解決する
func (c *Client) checkout(repo *git.Repository, ref string) error {
	if ref == "" {
		return nil
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	var hash plumbing.Hash
	if remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", ref), true); err == nil {
		hash = remoteRef.Hash()
	} else {
		hash, err = c.resolveRef(repo, ref)
		if err != nil {
			return err
		}
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return fmt.Errorf("failed to checkout %s: %w", ref, err)
	}

	return nil
}

func (c *Client) getSSHAuth() (*ssh.PublicKeys, error) {
	if c.sshKeyPath == "" {
		return nil, nil
	}

	if _, err := os.Stat(c.sshKeyPath); os.IsNotExist(err) {
		return nil, nil
	}

	auth, err := ssh.NewPublicKeysFromFile("git", c.sshKeyPath, c.sshPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to load SSH key: %w", err)
	}

	return auth, nil
}

func (c *Client) resolveRef(repo *git.Repository, ref string) (plumbing.Hash, error) {
	if ref == "HEAD" {
		headRef, err := repo.Head()
		if err == nil {
			return headRef.Hash(), nil
		}
	}

	branchRef, err := repo.Reference(plumbing.NewBranchReferenceName(ref), true)
	if err == nil {
		return branchRef.Hash(), nil
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", ref), true)
	if err == nil {
		return remoteRef.Hash(), nil
	}

	tagRef, err := repo.Reference(plumbing.NewTagReferenceName(ref), true)
	if err == nil {
		// 注釈付きタグはコミットを指すように解決する
		if tag, err := repo.TagObject(tagRef.Hash()); err == nil {
			if commit, err := tag.Commit(); err == nil {
				return commit.Hash, nil
			}
		}
		return tagRef.Hash(), nil
	}

	hash := plumbing.NewHash(ref)
	if !hash.IsZero() {
		_, err := repo.CommitObject(hash)
		if err == nil {
			return hash, nil
		}
	}

	return plumbing.ZeroHash, fmt.Errorf("failed to resolve ref: %s", ref)
}
