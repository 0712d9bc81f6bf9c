package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-rag/internal/platform/config"
	"github.com/jinford/doc-rag/internal/platform/container"
	"github.com/jinford/doc-rag/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.ServiceContainer
}

// NewAppContext は設定ファイルを読み込み、依存関係を構築して AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	// 設定の読み込み
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	// ロガーの初期化
	appLogger := newLogger(cfg.Log)

	// コンテナの初期化
	cont, err := container.NewContainer(ctx, cfg, container.WithContainerLogger(appLogger))
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
	}, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	logCfg := logger.DefaultConfig()
	logCfg.Format = cfg.Format

	level, err := logger.ParseLevel(cfg.Level)
	logCfg.Level = level

	l := logger.New(logCfg)
	if err != nil {
		l.Warn("ログレベルが不正なため info を使用します", "error", err)
	}
	return l
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.Container != nil {
		return ac.Container.Logger()
	}
	return slog.Default()
}

// positiveIntFlag は int フラグの値を返す。未指定の場合は fallback を返す
// 指定された値が1未満ならエラー
func positiveIntFlag(cmd *cli.Command, name string, fallback int) (int, error) {
	if !cmd.IsSet(name) {
		return fallback, nil
	}
	value := cmd.Int(name)
	if value < 1 {
		return 0, fmt.Errorf("--%s must be >= 1 (got %d)", name, value)
	}
	return value, nil
}
