package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	coreingestion "github.com/jinford/doc-rag/internal/core/ingestion"
)

// IndexAction はコーパスを分割・Embeddingしてインデックスを再構築するコマンドのアクション
func IndexAction(ctx context.Context, cmd *cli.Command) error {
	repoURL := cmd.String("repo")
	ref := cmd.String("ref")
	subdir := cmd.String("subdir")
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := executeIndexing(ctx, appCtx, repoURL, ref, subdir); err != nil {
		slog.Error("インデックス構築に失敗しました", "error", err)
		return err
	}

	slog.Info("インデックス構築が完了しました")
	return nil
}

// executeIndexing はドキュメント取得、分割、インデックス構築と保存を実行する
func executeIndexing(ctx context.Context, appCtx *AppContext, repoURL, ref, subdir string) error {
	cont := appCtx.Container

	// 1. ドキュメント取得
	provider := cont.SourceProvider(repoURL, ref, subdir)
	slog.Info("インデックス構築を開始", "source", provider.Describe())

	docs, err := provider.FetchDocuments(ctx)
	if err != nil {
		return fmt.Errorf("ドキュメントの取得に失敗: %w", err)
	}

	// 2. パッセージ分割
	corpus, err := coreingestion.BuildCorpus(docs, cont.SplitOptions())
	if err != nil {
		return fmt.Errorf("コーパスの構築に失敗: %w", err)
	}
	slog.Info("コーパスを構築しました", "documents", len(docs), "passages", corpus.Len())

	// 3. インデックス構築と保存
	result, err := cont.IndexService.BuildAndSave(ctx, corpus)
	if err != nil {
		return err
	}

	slog.Info("インデックスを保存しました",
		"buildID", result.BuildID,
		"passages", result.Passages,
		"dimension", result.Index.Dimension(),
		"duration", result.Duration,
	)
	return nil
}
