package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	coresearch "github.com/jinford/doc-rag/internal/core/search"
)

// AskAction は質問応答コマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	showSources := cmd.Bool("show-sources")
	envFile := cmd.String("env")

	// 質問文の取得
	question := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("質問文を指定してください")
	}

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	topK, err := positiveIntFlag(cmd, "top-k", appCtx.Config.RAG.AnswerTopK)
	if err != nil {
		return err
	}
	slog.Info("質問応答を開始", "question", question, "topK", topK)

	askService, err := appCtx.Container.AskService(ctx)
	if err != nil {
		return err
	}

	result, err := askService.Answer(ctx, question, topK)
	if err != nil {
		slog.Error("質問応答に失敗しました", "error", err)
		return err
	}

	// 結果出力
	fmt.Println(result.Answer)

	// --show-sourcesフラグが指定されている場合、参照ソースも出力
	if showSources && len(result.Sources) > 0 {
		fmt.Println("\n--- Sources ---")
		printSources(result.Sources)
	}

	slog.Info("質問応答が完了しました", "sources", len(result.Sources))
	return nil
}

// RetrieveAction は検索結果のみを表示するコマンドのアクション
func RetrieveAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	query := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("検索クエリを指定してください")
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	topK, err := positiveIntFlag(cmd, "top-k", appCtx.Config.Eval.TopK)
	if err != nil {
		return err
	}
	slog.Info("検索を開始", "query", query, "topK", topK)

	searchService, err := appCtx.Container.SearchService(ctx)
	if err != nil {
		return err
	}

	results, err := searchService.Retrieve(ctx, query, topK)
	if err != nil {
		slog.Error("検索に失敗しました", "error", err)
		return err
	}

	if len(results) == 0 {
		fmt.Println("No relevant documents found.")
		return nil
	}
	printSources(results)
	return nil
}

func printSources(results []*coresearch.RetrievalResult) {
	for i, r := range results {
		fmt.Printf("[Source %d] %s (%s) score: %.4f\n", i+1, r.DocID, r.PassageID, r.Score)
	}
}
