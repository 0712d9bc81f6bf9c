package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/doc-rag/internal/core/evaluation"
)

// EvalAction は質問セットで回答品質を評価するコマンドのアクション
func EvalAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	// 共通コンテキストの初期化
	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	cfg := appCtx.Config.Eval
	questionsFile := cfg.QuestionsFile
	if v := cmd.String("questions"); v != "" {
		questionsFile = v
	}
	resultsFile := cfg.ResultsFile
	if v := cmd.String("results"); v != "" {
		resultsFile = v
	}
	metricsFile := cfg.MetricsFile
	if v := cmd.String("metrics-file"); v != "" {
		metricsFile = v
	}
	topK, err := positiveIntFlag(cmd, "top-k", cfg.TopK)
	if err != nil {
		return err
	}
	concurrency, err := positiveIntFlag(cmd, "concurrency", cfg.Concurrency)
	if err != nil {
		return err
	}

	// 1. 質問の読み込み
	questions, err := evaluation.LoadQuestions(questionsFile)
	if err != nil {
		return err
	}

	slog.Info("評価を開始",
		"questions", len(questions),
		"topK", topK,
		"concurrency", concurrency,
	)

	// 2. 評価実行
	metrics := evaluation.NewMetrics()
	evaluator, err := appCtx.Container.Evaluator(ctx,
		evaluation.WithConcurrency(concurrency),
		evaluation.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	records, err := evaluator.Evaluate(ctx, questions, topK)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// 3. 結果の書き出し
	if err := evaluation.WriteReport(resultsFile, records); err != nil {
		return err
	}
	slog.Info("評価結果を書き出しました", "path", resultsFile)

	if metricsFile != "" {
		if err := metrics.WriteTextfile(metricsFile); err != nil {
			return err
		}
		slog.Info("メトリクスを書き出しました", "path", metricsFile)
	}

	return evaluation.PrintSummary(os.Stdout, evaluation.Summarize(records))
}
