package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/doc-rag/internal/app/cli"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "doc-rag",
		Usage: "ドキュメントコーパスに対する検索拡張生成（RAG）と回答品質評価",
		Commands: []*cli.Command{
			{
				Name:  "index",
				Usage: "コーパスを分割・Embeddingしてインデックスを再構築",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "repo",
						Usage: "GitリポジトリURL（省略時は RAG_DATA_DIR を読み込む）",
					},
					&cli.StringFlag{
						Name:  "ref",
						Usage: "ブランチ名またはタグ名（省略時はリモートのdefault_branch）",
					},
					&cli.StringFlag{
						Name:  "subdir",
						Usage: "リポジトリ内のドキュメントディレクトリ",
					},
				},
				Action: appcli.IndexAction,
			},
			{
				Name:      "retrieve",
				Usage:     "クエリに関連するパッセージを表示",
				ArgsUsage: "QUERY",
				Flags: []cli.Flag{
					envFlag(),
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "取得件数（省略時は RAG_EVAL_TOP_K）",
					},
				},
				Action: appcli.RetrieveAction,
			},
			{
				Name:      "ask",
				Usage:     "コーパスに基づいて質問に回答",
				ArgsUsage: "QUESTION",
				Flags: []cli.Flag{
					envFlag(),
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "回答に使うパッセージ数（省略時は RAG_ANSWER_TOP_K）",
					},
					&cli.BoolFlag{
						Name:  "show-sources",
						Usage: "参照したパッセージを表示",
					},
				},
				Action: appcli.AskAction,
			},
			{
				Name:  "eval",
				Usage: "質問セットで回答品質を評価",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "questions",
						Usage: "質問ファイル（1行1問、省略時は RAG_QUESTIONS_FILE）",
					},
					&cli.StringFlag{
						Name:  "results",
						Usage: "評価結果JSONの出力先（省略時は RAG_RESULTS_FILE）",
					},
					&cli.StringFlag{
						Name:  "metrics-file",
						Usage: "Prometheus textfile 形式のメトリクス出力先",
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "質問ごとの取得件数（省略時は RAG_EVAL_TOP_K）",
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "同時に評価する質問数（省略時は RAG_EVAL_CONCURRENCY）",
					},
				},
				Action: appcli.EvalAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
