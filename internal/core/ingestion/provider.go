package ingestion

import "context"

// SourceProvider はコーパスの取得元ごとの実装を提供するインターフェース
// ディレクトリ、Gitリポジトリなど複数の取得元に対応するための拡張ポイント
type SourceProvider interface {
	// FetchDocuments は取得元からドキュメント一覧をファイル名の辞書順で取得する
	FetchDocuments(ctx context.Context) ([]*Document, error)

	// Describe はログ出力用に取得元を表す文字列を返す
	Describe() string
}
