package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jinford/doc-rag/internal/core/ask"
	"github.com/jinford/doc-rag/internal/core/search"
)

const (
	// DefaultTopK は評価時に取得するパッセージ数の既定値
	DefaultTopK = 5

	// DefaultConcurrency は評価の既定並列度（1は逐次実行）
	DefaultConcurrency = 1
)

// Evaluator は質問セットに対して回答を生成し、結果を分類する
type Evaluator struct {
	answerer    Answerer
	concurrency int
	metrics     *Metrics
	now         func() time.Time
	logger      *slog.Logger
}

// EvaluatorOption は Evaluator のオプション設定
type EvaluatorOption func(*Evaluator)

// WithEvaluatorLogger はロガーを設定する
func WithEvaluatorLogger(logger *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithConcurrency は同時に評価する質問数の上限を設定する
func WithConcurrency(n int) EvaluatorOption {
	return func(e *Evaluator) {
		e.concurrency = n
	}
}

// WithMetrics はメトリクスの記録先を設定する
func WithMetrics(m *Metrics) EvaluatorOption {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

// WithClock は時刻取得関数を差し替える
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) {
		e.now = now
	}
}

// NewEvaluator は新しい Evaluator を作成する
func NewEvaluator(answerer Answerer, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		answerer:    answerer,
		concurrency: DefaultConcurrency,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.concurrency <= 0 {
		e.concurrency = DefaultConcurrency
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Evaluate は各質問に回答させて分類した記録を質問と同じ順序で返す
// 個々の質問の失敗はバッチ全体を止めない。topK が1未満ならどの質問も実行しない
func (e *Evaluator) Evaluate(ctx context.Context, questions []string, topK int) ([]Record, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w (got %d)", search.ErrInvalidTopK, topK)
	}

	total := len(questions)
	records := make([]Record, total)
	if total == 0 {
		return records, nil
	}

	e.logger.Info("starting evaluation",
		"questions", total,
		"topK", topK,
		"concurrency", e.concurrency,
	)

	// ワーカープールで並列実行（結果は入力順のスロットに格納）
	var mu sync.Mutex
	completed := 0
	semaphore := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup

	for i, q := range questions {
		wg.Add(1)

		go func(index int, question string) {
			defer wg.Done()

			// セマフォを取得（並列度を制限）
			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				records[index] = e.record(question, nil, ctx.Err(), 0)
				return
			}

			records[index] = e.evaluateOne(ctx, question, topK)

			mu.Lock()
			completed++
			done := completed
			mu.Unlock()

			e.logger.Info("question evaluated",
				"progress", done,
				"total", total,
				"outcome", records[index].Outcome,
				"seconds", records[index].TimeTakenSec,
			)
		}(i, q)
	}

	// すべてのワーカーが完了するまで待機
	wg.Wait()

	return records, nil
}

// evaluateOne は1問を評価する
func (e *Evaluator) evaluateOne(ctx context.Context, question string, topK int) Record {
	start := e.now()
	answer, err := e.answerer.Answer(ctx, question, topK)
	elapsed := e.now().Sub(start)

	if err != nil {
		e.logger.Warn("answer builder failed", "question", question, "error", err)
	}

	rec := e.record(question, answer, err, elapsed)
	if e.metrics != nil {
		e.metrics.Observe(rec.Outcome, elapsed)
	}
	return rec
}

func (e *Evaluator) record(question string, answer *ask.Answer, err error, elapsed time.Duration) Record {
	var (
		text    string
		sources = []*search.RetrievalResult{}
	)
	if answer != nil {
		text = answer.Answer
		if answer.Sources != nil {
			sources = answer.Sources
		}
	}

	outcome, reason := Classify(text, sources, err)

	return Record{
		Question:      question,
		Answer:        text,
		Sources:       sources,
		TimeTakenSec:  roundSeconds(elapsed),
		Failed:        outcome.Failed(),
		FailureReason: reason,
		Outcome:       outcome,
	}
}

// roundSeconds は経過時間を小数点以下2桁の秒に丸める
func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
