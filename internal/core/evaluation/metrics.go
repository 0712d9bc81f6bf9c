package evaluation

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics は評価実行のメトリクスを保持する
// メトリクスは専用のレジストリに登録される
type Metrics struct {
	registry *prometheus.Registry

	// QuestionsTotal は分類ごとの評価件数
	QuestionsTotal *prometheus.CounterVec

	// AnswerDuration は1問あたりの回答時間（秒）
	AnswerDuration prometheus.Histogram
}

// NewMetrics は新しい Metrics を作成する
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		QuestionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docrag_eval_questions_total",
				Help: "評価した質問数（分類別）",
			},
			[]string{"outcome"},
		),
		AnswerDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docrag_eval_answer_duration_seconds",
				Help:    "質問1件あたりの回答時間の分布",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
	}

	// 0件の分類も出力されるよう初期化しておく
	for _, o := range Outcomes() {
		m.QuestionsTotal.WithLabelValues(string(o))
	}

	return m
}

// Observe は評価記録1件をメトリクスに反映する
func (m *Metrics) Observe(outcome Outcome, elapsed time.Duration) {
	m.QuestionsTotal.WithLabelValues(string(outcome)).Inc()
	m.AnswerDuration.Observe(elapsed.Seconds())
}

// Registry はメトリクスのレジストリを返す
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile はメトリクスを node_exporter の textfile 形式で書き出す
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
