package evaluation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.Observe(OutcomeSuccess, 2*time.Second)
	m.Observe(OutcomeNoCitation, 500*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(m.AnswerDuration))
	assert.Equal(t, len(Outcomes()), testutil.CollectAndCount(m.QuestionsTotal))

	path := filepath.Join(t.TempDir(), "eval.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `docrag_eval_questions_total{outcome="success"} 1`)
	assert.Contains(t, string(data), `docrag_eval_questions_total{outcome="no_sources"} 0`)
	assert.Contains(t, string(data), "docrag_eval_answer_duration_seconds_count 2")
}
