package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioAnswers(t *testing.T) map[string]string {
	t.Helper()
	require.Len(t, assessmentScenario, len(assessmentQuestions))
	answers := make(map[string]string, len(assessmentQuestions))
	for i, q := range assessmentQuestions {
		answers[q.field] = assessmentScenario[i]
	}
	return answers
}

func TestHealthScoreScenario(t *testing.T) {
	answers := scenarioAnswers(t)
	assert.Equal(t, 85, HealthScore(answers))
	assert.Equal(t, HealthScore(answers), HealthScore(scenarioAnswers(t)))
}

func TestMaxHealthScoreMatchesTable(t *testing.T) {
	sum := 0
	for _, q := range assessmentQuestions {
		sum += q.max
	}
	assert.Equal(t, MaxHealthScore, sum)
	assert.Len(t, assessmentQuestions, 16)
}

// sampleAnswers returns representative valid inputs for a question, covering every band.
func sampleAnswers(q assessmentQuestion) []string {
	candidates := []string{
		"excellent", "good", "fair", "poor", "never", "rarely", "sometimes", "often", "yes", "no",
		"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12", "14", "15", "24", "30", "100",
		"4.5", "6.5", "7.5", "9.5", "10.5", "11.5",
	}
	var out []string
	for _, c := range candidates {
		if q.validate(c) == nil {
			out = append(out, c)
		}
	}
	return out
}

func TestHealthScoreBoundedPerQuestion(t *testing.T) {
	best := map[string]string{}
	worst := map[string]string{}
	for _, q := range assessmentQuestions {
		samples := sampleAnswers(q)
		require.NotEmpty(t, samples, q.field)
		hi, lo := -1, q.max+1
		for _, s := range samples {
			p := q.points(s)
			assert.GreaterOrEqual(t, p, 0, "%s=%s", q.field, s)
			assert.LessOrEqual(t, p, q.max, "%s=%s", q.field, s)
			if p > hi {
				hi = p
				best[q.field] = s
			}
			if p < lo {
				lo = p
				worst[q.field] = s
			}
		}
		assert.Equal(t, q.max, hi, "best answer for %s reaches its maximum", q.field)
		assert.Equal(t, 0, lo, "worst answer for %s scores zero", q.field)
	}
	assert.Equal(t, MaxHealthScore, HealthScore(best))
	assert.Equal(t, 0, HealthScore(worst))
}

func TestHealthScoreBands(t *testing.T) {
	tests := []struct {
		field  string
		answer string
		want   int
	}{
		{"overall_health", "Excellent", 10},
		{"fruit_veg_servings", "5", 8},
		{"fruit_veg_servings", "1", 2},
		{"fruit_veg_servings", "0", 0},
		{"sleep_hours", "9", 8},
		{"sleep_hours", "5", 4},
		{"sleep_hours", "11", 4},
		{"sleep_hours", "11.5", 0},
		{"sleep_hours", "4.5", 0},
		{"alcohol_per_week", "0", 6},
		{"alcohol_per_week", "7", 4},
		{"alcohol_per_week", "14", 2},
		{"alcohol_per_week", "15", 0},
		{"wake_refreshed", "often", 6},
		{"stress", "often", 0},
		{"sitting_breaks", "no", 0},
		{"smoking", "yes", 0},
	}
	for _, tt := range tests {
		got := HealthScore(map[string]string{tt.field: tt.answer})
		assert.Equal(t, tt.want, got, "%s=%s", tt.field, tt.answer)
	}
}

func TestHealthScoreIgnoresUnknownInput(t *testing.T) {
	assert.Equal(t, 0, HealthScore(nil))
	assert.Equal(t, 0, HealthScore(map[string]string{"overall_health": "meh", "sleep_hours": "lots", "other": "x"}))
}
