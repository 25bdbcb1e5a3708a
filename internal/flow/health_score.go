package flow

import (
	"strconv"
	"strings"
)

// MaxHealthScore is the sum of every assessment question's best answer.
const MaxHealthScore = 104

// assessmentQuestion is one scored step of the health assessment.
type assessmentQuestion struct {
	field    string
	prompt   string
	validate Validator
	points   func(answer string) int
	max      int
}

func ordinal(table map[string]int) func(string) int {
	return func(a string) int {
		return table[norm(a)]
	}
}

var (
	healthBands    = map[string]int{"excellent": 10, "good": 7, "fair": 4, "poor": 0}
	symptomBands   = map[string]int{"never": 6, "rarely": 4, "sometimes": 2, "often": 0}
	refreshedBands = map[string]int{"often": 6, "sometimes": 4, "rarely": 2, "never": 0}
)

// favorable awards pts when the answer matches the healthy choice.
func favorable(want string, pts int) func(string) int {
	return func(a string) int {
		if norm(a) == want {
			return pts
		}
		return 0
	}
}

// countBands scores servings per day and exercise days per week.
func countBands(a string) int {
	n, err := strconv.Atoi(strings.TrimSpace(a))
	switch {
	case err != nil:
		return 0
	case n >= 5:
		return 8
	case n >= 3:
		return 5
	case n >= 1:
		return 2
	default:
		return 0
	}
}

func sleepBands(a string) int {
	h, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	switch {
	case err != nil:
		return 0
	case h >= 7 && h <= 9:
		return 8
	case (h >= 5 && h < 7) || (h > 9 && h <= 11):
		return 4
	default:
		return 0
	}
}

func alcoholBands(a string) int {
	n, err := strconv.Atoi(strings.TrimSpace(a))
	switch {
	case err != nil || n < 0:
		return 0
	case n == 0:
		return 6
	case n <= 7:
		return 4
	case n <= 14:
		return 2
	default:
		return 0
	}
}

var frequencyOptions = []string{"never", "rarely", "sometimes", "often"}

var assessmentQuestions = []assessmentQuestion{
	{
		field:    "overall_health",
		prompt:   "How would you rate your overall health? Reply *excellent*, *good*, *fair* or *poor*.",
		validate: oneOf("excellent", "good", "fair", "poor"),
		points:   ordinal(healthBands),
		max:      10,
	},
	{
		field:    "fatigue",
		prompt:   "How often do you feel tired even after a full night's sleep? Reply *never*, *rarely*, *sometimes* or *often*.",
		validate: oneOf(frequencyOptions...),
		points:   ordinal(symptomBands),
		max:      6,
	},
	{
		field:    "fruit_veg_servings",
		prompt:   "How many servings of fruit and vegetables do you eat on a typical day?",
		validate: intRange(0, 30, "the number of servings"),
		points:   countBands,
		max:      8,
	},
	{
		field:    "sugary_drinks",
		prompt:   "Do you drink sugary drinks most days? Reply *yes* or *no*.",
		validate: oneOf("yes", "no"),
		points:   favorable("no", 6),
		max:      6,
	},
	{
		field:    "exercise_days",
		prompt:   "On how many days a week do you exercise for at least 30 minutes? (0-7)",
		validate: intRange(0, 7, "the number of days"),
		points:   countBands,
		max:      8,
	},
	{
		field:    "sitting_breaks",
		prompt:   "When you sit for long periods, do you take regular breaks to move? Reply *yes* or *no*.",
		validate: oneOf("yes", "no"),
		points:   favorable("yes", 6),
		max:      6,
	},
	{
		field:    "sleep_hours",
		prompt:   "How many hours do you usually sleep per night?",
		validate: floatRange(0, 24, "your hours of sleep"),
		points:   sleepBands,
		max:      8,
	},
	{
		field:    "wake_refreshed",
		prompt:   "How often do you wake up feeling refreshed? Reply *often*, *sometimes*, *rarely* or *never*.",
		validate: oneOf("often", "sometimes", "rarely", "never"),
		points:   ordinal(refreshedBands),
		max:      6,
	},
	{
		field:    "stress",
		prompt:   "How often do you feel stressed or anxious? Reply *never*, *rarely*, *sometimes* or *often*.",
		validate: oneOf(frequencyOptions...),
		points:   ordinal(symptomBands),
		max:      6,
	},
	{
		field:    "relaxation",
		prompt:   "Do you make time to relax or unwind most days? Reply *yes* or *no*.",
		validate: oneOf("yes", "no"),
		points:   favorable("yes", 6),
		max:      6,
	},
	{
		field:    "chronic_conditions",
		prompt:   "Have you been diagnosed with a chronic condition such as diabetes, hypertension or asthma? Reply *yes* or *no*.",
		validate: oneOf("yes", "no"),
		points:   favorable("no", 6),
		max:      6,
	},
	{
		field:    "family_history",
		prompt:   "Does your close family have a history of heart disease, diabetes or cancer? Reply *yes* or *no*.",
		validate: oneOf("yes", "no"),
		points:   favorable("no", 5),
		max:      5,
	},
	{
		field:    "smoking",
		prompt:   "Do you smoke or use tobacco? Reply *yes* or *no*.",
		validate: oneOf("yes", "no"),
		points:   favorable("no", 6),
		max:      6,
	},
	{
		field:    "alcohol_per_week",
		prompt:   "How many alcoholic drinks do you have in a typical week?",
		validate: intRange(0, 100, "the number of drinks"),
		points:   alcoholBands,
		max:      6,
	},
	{
		field:    "aches",
		prompt:   "How often do you get headaches or body aches? Reply *never*, *rarely*, *sometimes* or *often*.",
		validate: oneOf(frequencyOptions...),
		points:   ordinal(symptomBands),
		max:      6,
	},
	{
		field:    "weight_changes",
		prompt:   "Have you had an unexplained weight change in the last six months? Reply *yes* or *no*.",
		validate: oneOf("yes", "no"),
		points:   favorable("no", 5),
		max:      5,
	},
}

// HealthScore sums the points for every assessment answer. Missing or unrecognized answers
// score zero, so the result is always in [0, MaxHealthScore].
func HealthScore(answers map[string]string) int {
	total := 0
	for _, q := range assessmentQuestions {
		a, ok := answers[q.field]
		if !ok {
			continue
		}
		total += q.points(a)
	}
	return total
}

func assessmentSteps() []Step {
	steps := make([]Step, len(assessmentQuestions))
	for i, q := range assessmentQuestions {
		steps[i] = Step{Field: q.field, Prompt: q.prompt, Validate: q.validate}
	}
	return steps
}
