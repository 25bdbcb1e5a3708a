package genai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
)

const healthSystemPrompt = `You are a careful health assistant talking to a user over WhatsApp.
Keep answers short, plain and friendly. Use simple formatting that renders in a chat app
(short paragraphs, "-" bullets, no tables, no markdown headers). You are not a doctor: never
give a definitive diagnosis, and tell the user to seek urgent care when warning signs apply.`

// HealthAnalyst turns structured health data into natural-language analysis and plans.
type HealthAnalyst struct {
	client ClientInterface
}

// NewHealthAnalyst creates an analyst on top of a chat client.
func NewHealthAnalyst(client ClientInterface) *HealthAnalyst {
	return &HealthAnalyst{client: client}
}

func (a *HealthAnalyst) generate(ctx context.Context, task, userPrompt string) (string, error) {
	out, err := a.client.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(healthSystemPrompt),
		openai.UserMessage(userPrompt),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", task, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%s: %w", task, ErrEmptyOutput)
	}
	return out, nil
}

// AnalyzeSymptoms returns one combined block: possible causes, home care and red flags.
func (a *HealthAnalyst) AnalyzeSymptoms(ctx context.Context, symptoms, severity, duration string) (string, error) {
	prompt := fmt.Sprintf(`A user reports the following.
Symptoms: %s
Severity: %s
Duration: %s

Reply with three short sections: possible causes, home-care advice, and red flags that
mean they should see a doctor right away.`, symptoms, severity, duration)
	return a.generate(ctx, "analyze symptoms", prompt)
}

// AnalyzeAssessment comments on a completed health assessment and its score.
func (a *HealthAnalyst) AnalyzeAssessment(ctx context.Context, answers map[string]string, score int) (string, error) {
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", strings.ReplaceAll(k, "_", " "), answers[k])
	}
	prompt := fmt.Sprintf(`A user completed a lifestyle health assessment and scored %d.
Answers:
%s
Summarize their strengths, the two or three habits with the most room to improve, and one
concrete next step for each.`, score, b.String())
	return a.generate(ctx, "analyze assessment", prompt)
}

// GenerateFitnessPlan produces a weekly workout plan.
func (a *HealthAnalyst) GenerateFitnessPlan(ctx context.Context, goal, activityLevel string, daysPerWeek, minutes int) (string, error) {
	prompt := fmt.Sprintf(`Create a weekly fitness plan.
Goal: %s
Current activity level: %s
Days per week: %d
Minutes per session: %d

List each training day with a short warm-up, main exercises and cool-down.`, goal, activityLevel, daysPerWeek, minutes)
	return a.generate(ctx, "generate fitness plan", prompt)
}

// GenerateMealPlan produces a one-day meal plan.
func (a *HealthAnalyst) GenerateMealPlan(ctx context.Context, dietPreference, healthGoal string, mealsPerDay int) (string, error) {
	prompt := fmt.Sprintf(`Create a one-day meal plan.
Diet preference: %s
Health goal: %s
Meals per day: %d

Give each meal a name, the main ingredients and an approximate portion.`, dietPreference, healthGoal, mealsPerDay)
	return a.generate(ctx, "generate meal plan", prompt)
}

// AnswerQuestion answers a free-text health question.
func (a *HealthAnalyst) AnswerQuestion(ctx context.Context, question string) (string, error) {
	return a.generate(ctx, "answer question", "Question: "+question)
}
