package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/HealthPipe/internal/models"
	"github.com/BTreeMap/HealthPipe/internal/scheduler"
	"github.com/BTreeMap/HealthPipe/internal/store"
)

var testNow = time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

type symptomCall struct {
	symptoms, severity, duration string
}

// fakeAnalyst returns canned text and records its inputs.
type fakeAnalyst struct {
	mu           sync.Mutex
	err          error
	symptomCalls []symptomCall
	lastScore    int
	lastAnswers  map[string]string
	block        chan struct{}
	entered      chan struct{}
}

func (f *fakeAnalyst) wait() {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
}

func (f *fakeAnalyst) AnalyzeSymptoms(ctx context.Context, symptoms, severity, duration string) (string, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symptomCalls = append(f.symptomCalls, symptomCall{symptoms, severity, duration})
	if f.err != nil {
		return "", f.err
	}
	return "Likely a viral infection. Rest and drink fluids.", nil
}

func (f *fakeAnalyst) AnalyzeAssessment(ctx context.Context, answers map[string]string, score int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastScore = score
	f.lastAnswers = answers
	if f.err != nil {
		return "", f.err
	}
	return "You sleep well. Try to eat more vegetables.", nil
}

func (f *fakeAnalyst) GenerateFitnessPlan(ctx context.Context, goal, activityLevel string, daysPerWeek, minutes int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "Mon: brisk walk. Wed: body-weight circuit. Fri: light jog.", nil
}

func (f *fakeAnalyst) GenerateMealPlan(ctx context.Context, dietPreference, healthGoal string, mealsPerDay int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "Breakfast: oats. Lunch: lentil salad. Dinner: grilled tofu.", nil
}

func (f *fakeAnalyst) AnswerQuestion(ctx context.Context, question string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "Yes, in moderation.", nil
}

type oneShot struct {
	reminder models.Reminder
	at       time.Time
}

type recurring struct {
	reminder models.Reminder
	rule     scheduler.Rule
}

// fakeScheduler records reminders and rejects past instants like the real scheduler.
type fakeScheduler struct {
	mu        sync.Mutex
	now       func() time.Time
	oneShots  []oneShot
	recurring []recurring
}

func (f *fakeScheduler) ScheduleOneShot(r models.Reminder, at time.Time) (string, error) {
	if !at.After(f.now()) {
		return "", scheduler.ErrPastInstant
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.oneShots = append(f.oneShots, oneShot{r, at})
	return "one-shot", nil
}

func (f *fakeScheduler) ScheduleRecurring(r models.Reminder, rule scheduler.Rule) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recurring = append(f.recurring, recurring{r, rule})
	return "recurring", nil
}

// failingStore fails selected writes.
type failingStore struct {
	*store.InMemoryStore
	failDiagnosis bool
}

func (s *failingStore) AddDiagnosis(ctx context.Context, userID string, rec models.DiagnosisRecord) error {
	if s.failDiagnosis {
		return errors.New("database unavailable")
	}
	return s.InMemoryStore.AddDiagnosis(ctx, userID, rec)
}

type harness struct {
	t         *testing.T
	sessions  *InMemorySessionStore
	store     *store.InMemoryStore
	analyst   *fakeAnalyst
	scheduler *fakeScheduler
	engine    *Engine
	router    *Router
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		sessions: NewInMemorySessionStore(),
		store:    store.NewInMemoryStore(),
		analyst:  &fakeAnalyst{},
	}
	now := func() time.Time { return testNow }
	h.scheduler = &fakeScheduler{now: now}
	h.engine = NewEngine(h.sessions, h.store, h.analyst, h.scheduler, WithClock(now), WithLocation(time.UTC))
	h.router = NewRouter(h.engine)
	return h
}

func (h *harness) send(user, text string) string {
	return h.router.Handle(context.Background(), user, text)
}

func (h *harness) sendAll(user string, texts ...string) string {
	var reply string
	for _, text := range texts {
		reply = h.send(user, text)
	}
	return reply
}

func (h *harness) session(user string) models.Session {
	return h.sessions.Get(user)
}

var onboardingAnswers = []string{"Jane", "29", "female", "165", "60", "Boston", "none", "none", "none", "none", "regular"}

// onboard registers a female user with a regular cycle and declines the assessment.
func (h *harness) onboard(user string) {
	h.t.Helper()
	h.send(user, "start")
	h.send(user, "accept")
	h.sendAll(user, onboardingAnswers...)
	h.send(user, "never")
	require.True(h.t, h.session(user).State.IsIdle())
	ok, err := h.store.UserExists(context.Background(), user)
	require.NoError(h.t, err)
	require.True(h.t, ok)
}

var assessmentScenario = []string{
	"good", "rarely", "3", "no", "4", "yes", "7", "often",
	"sometimes", "yes", "no", "no", "no", "2", "rarely", "no",
}
