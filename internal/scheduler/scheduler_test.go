package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/BTreeMap/HealthPipe/internal/models"
	"github.com/BTreeMap/HealthPipe/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sent struct {
	to, body string
}

// recordingSender records deliveries and can fail or panic for chosen users.
type recordingSender struct {
	mu      sync.Mutex
	msgs    []sent
	failFor map[string]bool
	panicOn map[string]bool
	ch      chan sent
}

func newRecordingSender() *recordingSender {
	return &recordingSender{failFor: map[string]bool{}, panicOn: map[string]bool{}, ch: make(chan sent, 16)}
}

func (r *recordingSender) SendMessage(ctx context.Context, to, body string) error {
	if r.panicOn[to] {
		panic("transport exploded")
	}
	if r.failFor[to] {
		r.ch <- sent{to: to}
		return errors.New("send failed")
	}
	r.mu.Lock()
	r.msgs = append(r.msgs, sent{to, body})
	r.mu.Unlock()
	r.ch <- sent{to, body}
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func waitSent(t *testing.T, ch <-chan sent) sent {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reminder")
		return sent{}
	}
}

func TestRuleSpec(t *testing.T) {
	assert.Equal(t, "0 7 * * *", Daily(7, 0).Spec())
	assert.Equal(t, "30 8 * * 1,3,5", Weekly(8, 30, time.Friday, time.Monday, time.Wednesday, time.Monday).Spec())
	assert.Equal(t, "daily at 07:00", Daily(7, 0).String())
	assert.Equal(t, "on Mon, Wed at 21:05", Weekly(21, 5, time.Wednesday, time.Monday).String())

	assert.Error(t, Daily(24, 0).Validate())
	assert.Error(t, Daily(3, 60).Validate())
	assert.Error(t, Weekly(3, 0, time.Weekday(9)).Validate())
	assert.NoError(t, Weekly(0, 0, time.Sunday, time.Saturday).Validate())
}

func TestScheduleOneShotFires(t *testing.T) {
	sender := newRecordingSender()
	s := NewScheduler(sender, nil)
	defer s.Stop()

	r := models.NewReminder("15551234567", models.ReminderMedication, map[string]string{
		models.PayloadMedicationName: "Ibuprofen",
		models.PayloadDosage:         "200mg",
	})
	id, err := s.ScheduleOneShot(r, time.Now().Add(20*time.Millisecond))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	m := waitSent(t, sender.ch)
	assert.Equal(t, "15551234567", m.to)
	assert.Contains(t, m.body, "Ibuprofen (200mg)")
	assert.Eventually(t, func() bool { return len(s.List()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestScheduleOneShotPastInstantNeverArmed(t *testing.T) {
	sender := newRecordingSender()
	now := time.Date(2025, 4, 27, 10, 0, 0, 0, time.UTC)
	s := NewScheduler(sender, nil, WithClock(func() time.Time { return now }))
	defer s.Stop()

	r := models.NewReminder("u1", models.ReminderPeriod, map[string]string{models.PayloadPredictedDate: "2025-04-29"})
	id, err := s.ScheduleOneShot(r, time.Date(2025, 4, 26, 9, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrPastInstant)
	assert.Empty(t, id)

	_, err = s.ScheduleOneShot(r, now)
	assert.ErrorIs(t, err, ErrPastInstant)

	assert.Empty(t, s.List())
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, sender.count())
}

func TestCancelDisarmsOneShot(t *testing.T) {
	sender := newRecordingSender()
	s := NewScheduler(sender, nil)
	defer s.Stop()

	id, err := s.ScheduleOneShot(models.NewReminder("u1", models.ReminderAssessmentNudge, nil), time.Now().Add(40*time.Millisecond))
	require.NoError(t, err)
	require.Len(t, s.List(), 1)

	require.NoError(t, s.Cancel(id))
	assert.ErrorIs(t, s.Cancel(id), ErrReminderNotFound)
	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, sender.count())
}

func TestFailingDeliveryDoesNotAffectOthers(t *testing.T) {
	sender := newRecordingSender()
	sender.failFor["bad"] = true
	sender.panicOn["boom"] = true
	s := NewScheduler(sender, nil)
	defer s.Stop()

	at := time.Now().Add(20 * time.Millisecond)
	_, err := s.ScheduleOneShot(models.NewReminder("boom", models.ReminderAssessmentNudge, nil), at)
	require.NoError(t, err)
	_, err = s.ScheduleOneShot(models.NewReminder("bad", models.ReminderAssessmentNudge, nil), at)
	require.NoError(t, err)
	_, err = s.ScheduleOneShot(models.NewReminder("good", models.ReminderAssessmentNudge, nil), at.Add(20*time.Millisecond))
	require.NoError(t, err)

	got := map[string]bool{}
	for range 2 {
		got[waitSent(t, sender.ch).to] = true
	}
	assert.True(t, got["bad"])
	assert.True(t, got["good"])
	assert.Equal(t, 1, sender.count())
}

func TestScheduleRecurringListsNextRun(t *testing.T) {
	loc := time.FixedZone("test", 2*3600)
	s := NewScheduler(newRecordingSender(), nil, WithLocation(loc))
	defer s.Stop()

	id, err := s.ScheduleRecurring(models.NewReminder("u1", models.ReminderFitnessPlan, nil), Daily(7, 0))
	require.NoError(t, err)

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, "daily at 07:00", list[0].Schedule)
	next := list[0].NextRun.In(loc)
	assert.Equal(t, 7, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.True(t, next.After(time.Now()))

	_, err = s.ScheduleRecurring(models.NewReminder("u1", models.ReminderMedication, nil), Daily(25, 0))
	assert.Error(t, err)

	require.NoError(t, s.Cancel(id))
	assert.Empty(t, s.List())
}

func TestRecurringFailureKeepsRule(t *testing.T) {
	sender := newRecordingSender()
	sender.failFor["u1"] = true
	s := NewScheduler(sender, nil)
	defer s.Stop()

	r := models.NewReminder("u1", models.ReminderMedication, nil)
	_, err := s.ScheduleRecurring(r, Weekly(9, 0, time.Monday))
	require.NoError(t, err)

	r.ID = s.List()[0].ID
	s.fire(r)
	waitSent(t, sender.ch)
	assert.Len(t, s.List(), 1)
}

func TestPlanRemindersReadLatestPlan(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	require.NoError(t, st.CreateProfile(ctx, models.UserProfile{UserID: "u1", Name: "Jane"}))
	require.NoError(t, st.SaveFitnessPlan(ctx, "u1", models.FitnessPlan{Plan: "old plan"}))
	require.NoError(t, st.SaveFitnessPlan(ctx, "u1", models.FitnessPlan{Plan: "walk 30 minutes"}))

	sender := newRecordingSender()
	s := NewScheduler(sender, st)
	defer s.Stop()

	s.fire(models.NewReminder("u1", models.ReminderFitnessPlan, nil))
	m := waitSent(t, sender.ch)
	assert.Contains(t, m.body, "walk 30 minutes")

	// No meal plan stored: nothing is sent.
	s.fire(models.NewReminder("u1", models.ReminderMealPlan, nil))
	s.fire(models.NewReminder("ghost", models.ReminderFitnessPlan, nil))
	assert.Equal(t, 1, sender.count())
}

func TestStopRejectsNewReminders(t *testing.T) {
	s := NewScheduler(newRecordingSender(), nil)
	_, err := s.ScheduleOneShot(models.NewReminder("u1", models.ReminderAssessmentNudge, nil), time.Now().Add(time.Hour))
	require.NoError(t, err)

	s.Stop()
	s.Stop()
	assert.Empty(t, s.List())

	_, err = s.ScheduleOneShot(models.NewReminder("u1", models.ReminderAssessmentNudge, nil), time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrStopped)
	_, err = s.ScheduleRecurring(models.NewReminder("u1", models.ReminderMealPlan, nil), Daily(8, 0))
	assert.ErrorIs(t, err, ErrStopped)
}
