// Package scheduler arms reminder notifications for HealthPipe users.
//
// One-shot reminders run on their own timer and recurring reminders run on a cron engine.
// Each reminder is an immutable snapshot; when it fires it is rendered (re-reading stored
// plans where the text depends on current data) and sent through the transport.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/BTreeMap/HealthPipe/internal/metrics"
	"github.com/BTreeMap/HealthPipe/internal/models"
)

const defaultSendTimeout = 30 * time.Second

var (
	// ErrPastInstant is returned when a one-shot reminder targets an instant that has already passed.
	ErrPastInstant = errors.New("reminder time is in the past")
	// ErrStopped is returned when scheduling on a stopped scheduler.
	ErrStopped = errors.New("scheduler stopped")
	// ErrReminderNotFound is returned by Cancel for unknown IDs.
	ErrReminderNotFound = errors.New("reminder not found")
)

// Sender delivers a rendered reminder to a user.
type Sender interface {
	SendMessage(ctx context.Context, to, body string) error
}

// PlanReader reads the plans that fitness and meal reminders render.
type PlanReader interface {
	GetLatestFitnessPlan(ctx context.Context, userID string) (models.FitnessPlan, error)
	GetLatestMealPlan(ctx context.Context, userID string) (models.MealPlan, error)
}

// Opts holds configuration options for the scheduler.
type Opts struct {
	Location    *time.Location
	Now         func() time.Time
	SendTimeout time.Duration
}

// Option defines a configuration option for the scheduler.
type Option func(*Opts)

// WithLocation sets the time zone recurring rules are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) {
		o.Location = loc
	}
}

// WithClock overrides the clock used to place one-shot reminders.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// WithSendTimeout bounds each reminder delivery.
func WithSendTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.SendTimeout = d
	}
}

// entry tracks one armed reminder.
type entry struct {
	reminder models.Reminder
	schedule string
	timer    *time.Timer
	at       time.Time
	cronID   cron.EntryID
}

// Scheduler owns all armed reminders.
type Scheduler struct {
	sender      Sender
	plans       PlanReader
	cron        *cron.Cron
	loc         *time.Location
	now         func() time.Time
	sendTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	entries  map[string]*entry
	stopped  bool
	inflight sync.WaitGroup
	stopOnce sync.Once
}

// NewScheduler creates and starts a scheduler. plans may be nil when no plan reminders are used.
func NewScheduler(sender Sender, plans PlanReader, opts ...Option) *Scheduler {
	cfg := Opts{Location: time.Local, Now: time.Now, SendTimeout: defaultSendTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)
	c.Start()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sender:      sender,
		plans:       plans,
		cron:        c,
		loc:         cfg.Location,
		now:         cfg.Now,
		sendTimeout: cfg.SendTimeout,
		ctx:         ctx,
		cancel:      cancel,
		entries:     make(map[string]*entry),
	}
}

func (s *Scheduler) prepare(r models.Reminder) (models.Reminder, error) {
	if r.UserID == "" {
		return r, fmt.Errorf("reminder has no user")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	return r, nil
}

// ScheduleOneShot arms r to fire once at the given instant and returns its ID.
// Instants that are not in the future are never armed and yield ErrPastInstant.
func (s *Scheduler) ScheduleOneShot(r models.Reminder, at time.Time) (string, error) {
	r, err := s.prepare(r)
	if err != nil {
		return "", err
	}
	delay := at.Sub(s.now())
	if delay <= 0 {
		slog.Info("Scheduler skipping one-shot reminder in the past", "user", r.UserID, "kind", r.Kind, "at", at)
		return "", ErrPastInstant
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return "", ErrStopped
	}
	e := &entry{reminder: r, schedule: "once", at: at}
	id := r.ID
	s.inflight.Add(1)
	e.timer = time.AfterFunc(delay, func() {
		defer s.inflight.Done()
		s.mu.Lock()
		_, live := s.entries[id]
		delete(s.entries, id)
		metrics.RemindersActive.Set(float64(len(s.entries)))
		s.mu.Unlock()
		if live {
			s.fire(r)
		}
	})
	s.entries[id] = e
	metrics.RemindersArmed.WithLabelValues(string(r.Kind), "once").Inc()
	metrics.RemindersActive.Set(float64(len(s.entries)))

	slog.Debug("Scheduler ScheduleOneShot succeeded", "id", id, "user", r.UserID, "kind", r.Kind, "at", at)
	return id, nil
}

// ScheduleRecurring arms r on a recurring rule and returns its ID.
func (s *Scheduler) ScheduleRecurring(r models.Reminder, rule Rule) (string, error) {
	r, err := s.prepare(r)
	if err != nil {
		return "", err
	}
	if err := rule.Validate(); err != nil {
		return "", fmt.Errorf("invalid rule: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return "", ErrStopped
	}
	cronID, err := s.cron.AddFunc(rule.Spec(), func() { s.fire(r) })
	if err != nil {
		return "", fmt.Errorf("add cron job %q: %w", rule.Spec(), err)
	}
	s.entries[r.ID] = &entry{reminder: r, schedule: rule.String(), cronID: cronID}
	metrics.RemindersArmed.WithLabelValues(string(r.Kind), "recurring").Inc()
	metrics.RemindersActive.Set(float64(len(s.entries)))

	slog.Debug("Scheduler ScheduleRecurring succeeded", "id", r.ID, "user", r.UserID, "kind", r.Kind, "rule", rule.String())
	return r.ID, nil
}

// fire renders and sends one reminder. Failures and panics are logged and never propagate.
func (s *Scheduler) fire(r models.Reminder) {
	result := metrics.ResultFailed
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Scheduler reminder panicked", "id", r.ID, "user", r.UserID, "kind", r.Kind, "panic", p)
			result = metrics.ResultFailed
		}
		metrics.RemindersFired.WithLabelValues(string(r.Kind), result).Inc()
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.sendTimeout)
	defer cancel()

	body, err := s.render(ctx, r)
	if errors.Is(err, errNothingToSend) {
		slog.Info("Scheduler reminder has nothing to send", "id", r.ID, "user", r.UserID, "kind", r.Kind)
		result = metrics.ResultSkipped
		return
	}
	if err != nil {
		slog.Error("Scheduler render failed", "id", r.ID, "user", r.UserID, "kind", r.Kind, "error", err)
		return
	}
	if err := s.sender.SendMessage(ctx, r.UserID, body); err != nil {
		slog.Error("Scheduler send failed", "id", r.ID, "user", r.UserID, "kind", r.Kind, "error", err)
		return
	}
	result = metrics.ResultOK
	slog.Info("Scheduler fired reminder", "id", r.ID, "user", r.UserID, "kind", r.Kind)
}

// Cancel disarms a reminder.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return ErrReminderNotFound
	}
	if e.timer != nil {
		if e.timer.Stop() {
			s.inflight.Done()
		}
	} else {
		s.cron.Remove(e.cronID)
	}
	delete(s.entries, id)
	metrics.RemindersActive.Set(float64(len(s.entries)))
	slog.Debug("Scheduler Cancel succeeded", "id", id)
	return nil
}

// List returns the armed reminders ordered by next run.
func (s *Scheduler) List() []models.ReminderInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.ReminderInfo, 0, len(s.entries))
	for id, e := range s.entries {
		next := e.at
		if e.timer == nil {
			next = s.cron.Entry(e.cronID).Next
		}
		out = append(out, models.ReminderInfo{
			ID:       id,
			UserID:   e.reminder.UserID,
			Kind:     e.reminder.Kind,
			Schedule: e.schedule,
			NextRun:  next,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextRun.Equal(out[j].NextRun) {
			return out[i].ID < out[j].ID
		}
		return out[i].NextRun.Before(out[j].NextRun)
	})
	return out
}

// Location is the zone recurring rules are evaluated in.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// Stop disarms every reminder and waits for running deliveries to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		for id, e := range s.entries {
			if e.timer != nil && e.timer.Stop() {
				s.inflight.Done()
			}
			delete(s.entries, id)
		}
		metrics.RemindersActive.Set(0)
		s.mu.Unlock()

		<-s.cron.Stop().Done()
		s.inflight.Wait()
		s.cancel()
		slog.Info("Scheduler stopped")
	})
}
