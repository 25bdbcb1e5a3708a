// Package flow implements HealthPipe's conversation state machine.
//
// Every flow is a Definition: an ordered list of validated steps plus a finalizer. The
// Engine advances a user's session one step per message using the same algorithm for all
// flows; only finalization differs. The Router sits in front of the Engine and handles
// global commands.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/HealthPipe/internal/metrics"
	"github.com/BTreeMap/HealthPipe/internal/models"
	"github.com/BTreeMap/HealthPipe/internal/scheduler"
	"github.com/BTreeMap/HealthPipe/internal/store"
)

const idleReply = "I didn't understand that. Send *start* to begin or *help* to see what I can do."

// Analyst is the text-generation collaborator.
type Analyst interface {
	AnalyzeSymptoms(ctx context.Context, symptoms, severity, duration string) (string, error)
	AnalyzeAssessment(ctx context.Context, answers map[string]string, score int) (string, error)
	GenerateFitnessPlan(ctx context.Context, goal, activityLevel string, daysPerWeek, minutes int) (string, error)
	GenerateMealPlan(ctx context.Context, dietPreference, healthGoal string, mealsPerDay int) (string, error)
	AnswerQuestion(ctx context.Context, question string) (string, error)
}

// ReminderScheduler arms follow-up notifications.
type ReminderScheduler interface {
	ScheduleOneShot(r models.Reminder, at time.Time) (string, error)
	ScheduleRecurring(r models.Reminder, rule scheduler.Rule) (string, error)
}

// FinalizationError reports a collaborator failure while completing a flow.
type FinalizationError struct {
	Flow  models.FlowState
	Stage string
	Err   error
}

func (e *FinalizationError) Error() string {
	return fmt.Sprintf("finalize %s: %s: %v", e.Flow, e.Stage, e.Err)
}

func (e *FinalizationError) Unwrap() error {
	return e.Err
}

func finalizationError(flow models.FlowState, stage string, err error) error {
	return &FinalizationError{Flow: flow, Stage: stage, Err: err}
}

// Opts holds configuration options for the Engine.
type Opts struct {
	Now      func() time.Time
	Location *time.Location
}

// Option defines a configuration option for the Engine.
type Option func(*Opts)

// WithClock overrides the engine's clock.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// WithLocation sets the time zone used for dates and reminder times.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) {
		o.Location = loc
	}
}

// Engine advances sessions through flows.
type Engine struct {
	sessions  SessionStore
	store     store.Store
	analyst   Analyst
	reminders ReminderScheduler
	now       func() time.Time
	loc       *time.Location
	defs      map[models.FlowState]*Definition
}

// NewEngine creates an Engine over its collaborators.
func NewEngine(sessions SessionStore, st store.Store, analyst Analyst, reminders ReminderScheduler, opts ...Option) *Engine {
	cfg := Opts{Now: time.Now, Location: time.Local}
	for _, opt := range opts {
		opt(&cfg)
	}
	e := &Engine{
		sessions:  sessions,
		store:     st,
		analyst:   analyst,
		reminders: reminders,
		now:       cfg.Now,
		loc:       cfg.Location,
	}
	e.defs = e.buildDefinitions()
	return e
}

// Definition returns the flow registered for state.
func (e *Engine) Definition(state models.FlowState) (*Definition, bool) {
	d, ok := e.defs[state]
	return d, ok
}

// Begin places the user at the first step of state and returns its prompt. Any flow the
// user was in is abandoned.
func (e *Engine) Begin(ctx context.Context, userID string, state models.FlowState, seed map[string]string) string {
	def, ok := e.defs[state]
	if !ok {
		slog.Error("Engine Begin unknown flow", "user", userID, "state", state)
		e.sessions.Reset(userID)
		return idleReply
	}
	prev := e.sessions.Get(userID)
	if !prev.State.IsIdle() {
		slog.Info("Engine abandoning flow", "user", userID, "from", prev.State, "to", state)
	}

	sess := models.NewSession(userID)
	sess.Enter(state, seed)
	steps := def.Resolve(sess.Answers)
	if len(steps) == 0 {
		return e.finalize(ctx, sess, def)
	}
	e.sessions.Put(sess)
	slog.Debug("Engine Begin", "user", userID, "state", state, "steps", len(steps))
	return steps[0].Prompt
}

// Advance consumes one inbound message for the user and returns the reply.
func (e *Engine) Advance(ctx context.Context, userID, text string) string {
	sess := e.sessions.Get(userID)
	if sess.State.IsIdle() {
		return idleReply
	}
	def, ok := e.defs[sess.State]
	if !ok {
		slog.Error("Engine Advance unknown state, resetting", "user", userID, "state", sess.State)
		e.sessions.Reset(userID)
		return idleReply
	}

	steps := def.Resolve(sess.Answers)
	if i := sess.StepIndex; i < len(steps) {
		if err := steps[i].Validate(text); err != nil {
			metrics.ValidationFailures.WithLabelValues(string(sess.State)).Inc()
			slog.Debug("Engine Advance validation failed", "user", userID, "state", sess.State, "step", i, "field", steps[i].Field)
			var verr *ValidationError
			if errors.As(err, &verr) {
				return verr.Message
			}
			return "That answer wasn't valid. " + steps[i].Prompt
		}
		sess.Answers[steps[i].Field] = strings.TrimSpace(text)
		sess.StepIndex = i + 1

		// Answers can extend the step list, so resolve again.
		steps = def.Resolve(sess.Answers)
		if sess.StepIndex < len(steps) {
			e.sessions.Put(sess)
			slog.Debug("Engine Advance", "user", userID, "state", sess.State, "step", sess.StepIndex, "of", len(steps))
			return steps[sess.StepIndex].Prompt
		}
	}
	return e.finalize(ctx, sess, def)
}

// finalize runs the flow's completion action. The session always leaves the flow.
func (e *Engine) finalize(ctx context.Context, sess models.Session, def *Definition) string {
	slog.Debug("Engine finalize", "user", sess.UserID, "state", def.State)
	out, err := def.Finalize(ctx, sess.UserID, sess.Clone().Answers)
	e.sessions.Reset(sess.UserID)
	if err != nil {
		metrics.FlowsFinalized.WithLabelValues(string(def.State), metrics.ResultFailed).Inc()
		slog.Error("Engine finalize failed", "user", sess.UserID, "state", def.State, "error", err)
		return def.FailureReply
	}
	metrics.FlowsFinalized.WithLabelValues(string(def.State), metrics.ResultOK).Inc()

	if out.Next.IsIdle() {
		return out.Reply
	}
	next := e.Begin(ctx, sess.UserID, out.Next, out.Seed)
	if out.Reply == "" {
		return next
	}
	return out.Reply + "\n\n" + next
}

// CurrentPrompt returns the question the user is expected to answer, if any.
func (e *Engine) CurrentPrompt(userID string) (string, bool) {
	sess := e.sessions.Get(userID)
	def, ok := e.defs[sess.State]
	if !ok {
		return "", false
	}
	steps := def.Resolve(sess.Answers)
	if sess.StepIndex >= len(steps) {
		return "", false
	}
	return steps[sess.StepIndex].Prompt, true
}

// Position describes where the user is: the flow name, the 1-based step and the step count.
func (e *Engine) Position(userID string) (name string, step, total int, ok bool) {
	sess := e.sessions.Get(userID)
	def, found := e.defs[sess.State]
	if !found {
		return "", 0, 0, false
	}
	steps := def.Resolve(sess.Answers)
	return def.Name, min(sess.StepIndex+1, len(steps)), len(steps), true
}

// armOneShot schedules a one-shot reminder. A past instant is not an error for the flow.
func (e *Engine) armOneShot(r models.Reminder, at time.Time) bool {
	if e.reminders == nil {
		return false
	}
	if _, err := e.reminders.ScheduleOneShot(r, at); err != nil {
		if errors.Is(err, scheduler.ErrPastInstant) {
			slog.Info("Engine reminder not armed, instant has passed", "user", r.UserID, "kind", r.Kind, "at", at)
		} else {
			slog.Error("Engine failed to arm reminder", "user", r.UserID, "kind", r.Kind, "error", err)
		}
		return false
	}
	return true
}

func (e *Engine) armRecurring(r models.Reminder, rule scheduler.Rule) bool {
	if e.reminders == nil {
		return false
	}
	if _, err := e.reminders.ScheduleRecurring(r, rule); err != nil {
		slog.Error("Engine failed to arm recurring reminder", "user", r.UserID, "kind", r.Kind, "rule", rule.String(), "error", err)
		return false
	}
	return true
}
