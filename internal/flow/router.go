package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/HealthPipe/internal/metrics"
	"github.com/BTreeMap/HealthPipe/internal/models"
	"github.com/BTreeMap/HealthPipe/internal/store"
)

// Global commands.
const (
	CmdHelp       = "help"
	CmdCancel     = "cancel"
	CmdStart      = "start"
	CmdDiagnose   = "diagnose"
	CmdAssessment = "assessment"
	CmdFitness    = "fitness"
	CmdMeal       = "meal"
	CmdCycle      = "cycle"
	CmdMedication = "medication"
	CmdAsk        = "ask"
)

// launchCommands maps flow-launching commands to the flow they start.
var launchCommands = map[string]models.FlowState{
	CmdDiagnose:   models.StateDiagnosing,
	CmdAssessment: models.StateAssessing,
	CmdFitness:    models.StateFitness,
	CmdMeal:       models.StateMeal,
	CmdCycle:      models.StateCycleTracking,
	CmdMedication: models.StateMedicationChoice,
}

const helpText = `Here is what I can do:
*diagnose*: check your symptoms
*assessment*: take a health assessment and get a score
*fitness*: get a weekly fitness plan
*meal*: get a meal plan
*cycle*: track your menstrual cycle
*medication*: set up medication reminders
*ask <question>*: ask a health question
*cancel*: stop what you're doing
*start*: set up your profile`

const genericErrorReply = "Sorry, something went wrong. Please try again in a moment."

// EligibilityError is returned when a command is used before its preconditions are met.
type EligibilityError struct {
	Message string
}

func (e *EligibilityError) Error() string {
	return e.Message
}

// parseCommand recognizes a global command. Matching is case-insensitive and ignores a
// leading slash. Only "ask" takes an argument.
func parseCommand(text string) (cmd, arg string, ok bool) {
	s := strings.TrimPrefix(strings.TrimSpace(text), "/")
	word, rest, _ := strings.Cut(s, " ")
	word = strings.ToLower(word)
	rest = strings.TrimSpace(rest)

	if word == CmdAsk {
		return CmdAsk, rest, true
	}
	if rest != "" {
		return "", "", false
	}
	switch word {
	case CmdHelp, CmdCancel, CmdStart:
		return word, "", true
	}
	if _, ok := launchCommands[word]; ok {
		return word, "", true
	}
	return "", "", false
}

// Router is the entry point for inbound messages. It serializes messages per user and
// dispatches global commands before handing anything else to the Engine.
type Router struct {
	engine *Engine
	locks  *keyedMutex
}

// NewRouter creates a Router in front of engine.
func NewRouter(engine *Engine) *Router {
	return &Router{engine: engine, locks: newKeyedMutex()}
}

// Handle processes one inbound message and returns exactly one reply.
func (r *Router) Handle(ctx context.Context, userID, text string) string {
	unlock := r.locks.Lock(userID)
	defer unlock()

	metrics.MessagesReceived.Inc()
	sess := r.engine.sessions.Get(userID)
	cmd, arg, isCmd := parseCommand(text)

	// While the terms are pending, only accept or deny moves forward.
	if sess.State == models.StateAwaitingTermsResponse && cmd != CmdCancel && cmd != CmdHelp {
		isCmd = false
	}
	if !isCmd {
		return r.engine.Advance(ctx, userID, text)
	}

	slog.Debug("Router command", "user", userID, "command", cmd, "state", sess.State)
	switch cmd {
	case CmdHelp:
		return r.help(userID)
	case CmdCancel:
		if sess.State.IsIdle() {
			return "There's nothing to cancel. Send *help* to see what I can do."
		}
		r.engine.sessions.Reset(userID)
		slog.Info("Router cancelled flow", "user", userID, "state", sess.State)
		return "Cancelled. Send *help* to see what I can do."
	case CmdStart:
		return r.start(ctx, userID)
	case CmdAsk:
		return r.ask(ctx, userID, arg)
	default:
		return r.launch(ctx, userID, launchCommands[cmd])
	}
}

func (r *Router) help(userID string) string {
	name, step, total, ok := r.engine.Position(userID)
	if !ok {
		return helpText
	}
	return fmt.Sprintf("%s\n\nYou are in the %s (step %d of %d). Send *cancel* to stop.", helpText, name, step, total)
}

func (r *Router) start(ctx context.Context, userID string) string {
	exists, err := r.engine.store.UserExists(ctx, userID)
	if err != nil {
		slog.Error("Router start lookup failed", "user", userID, "error", err)
		return genericErrorReply
	}
	if exists {
		return "You're already registered. Send *help* to see what I can do."
	}
	return r.engine.Begin(ctx, userID, models.StateAwaitingTermsResponse, nil)
}

func (r *Router) ask(ctx context.Context, userID, question string) string {
	if question == "" {
		return "Please add your question after *ask*, for example: ask is it okay to exercise with a cold?"
	}
	answer, err := r.engine.analyst.AnswerQuestion(ctx, question)
	if err != nil {
		slog.Error("Router ask failed", "user", userID, "error", err)
		answer = "Sorry, I couldn't answer that right now. Please try again later."
	}
	if prompt, ok := r.engine.CurrentPrompt(userID); ok {
		answer += "\n\nBack to where we were: " + prompt
	}
	return answer
}

// eligible checks the preconditions of a flow-launching command.
func (r *Router) eligible(ctx context.Context, userID string, state models.FlowState) error {
	exists, err := r.engine.store.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return &EligibilityError{Message: "Please send *start* to set up your profile first."}
	}
	if state != models.StateCycleTracking {
		return nil
	}
	cp, err := r.engine.store.GetCycleProfile(ctx, userID)
	if err != nil {
		return err
	}
	if !cp.TracksCycle() {
		return &EligibilityError{Message: "Cycle tracking is only available if your profile has a regular or irregular menstrual cycle."}
	}
	return nil
}

func (r *Router) launch(ctx context.Context, userID string, state models.FlowState) string {
	if err := r.eligible(ctx, userID, state); err != nil {
		var eerr *EligibilityError
		if errors.As(err, &eerr) {
			slog.Debug("Router command not eligible", "user", userID, "state", state)
			return eerr.Message
		}
		slog.Error("Router eligibility check failed", "user", userID, "state", state, "error", err)
		return genericErrorReply
	}

	if state == models.StateCycleTracking {
		rec, err := r.engine.store.GetCycle(ctx, userID)
		switch {
		case err == nil:
			return cycleSummary(rec) + "\n\n" + r.engine.Begin(ctx, userID, models.StateCycleUpdateChoice, nil)
		case !errors.Is(err, store.ErrNotFound):
			slog.Error("Router cycle lookup failed", "user", userID, "error", err)
			return genericErrorReply
		}
	}
	return r.engine.Begin(ctx, userID, state, nil)
}
